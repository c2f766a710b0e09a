package workflow

import (
	"context"
)

// Publisher fans events out to a campaign's realtime channel. Delivery is
// fire-and-forget; errors are logged and never fail the caller.
type Publisher interface {
	Publish(ctx context.Context, campaignID, event string, payload any) error
}

// Realtime event names.
const (
	EventSceneCreated      = "scene:created"
	EventResolving         = "scene:resolving"
	EventResolved          = "scene:resolved"
	EventResolutionFailed  = "scene:resolution-failed"
	EventSceneEnded        = "scene:ended"
	EventExchangeStarted   = "exchange:started"
	EventClockTicked       = "clock:ticked"
	EventCharacterAdvanced = "character:advanced"
	EventCampaignHealth    = "campaign:health"
	EventActionSubmitted   = "action:submitted"
)

func (e *Engine) publish(ctx context.Context, campaignID, event string, payload any) {
	if e.Publisher == nil {
		return
	}
	if err := e.Publisher.Publish(context.WithoutCancel(ctx), campaignID, event, payload); err != nil {
		e.logger().Warn("publish failed", "campaign_id", campaignID, "event", event, "error", err)
	}
}
