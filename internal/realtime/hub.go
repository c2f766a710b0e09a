// Package realtime fans scene engine events out to in-process subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taleforge/sceneengine/internal/domain"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

var droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sceneengine_realtime_dropped_total",
	Help: "Total number of realtime events dropped because a subscriber buffer was full",
})

// Event is one published message on a campaign channel.
type Event struct {
	ID         string          `json:"id"`
	CampaignID string          `json:"campaign_id"`
	Name       string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	At         int64           `json:"at"`
}

// Hub distributes events to the subscribers of each campaign. Publishing
// never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	Buffer int
	Logger *slog.Logger
	Now    func() time.Time

	mu   sync.RWMutex
	subs map[string][]chan Event
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Buffer: DefaultBuffer,
		Logger: logger,
		Now:    time.Now,
		subs:   make(map[string][]chan Event),
	}
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Subscribe creates a channel receiving every event of campaignID.
func (h *Hub) Subscribe(campaignID string) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}
	ch := make(chan Event, size)
	h.subs[campaignID] = append(h.subs[campaignID], ch)
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (h *Hub) Unsubscribe(campaignID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[campaignID]
	for i, sub := range subs {
		if sub == ch {
			h.subs[campaignID] = append(subs[:i:i], subs[i+1:]...)
			if len(h.subs[campaignID]) == 0 {
				delete(h.subs, campaignID)
			}
			close(ch)
			return
		}
	}
}

// Subscribers returns the number of live subscriptions for campaignID.
func (h *Hub) Subscribers(campaignID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[campaignID])
}

// Publish encodes payload and delivers it to every subscriber of
// campaignID. Only an unencodable payload is an error.
func (h *Hub) Publish(_ context.Context, campaignID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	ev := Event{
		ID:         domain.NewID("evt"),
		CampaignID: campaignID,
		Name:       event,
		Payload:    body,
		At:         now().Unix(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[campaignID] {
		select {
		case ch <- ev:
		default:
			droppedEvents.Inc()
			h.logger().Warn("event dropped: subscriber buffer full",
				"campaign_id", campaignID, "event", event, "event_id", ev.ID)
		}
	}
	return nil
}
