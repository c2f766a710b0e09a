package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/logging"
)

// RecoveryConfig holds tunable parameters for the recovery loop.
type RecoveryConfig struct {
	Interval time.Duration
	// Grace is added to the resolution timeout before a RESOLVING scene
	// counts as stuck.
	Grace time.Duration
}

// Supervisor resets scenes left in RESOLVING by a crashed or abandoned
// resolution.
type Supervisor struct {
	Engine   *Engine
	Config   RecoveryConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSupervisor creates a Supervisor with defaults for zero-value config fields.
func NewSupervisor(e *Engine, cfg RecoveryConfig) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Second
	}
	return &Supervisor{Engine: e, Config: cfg, stopCh: make(chan struct{})}
}

// RecoverStuck reverts every scene that has been RESOLVING for longer than
// the resolution timeout plus grace and returns the IDs it reset.
func (s *Supervisor) RecoverStuck(ctx context.Context) ([]string, error) {
	e := s.Engine
	cutoff := e.now().Add(-e.Options.Timeout - s.Config.Grace).Unix()
	stuck, err := e.Scenes.ListStuck(ctx, e.DB, cutoff)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, err)
	}

	var recovered []string
	for _, sc := range stuck {
		log := e.logger().With("campaign_id", sc.CampaignID, "scene_id", sc.ID)
		stalled := time.Duration(e.now().Unix()-sc.UpdatedAtUnix) * time.Second
		ok, err := e.revert(ctx, sc.ID, EventTypeSceneRecovered, map[string]any{
			"stalled_seconds": int64(stalled.Seconds()),
		})
		if err != nil {
			logging.LogError(log, "recover stuck scene failed", err)
			continue
		}
		if !ok {
			continue
		}
		recovered = append(recovered, sc.ID)
		scenesRecovered.Inc()
		log.Warn("stuck scene reset to AWAITING_ACTIONS", "stalled", stalled)

		if err := e.Audit.Record(ctx, e.DB, domain.AuditRecord{
			ID:           domain.NewID("aud"),
			CampaignID:   sc.CampaignID,
			Category:     "supervisor",
			Actor:        "system",
			Action:       "scene_recovered",
			RequestJSON:  fmt.Sprintf(`{"scene_id":%q}`, sc.ID),
			DecisionJSON: fmt.Sprintf(`{"stalled_seconds":%d}`, int64(stalled.Seconds())),
			Severity:     "warning",
			CreatedAt:    e.now().Unix(),
		}); err != nil {
			log.Warn("record recovery audit failed", "error", err)
		}
		e.publish(ctx, sc.CampaignID, EventResolutionFailed, map[string]any{
			"scene_id":  sc.ID,
			"exchange":  sc.CurrentExchangeNumber,
			"kind":      domain.KindTimeout,
			"error":     "resolution abandoned",
			"recovered": true,
		})
	}
	return recovered, nil
}

// StartMonitoring spawns a goroutine that periodically recovers stuck scenes.
func (s *Supervisor) StartMonitoring(ctx context.Context) {
	ticker := time.NewTicker(s.Config.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RecoverStuck(ctx); err != nil {
					s.Engine.logger().Warn("stuck scene sweep failed", "error", err)
				}
			}
		}
	}()
}

// StopMonitoring signals the monitoring goroutine to stop. Safe to call multiple times.
func (s *Supervisor) StopMonitoring() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
