package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/taleforge/sceneengine/internal/domain"
)

// Settings configures the per-campaign state a Registry creates.
type Settings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	CacheTTL         time.Duration
	CacheCapacity    int
	LedgerWindow     int
	BudgetCapUSD     float64
	WarnRatio        float64
	HaltRatio        float64
}

// DefaultSettings returns the standard breaker, cache and ledger settings.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
		CacheTTL:         60 * time.Minute,
		CacheCapacity:    100,
		LedgerWindow:     50,
		WarnRatio:        0.8,
		HaltRatio:        1.0,
	}
}

type campaignState struct {
	breaker *Breaker
	cache   *Cache
	ledger  *Ledger
}

// Registry owns the breaker, cache and ledger of every campaign, creating
// them lazily on first use. Campaigns never share state.
type Registry struct {
	settings Settings
	now      func() time.Time

	// OnBreakerTransition observes every breaker state change.
	OnBreakerTransition func(campaignID string, from, to domain.BreakerState, snap BreakerSnapshot)

	mu        sync.Mutex
	campaigns map[string]*campaignState
}

// NewRegistry creates an empty registry. A nil now uses time.Now.
func NewRegistry(s Settings, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{settings: s, now: now, campaigns: make(map[string]*campaignState)}
}

func (r *Registry) get(campaignID string) *campaignState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok := r.campaigns[campaignID]; ok {
		return cs
	}

	b := NewBreaker(r.settings.FailureThreshold, r.settings.ResetTimeout, r.now)
	b.OnTransition = func(from, to domain.BreakerState, snap BreakerSnapshot) {
		breakerState.WithLabelValues(campaignID).Set(breakerGaugeValue(to))
		if r.OnBreakerTransition != nil {
			r.OnBreakerTransition(campaignID, from, to, snap)
		}
	}
	l := NewLedger(r.settings.LedgerWindow, r.settings.BudgetCapUSD)
	if r.settings.WarnRatio > 0 {
		l.WarnRatio = r.settings.WarnRatio
	}
	if r.settings.HaltRatio > 0 {
		l.HaltRatio = r.settings.HaltRatio
	}

	cs := &campaignState{
		breaker: b,
		cache:   NewCache(r.settings.CacheTTL, r.settings.CacheCapacity, r.now),
		ledger:  l,
	}
	r.campaigns[campaignID] = cs
	return cs
}

// Breaker returns the campaign's circuit breaker.
func (r *Registry) Breaker(campaignID string) *Breaker { return r.get(campaignID).breaker }

// Cache returns the campaign's response cache.
func (r *Registry) Cache(campaignID string) *Cache { return r.get(campaignID).cache }

// Ledger returns the campaign's cost ledger.
func (r *Registry) Ledger(campaignID string) *Ledger { return r.get(campaignID).ledger }

// Campaigns lists the campaigns with live state, sorted.
func (r *Registry) Campaigns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.campaigns))
	for id := range r.campaigns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Forget drops all state for a campaign.
func (r *Registry) Forget(campaignID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, campaignID)
}

// Stats is a read-only view of one campaign's gateway state.
type Stats struct {
	CampaignID string            `json:"campaign_id"`
	Breaker    BreakerSnapshot   `json:"breaker"`
	CacheSize  int               `json:"cache_size"`
	Totals     LedgerTotals      `json:"totals"`
	Budget     domain.CostAction `json:"budget"`
}

// Stats returns the campaign's current gateway stats.
func (r *Registry) Stats(campaignID string) Stats {
	cs := r.get(campaignID)
	return Stats{
		CampaignID: campaignID,
		Breaker:    cs.breaker.Snapshot(),
		CacheSize:  cs.cache.Len(),
		Totals:     cs.ledger.Totals(),
		Budget:     cs.ledger.Check(),
	}
}
