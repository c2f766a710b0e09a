// Package guard rate-limits expensive scene operations.
package guard

import (
	"sync"
	"time"

	"github.com/taleforge/sceneengine/internal/domain"
)

// Operation names a rate-limited request kind.
type Operation string

const (
	OpSubmit  Operation = "submit"
	OpResolve Operation = "resolve"
)

// Config holds per-minute limits. A zero limit disables that check.
type Config struct {
	SubmitsPerMinute  int
	ResolvesPerMinute int
}

// Guard enforces a fixed 60 second window per key and operation. Keys are
// campaign IDs for resolution and scene IDs for submissions.
type Guard struct {
	Config Config
	Now    func() time.Time

	mu         sync.Mutex
	rateCounts map[string]*rateBucket
}

type rateBucket struct {
	count       int
	windowStart int64
}

// New creates a Guard with the given limits.
func New(cfg Config) *Guard {
	return &Guard{
		Config:     cfg,
		Now:        time.Now,
		rateCounts: make(map[string]*rateBucket),
	}
}

func (g *Guard) limit(op Operation) int {
	switch op {
	case OpSubmit:
		return g.Config.SubmitsPerMinute
	case OpResolve:
		return g.Config.ResolvesPerMinute
	}
	return 0
}

// CheckRateLimit counts one op for key and returns ErrRateLimited once the
// window's limit is reached. A nil Guard allows everything.
func (g *Guard) CheckRateLimit(key string, op Operation) error {
	if g == nil {
		return nil
	}
	allowed := g.limit(op)
	if allowed <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	ts := now().Unix()
	bucketKey := key + "|" + string(op)
	bucket, ok := g.rateCounts[bucketKey]
	if !ok {
		g.rateCounts[bucketKey] = &rateBucket{count: 1, windowStart: ts}
		return nil
	}

	if ts-bucket.windowStart >= 60 {
		bucket.count = 1
		bucket.windowStart = ts
		return nil
	}

	if bucket.count >= allowed {
		return domain.NewEngineError(domain.ErrRateLimited,
			"too many "+string(op)+" requests for "+key)
	}

	bucket.count++
	return nil
}
