package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/domain"
)

// introBucket is the granularity scene intro lengths are rounded to.
const introBucket = 100

// Signature is the coarse shape of a narrator request. Requests with the
// same signature are considered interchangeable for caching.
type Signature struct {
	Universe    string
	ActionCount int
	Intents     []classify.Intent
	HasClocks   bool
	HasFactions bool
	IntroLength int
}

// SignatureOf normalises req into a Signature.
func SignatureOf(req domain.NarratorRequest, c classify.Classifier) Signature {
	var intents []classify.Intent
	for _, a := range req.PlayerActions {
		intents = append(intents, c.Intents(a.ActionText)...)
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i] < intents[j] })

	n := len(req.CurrentSceneIntro)
	rounded := ((n + introBucket/2) / introBucket) * introBucket

	return Signature{
		Universe:    strings.ToLower(strings.TrimSpace(req.CampaignUniverse)),
		ActionCount: len(req.PlayerActions),
		Intents:     intents,
		HasClocks:   len(req.WorldSummary.Clocks) > 0,
		HasFactions: len(req.WorldSummary.Factions) > 0,
		IntroLength: rounded,
	}
}

// Key hashes the signature into a cache key.
func (s Signature) Key() string {
	parts := make([]string, len(s.Intents))
	for i, in := range s.Intents {
		parts[i] = string(in)
	}
	raw := fmt.Sprintf("%s|%d|%s|%t|%t|%d",
		s.Universe, s.ActionCount, strings.Join(parts, ","), s.HasClocks, s.HasFactions, s.IntroLength)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CacheEntry is one cached full-level narrator response.
type CacheEntry struct {
	Key       string
	Response  *domain.NarratorResponse
	CreatedAt time.Time
	Hits      int
}

// Cache is a TTL-bounded response cache. When full it evicts the entry
// that has earned the least use for its age.
type Cache struct {
	TTL      time.Duration
	Capacity int

	now func() time.Time

	mu      sync.Mutex
	entries map[string]*CacheEntry
}

// NewCache creates an empty cache. A nil now uses time.Now.
func NewCache(ttl time.Duration, capacity int, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	if capacity <= 0 {
		capacity = 100
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{TTL: ttl, Capacity: capacity, now: now, entries: make(map[string]*CacheEntry)}
}

// Get returns the cached response for key and bumps its hit count.
// Expired entries are dropped and reported as a miss.
func (c *Cache) Get(key string) (*domain.NarratorResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.CreatedAt) > c.TTL {
		delete(c.entries, key)
		return nil, false
	}
	e.Hits++
	return e.Response, true
}

// Put stores resp under key, evicting one entry if over capacity.
func (c *Cache) Put(key string, resp *domain.NarratorResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &CacheEntry{Key: key, Response: resp, CreatedAt: c.now()}
	for len(c.entries) > c.Capacity {
		c.evictLocked(key)
	}
}

// Entry returns a copy of the entry stored under key.
func (c *Cache) Entry(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	return *e, true
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes the least valuable entry, never the one just
// inserted. Value falls as age/(hits+1) rises, so the victim is the entry
// with the highest score: old and rarely hit. Ties go to the lowest key.
func (c *Cache) evictLocked(keep string) {
	now := c.now()
	var victim string
	worst := -1.0
	for k, e := range c.entries {
		if k == keep {
			continue
		}
		score := now.Sub(e.CreatedAt).Seconds() / float64(e.Hits+1)
		if score > worst || (score == worst && k < victim) {
			victim, worst = k, score
		}
	}
	if victim == "" {
		return
	}
	delete(c.entries, victim)
}
