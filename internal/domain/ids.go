package domain

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID generates a new ULID string with the given prefix.
func NewID(prefix string) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}

// ParseID extracts the ULID portion of an identifier created by NewID.
func ParseID(s string) (ulid.ULID, error) {
	raw := s
	if n := len(s); n > ulid.EncodedSize {
		raw = s[n-ulid.EncodedSize:]
	}
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
