package auth

import (
	"sync"
	"time"
)

// nonceEntry tracks an issued nonce until it is used or expires.
type nonceEntry struct {
	expiresAt time.Time
	used      bool
}

// NonceCache tracks issued nonces so each is accepted at most once.
// Expired entries are swept lazily on insert.
type NonceCache struct {
	mu      sync.Mutex
	entries map[string]*nonceEntry

	// sweepEvery bounds how often the lazy sweep runs.
	sweepEvery time.Duration
	lastSweep  time.Time
}

// NewNonceCache creates an empty nonce cache.
func NewNonceCache() *NonceCache {
	return &NonceCache{
		entries:    make(map[string]*nonceEntry),
		sweepEvery: time.Minute,
	}
}

// Issue records a nonce with its expiry time.
func (c *NonceCache) Issue(nonce string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(time.Now())
	c.entries[nonce] = &nonceEntry{expiresAt: expiresAt}
}

// Consume marks a nonce as used.
// Returns ErrNonceUnknown if it was never issued, ErrNonceReplayed if it
// was already consumed, and ErrNonceExpired if now is past its expiry
// plus skew.
func (c *NonceCache) Consume(nonce string, now time.Time, skew time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[nonce]
	if !exists {
		return ErrNonceUnknown
	}
	if entry.used {
		return ErrNonceReplayed
	}
	if now.After(entry.expiresAt.Add(skew)) {
		delete(c.entries, nonce)
		return ErrNonceExpired
	}

	entry.used = true
	return nil
}

// Len returns the number of tracked nonces.
func (c *NonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweepLocked drops expired entries. Caller must hold the lock.
func (c *NonceCache) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.sweepEvery {
		return
	}
	c.lastSweep = now

	for nonce, entry := range c.entries {
		// Used entries are kept until expiry so replays stay detectable.
		if now.After(entry.expiresAt) {
			delete(c.entries, nonce)
		}
	}
}
