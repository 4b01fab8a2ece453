// Package dedup suppresses near-identical withdrawal submissions inside a
// short window, absorbing UI double-clicks and client retries before they
// reach the approval authority. It is a best-effort, single-process guard;
// the journal's hash dedup remains the real idempotency barrier.
package dedup

import (
	"fmt"
	"sync"
	"time"
)

// DefaultWindow is the suppression window for identical submissions.
const DefaultWindow = 5 * time.Second

// Cache records submission keys and rejects repeats seen within the window.
type Cache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewCache creates a cache with the given window. A non-positive window
// falls back to DefaultWindow.
func NewCache(window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{
		window:  window,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Key builds the composite submission key.
func Key(userAddress, token string, amount float64, recipientAddress string) string {
	return fmt.Sprintf("%s-%s-%v-%s", userAddress, token, amount, recipientAddress)
}

// Allow records the submission and reports whether it may proceed. A key seen
// within the window is rejected without refreshing its timestamp, so a
// genuinely retried request becomes admissible once the original entry ages
// out. Expired entries are swept on every insertion, which bounds the map to
// keys active inside one window.
func (c *Cache) Allow(userAddress, token string, amount float64, recipientAddress string) bool {
	key := Key(userAddress, token, amount, recipientAddress)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seen, ok := c.entries[key]; ok && now.Sub(seen) < c.window {
		return false
	}

	c.entries[key] = now

	for k, seen := range c.entries {
		if now.Sub(seen) >= c.window {
			delete(c.entries, k)
		}
	}
	return true
}

// Len reports the number of live entries. Exposed for tests and metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
