package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

const (
	user      = "0x742d35cc6634c0532925a3b844bc454e4438f44e"
	recipient = "0x1111111111111111111111111111111111111111"
)

func TestAllowThenSuppressWithinWindow(t *testing.T) {
	c := NewCache(5 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	if !c.Allow(user, "ETH", 1.5, recipient) {
		t.Fatal("first submission must pass")
	}
	c.now = func() time.Time { return base.Add(2 * time.Second) }
	if c.Allow(user, "ETH", 1.5, recipient) {
		t.Fatal("identical submission within window must be suppressed")
	}
}

func TestAllowAfterWindowExpires(t *testing.T) {
	c := NewCache(5 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	if !c.Allow(user, "ETH", 1.5, recipient) {
		t.Fatal("first submission must pass")
	}
	c.now = func() time.Time { return base.Add(6 * time.Second) }
	if !c.Allow(user, "ETH", 1.5, recipient) {
		t.Fatal("submission after window must pass")
	}
}

func TestDifferentKeysIndependent(t *testing.T) {
	c := NewCache(5 * time.Second)

	if !c.Allow(user, "ETH", 1.5, recipient) {
		t.Fatal("first submission must pass")
	}
	if !c.Allow(user, "ETH", 2.5, recipient) {
		t.Fatal("different amount is a different submission")
	}
	if !c.Allow(user, "USDT", 1.5, recipient) {
		t.Fatal("different token is a different submission")
	}
	if !c.Allow(user, "ETH", 1.5, user) {
		t.Fatal("different recipient is a different submission")
	}
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	c := NewCache(5 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	for i := 0; i < 100; i++ {
		c.Allow(user, "ETH", float64(i), recipient)
	}
	if c.Len() != 100 {
		t.Fatalf("expected 100 live entries, got %d", c.Len())
	}

	c.now = func() time.Time { return base.Add(6 * time.Second) }
	c.Allow(user, "ETH", 1000, recipient)
	if c.Len() != 1 {
		t.Fatalf("sweep must drop expired entries, got %d", c.Len())
	}
}

func TestSuppressionDoesNotRefreshWindow(t *testing.T) {
	c := NewCache(5 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Allow(user, "ETH", 1, recipient)

	// A suppressed retry at t+4s must not push expiry past t+5s.
	c.now = func() time.Time { return base.Add(4 * time.Second) }
	if c.Allow(user, "ETH", 1, recipient) {
		t.Fatal("retry at 4s must be suppressed")
	}
	c.now = func() time.Time { return base.Add(5*time.Second + time.Millisecond) }
	if !c.Allow(user, "ETH", 1, recipient) {
		t.Fatal("entry must expire relative to the original submission")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCache(time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Allow(user, fmt.Sprintf("TOK%d", n), float64(j), recipient)
			}
		}(i)
	}
	wg.Wait()
}
