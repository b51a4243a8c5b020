package security

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst was denied", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst was allowed")
	}
}

func TestRateLimiterIsolatesIdentifiers(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first identifier denied")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("first identifier not limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second identifier was affected by the first")
	}
}

func TestRateLimiterEvictsLRU(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.maxEntries = 2
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("c") // evicts "a"

	if len(rl.limiters) != 2 {
		t.Errorf("entries = %d, want 2", len(rl.limiters))
	}
	if _, ok := rl.limiters["a"]; ok {
		t.Error("expected the least recently used entry to be evicted")
	}
}

func TestRateLimiterRemoveIdle(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("10.0.0.%d", i))
	}

	// With a zero idle allowance every entry is already stale.
	time.Sleep(time.Millisecond)
	rl.removeIdle(0)

	rl.mu.Lock()
	n := len(rl.limiters)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("entries after cleanup = %d, want 0", n)
	}
}
