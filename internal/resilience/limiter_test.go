package resilience

import (
	"testing"
	"time"
)

func TestLimiterAllowsBurstThenRejects(t *testing.T) {
	now := time.Now()
	l := NewLimiter(60, 3)
	l.now = func() time.Time { return now }

	for i := range 3 {
		if !l.Allow("builder") {
			t.Fatalf("spawn %d within burst should be allowed", i)
		}
	}
	if l.Allow("builder") {
		t.Fatal("spawn beyond burst should be rejected")
	}
}

func TestLimiterRefillsOverTime(t *testing.T) {
	now := time.Now()
	l := NewLimiter(60, 1) // one token per second
	l.now = func() time.Time { return now }

	if !l.Allow("builder") {
		t.Fatal("first spawn should be allowed")
	}
	if l.Allow("builder") {
		t.Fatal("bucket should be empty")
	}

	now = now.Add(time.Second)
	if !l.Allow("builder") {
		t.Fatal("expected a refilled token after 1s")
	}
}

func TestLimiterClassesAreIndependent(t *testing.T) {
	now := time.Now()
	l := NewLimiter(60, 1)
	l.now = func() time.Time { return now }

	if !l.Allow("builder") {
		t.Fatal("builder should be allowed")
	}
	if !l.Allow("scanner") {
		t.Fatal("scanner has its own bucket")
	}
}

func TestPruneDropsIdleBuckets(t *testing.T) {
	now := time.Now()
	l := NewLimiter(60, 1)
	l.now = func() time.Time { return now }

	l.Allow("builder")
	now = now.Add(time.Hour)
	l.Prune(time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buckets) != 0 {
		t.Fatalf("expected idle buckets pruned, %d left", len(l.buckets))
	}
}
