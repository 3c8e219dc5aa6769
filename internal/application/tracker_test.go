package application

import (
	"context"
	"testing"
	"time"
)

func newTestTracker(kv *memKV) (*ActivityTracker, *time.Time) {
	store, current := newTestStore(kv)
	tracker := NewActivityTracker(store)
	tracker.nowFn = store.nowFn
	return tracker, current
}

func TestObserveBurstCollapsesToOneWrite(t *testing.T) {
	t.Parallel()

	kv := newMemKV()
	tracker, _ := newTestTracker(kv)
	ctx := context.Background()

	tracker.Start(ctx)
	baseline := kv.setCount()

	for i := 0; i < 100; i++ {
		tracker.Observe(ctx)
	}
	if got := kv.setCount(); got != baseline {
		t.Fatalf("burst inside the throttle window wrote %d extra times", got-baseline)
	}
}

func TestObserveWritesAfterThrottleWindow(t *testing.T) {
	t.Parallel()

	kv := newMemKV()
	tracker, now := newTestTracker(kv)
	ctx := context.Background()

	tracker.Start(ctx)
	baseline := kv.setCount()

	*now = now.Add(31 * time.Second)
	tracker.Observe(ctx)
	if got := kv.setCount(); got != baseline+1 {
		t.Fatalf("expected one write after window, got %d", got-baseline)
	}

	// The write resets the window; an immediate follow-up is dropped again.
	tracker.Observe(ctx)
	if got := kv.setCount(); got != baseline+1 {
		t.Fatalf("follow-up inside new window must be dropped")
	}
}

func TestObserveIgnoredWhenStopped(t *testing.T) {
	t.Parallel()

	kv := newMemKV()
	tracker, now := newTestTracker(kv)
	ctx := context.Background()

	tracker.Start(ctx)
	tracker.Stop()
	if tracker.Active() {
		t.Fatalf("tracker must report inactive after stop")
	}

	baseline := kv.setCount()
	*now = now.Add(time.Hour)
	tracker.Observe(ctx)
	if kv.setCount() != baseline {
		t.Fatalf("stopped tracker must not write")
	}
}

func TestStartAlwaysWritesOnce(t *testing.T) {
	t.Parallel()

	kv := newMemKV()
	tracker, _ := newTestTracker(kv)
	ctx := context.Background()

	tracker.Start(ctx)
	first := kv.setCount()
	if first != 1 {
		t.Fatalf("start must perform exactly one unconditional write, got %d", first)
	}

	// Restarting an already-active tracker must not write again.
	tracker.Start(ctx)
	if kv.setCount() != first {
		t.Fatalf("redundant start must not write")
	}
}
