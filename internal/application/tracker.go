package application

import (
	"context"
	"sync"
	"time"
)

// activityThrottleWindow is the minimum gap between durable activity writes.
// Interaction bursts inside the window collapse to a single write.
const activityThrottleWindow = 30 * time.Second

// ActivityTracker forwards throttled interaction signals to the session store.
// The browser batches raw DOM events (pointer, key, scroll, touch, click,
// focus/blur) into pings; the tracker throttles again so rapid-fire pings never
// each trigger a durable write; only the stale-to-fresh transition does.
type ActivityTracker struct {
	store    *SessionStore
	throttle time.Duration
	nowFn    func() time.Time

	mu         sync.Mutex
	lastUpdate time.Time
	active     bool
}

// NewActivityTracker builds a tracker over the store with the default throttle.
func NewActivityTracker(store *SessionStore) *ActivityTracker {
	return &ActivityTracker{
		store:    store,
		throttle: activityThrottleWindow,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Start attaches the tracker and performs one unconditional activity update so a
// fresh attach always registers activity regardless of throttle state. Starting
// an already-started tracker only re-marks it active.
func (t *ActivityTracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return
	}
	t.active = true
	t.lastUpdate = t.nowFn()
	t.mu.Unlock()

	t.store.UpdateLastActivity(ctx)
}

// Observe handles one interaction signal. Signals arriving within the throttle
// window of the previous durable write are dropped silently; signals on a
// stopped tracker are ignored.
func (t *ActivityTracker) Observe(ctx context.Context) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	now := t.nowFn()
	if now.Sub(t.lastUpdate) <= t.throttle {
		t.mu.Unlock()
		return
	}
	t.lastUpdate = now
	t.mu.Unlock()

	t.store.UpdateLastActivity(ctx)
}

// Stop detaches the tracker. Detachment must happen on every exit path so
// repeated start/stop cycles (route changes) never leak observers.
func (t *ActivityTracker) Stop() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
}

// Active reports whether the tracker is currently attached.
func (t *ActivityTracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
