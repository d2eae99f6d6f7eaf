package connection

import (
	"sync"
	"time"
)

// timerSet tracks at most one pending timer per key. Every timer is
// individually cancellable; leaking one past teardown is a bug.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// arm starts a timer for key unless one is already pending. fn runs on its
// own goroutine after d, with the timer already removed from the set.
func (ts *timerSet) arm(key string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, pending := ts.timers[key]; pending {
		return
	}

	ts.timers[key] = time.AfterFunc(d, func() {
		ts.mu.Lock()
		delete(ts.timers, key)
		ts.mu.Unlock()
		fn()
	})
}

// cancel stops the pending timer for key, if any.
func (ts *timerSet) cancel(key string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if t, ok := ts.timers[key]; ok {
		t.Stop()
		delete(ts.timers, key)
	}
}

// cancelAll stops every pending timer.
func (ts *timerSet) cancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for key, t := range ts.timers {
		t.Stop()
		delete(ts.timers, key)
	}
}

// pending reports whether a timer is armed for key.
func (ts *timerSet) pending(key string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, ok := ts.timers[key]
	return ok
}
