// Package pending tracks in-flight correlated requests with per-entry
// expiry timers.
package pending

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Table correlates request IDs with pending state of type V. Removal and
// expiry are mutually exclusive: whichever claims an entry first owns the
// follow-up action, so a late response and a timeout can never both act
// on the same request.
type Table[V any] struct {
	mu      sync.Mutex
	clk     clock.Clock
	entries map[string]*entry[V]
}

type entry[V any] struct {
	value V
	timer *clock.Timer
}

// New creates an empty table using clk for expiry timers.
func New[V any](clk clock.Clock) *Table[V] {
	return &Table[V]{
		clk:     clk,
		entries: make(map[string]*entry[V]),
	}
}

// Put stores value under id and arms an expiry timer. If the timer fires
// before Remove claims the entry, the entry is deleted first and onExpire
// then runs with the table unlocked. A later Put under the same id
// replaces the earlier entry and disarms its timer.
func (t *Table[V]) Put(id string, value V, ttl time.Duration, onExpire func(id string, value V)) {
	t.mu.Lock()
	if old, ok := t.entries[id]; ok {
		old.timer.Stop()
	}
	e := &entry[V]{value: value}
	e.timer = t.clk.AfterFunc(ttl, func() {
		t.expire(id, e, onExpire)
	})
	t.entries[id] = e
	t.mu.Unlock()
}

func (t *Table[V]) expire(id string, e *entry[V], onExpire func(string, V)) {
	t.mu.Lock()
	cur, ok := t.entries[id]
	if !ok || cur != e {
		// Removed or replaced between the timer firing and this lock.
		t.mu.Unlock()
		return
	}
	delete(t.entries, id)
	t.mu.Unlock()

	if onExpire != nil {
		onExpire(id, e.value)
	}
}

// Remove claims and returns the entry for id, disarming its timer.
// Callers act on the returned value only when ok is true; a false return
// means the request already expired or was never tracked.
func (t *Table[V]) Remove(id string) (V, bool) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		var zero V
		return zero, false
	}
	delete(t.entries, id)
	t.mu.Unlock()

	e.timer.Stop()
	return e.value, true
}

// Len reports the number of in-flight entries.
func (t *Table[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Drain disarms every timer and returns all tracked values, leaving the
// table empty. Expiry callbacks never run for drained entries.
func (t *Table[V]) Drain() []V {
	t.mu.Lock()
	values := make([]V, 0, len(t.entries))
	timers := make([]*clock.Timer, 0, len(t.entries))
	for id, e := range t.entries {
		values = append(values, e.value)
		timers = append(timers, e.timer)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	for _, tm := range timers {
		tm.Stop()
	}
	return values
}
