// Package timer keeps named stopwatches for dwell-time measurement.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	start  time.Time
	active bool
}

// Registry holds one stopwatch per key. Entries live until they are ended;
// there is no eviction.
type Registry struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]*entry
}

func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Start records the start time for key. A key that is already running keeps
// its original start time.
func (r *Registry) Start(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok && e.active {
		return
	}
	r.entries[key] = &entry{start: r.clock.Now(), active: true}
}

// End stops the stopwatch for key and returns the elapsed whole seconds.
// ok is false when the key was never started or has already been ended.
func (r *Registry) End(key string) (seconds int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[key]
	if !exists || !e.active {
		return 0, false
	}
	e.active = false

	elapsed := r.clock.Since(e.start)
	if elapsed < 0 {
		elapsed = 0
	}
	return int(elapsed / time.Second), true
}

func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	return ok && e.active
}

// ActiveKeys lists the keys currently running.
func (r *Registry) ActiveKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.entries))
	for k, e := range r.entries {
		if e.active {
			keys = append(keys, k)
		}
	}
	return keys
}
