package zone

import (
	"sync"
	"testing"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/dispatch"
	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/RoofStorm/tiger-engagement/internal/timer"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []dispatch.Event
}

func (r *recordingEmitter) Track(ev dispatch.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) all() []dispatch.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatch.Event(nil), r.events...)
}

var (
	visible = Entry{Intersecting: true, Ratio: 0.8}
	hidden  = Entry{Intersecting: false, Ratio: 0}
)

func newTestTracker(t *testing.T) (*Tracker, *recordingEmitter, *timer.Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	registry := timer.NewRegistry(clock)
	emitter := &recordingEmitter{}
	tr := New(Config{Page: "welcome", Zone: "hero", Threshold: 0.5}, registry, emitter, clock, nil)
	return tr, emitter, registry, clock
}

func TestFlickerNeverStartsTimer(t *testing.T) {
	tr, emitter, registry, clock := newTestTracker(t)

	tr.Observe(visible)
	assert.Equal(t, StatePending, tr.State())

	clock.Advance(time.Second)
	tr.Observe(hidden)
	assert.Equal(t, StateIdle, tr.State())

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return registry.Active("welcome:hero") }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, emitter.all())
}

func TestDwellEmitsOneZoneView(t *testing.T) {
	tr, emitter, registry, clock := newTestTracker(t)

	tr.Observe(visible)
	clock.Advance(DefaultMinViewDuration)
	require.Eventually(t, func() bool { return tr.State() == StateStarted }, time.Second, 5*time.Millisecond)
	assert.True(t, registry.Active("welcome:hero"))

	clock.Advance(7 * time.Second)
	tr.Observe(hidden)

	events := emitter.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, model.ActionZoneView, ev.Action)
	assert.Equal(t, "welcome", ev.Page)
	assert.Equal(t, "hero", ev.Zone)
	require.NotNil(t, ev.Value)
	assert.Equal(t, 7, *ev.Value)
	assert.Equal(t, StateIdle, tr.State())
}

func TestRatioBelowThresholdCountsAsHidden(t *testing.T) {
	tr, emitter, _, clock := newTestTracker(t)

	tr.Observe(Entry{Intersecting: true, Ratio: 0.2})
	assert.Equal(t, StateIdle, tr.State())

	tr.Observe(visible)
	clock.Advance(DefaultMinViewDuration)
	require.Eventually(t, func() bool { return tr.State() == StateStarted }, time.Second, 5*time.Millisecond)

	clock.Advance(3 * time.Second)
	tr.Observe(Entry{Intersecting: true, Ratio: 0.3})

	require.Len(t, emitter.all(), 1)
	assert.Equal(t, 3, *emitter.all()[0].Value)
}

func TestCloseWhileStartedEmits(t *testing.T) {
	tr, emitter, _, clock := newTestTracker(t)

	tr.Observe(visible)
	clock.Advance(DefaultMinViewDuration)
	require.Eventually(t, func() bool { return tr.State() == StateStarted }, time.Second, 5*time.Millisecond)
	clock.Advance(4 * time.Second)

	tr.Close()

	require.Len(t, emitter.all(), 1)
	assert.Equal(t, 4, *emitter.all()[0].Value)

	// closed trackers ignore further observations
	tr.Observe(visible)
	assert.Equal(t, StateIdle, tr.State())
}

func TestCloseWhilePendingCancels(t *testing.T) {
	tr, emitter, registry, clock := newTestTracker(t)

	tr.Observe(visible)
	tr.Close()
	clock.Advance(5 * time.Second)

	assert.Never(t, func() bool { return registry.Active("welcome:hero") }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, emitter.all())
}

func TestRepeatedVisibleEntriesDoNotRearm(t *testing.T) {
	tr, emitter, _, clock := newTestTracker(t)

	tr.Observe(visible)
	clock.Advance(time.Second)
	tr.Observe(visible)
	clock.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return tr.State() == StateStarted }, time.Second, 5*time.Millisecond)

	clock.Advance(2 * time.Second)
	tr.Observe(hidden)
	require.Len(t, emitter.all(), 1)
	assert.Equal(t, 2, *emitter.all()[0].Value)
}

func TestZonesAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := timer.NewRegistry(clock)
	emitter := &recordingEmitter{}
	hero := New(Config{Page: "welcome", Zone: "hero"}, registry, emitter, clock, nil)
	footer := New(Config{Page: "welcome", Zone: "footer"}, registry, emitter, clock, nil)

	hero.Observe(visible)
	footer.Observe(visible)
	clock.Advance(DefaultMinViewDuration)
	require.Eventually(t, func() bool {
		return hero.State() == StateStarted && footer.State() == StateStarted
	}, time.Second, 5*time.Millisecond)

	clock.Advance(2 * time.Second)
	hero.Observe(hidden)
	clock.Advance(3 * time.Second)
	footer.Close()

	events := emitter.all()
	require.Len(t, events, 2)
	assert.Equal(t, "hero", events[0].Zone)
	assert.Equal(t, 2, *events[0].Value)
	assert.Equal(t, "footer", events[1].Zone)
	assert.Equal(t, 5, *events[1].Value)
}
