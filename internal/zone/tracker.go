// Package zone measures how long a page region stays visible.
//
// A tracker moves Idle -> Pending when the region becomes sufficiently
// visible, Pending -> Started once it has stayed visible for MinViewDuration,
// and back to Idle when visibility is lost, emitting a zone_view event with
// the dwell time if a timer was running.
package zone

import (
	"sync"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/dispatch"
	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultThreshold       = 0.5
	DefaultMinViewDuration = 1500 * time.Millisecond
	DefaultRootMargin      = "0px"
)

type State int

const (
	StateIdle State = iota
	StatePending
	StateStarted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarted:
		return "started"
	default:
		return "idle"
	}
}

type Config struct {
	Page            string
	Zone            string
	Component       string
	Threshold       float64
	MinViewDuration time.Duration
	RootMargin      string
	Metadata        map[string]any
}

// Key is the timer registry key for this zone.
func (c Config) Key() string {
	return c.Page + ":" + c.Zone
}

// Entry is one intersection observation.
type Entry struct {
	Intersecting bool
	Ratio        float64
}

// Timers is the subset of the timer registry a tracker needs.
type Timers interface {
	Start(key string)
	End(key string) (int, bool)
}

type Emitter interface {
	Track(ev dispatch.Event)
}

type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	key     string
	margin  Margin
	timers  Timers
	emitter Emitter
	clock   clockwork.Clock
	logger  *zap.Logger

	state   State
	visible bool
	pending clockwork.Timer
	gen     uint64
	closed  bool
}

func New(cfg Config, timers Timers, emitter Emitter, clock clockwork.Clock, logger *zap.Logger) *Tracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinViewDuration <= 0 {
		cfg.MinViewDuration = DefaultMinViewDuration
	}
	if cfg.RootMargin == "" {
		cfg.RootMargin = DefaultRootMargin
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	margin, err := ParseRootMargin(cfg.RootMargin)
	if err != nil {
		logger.Warn("invalid root margin, using 0px",
			zap.String("root_margin", cfg.RootMargin),
			zap.Error(err),
		)
	}

	return &Tracker{
		cfg:     cfg,
		key:     cfg.Key(),
		margin:  margin,
		timers:  timers,
		emitter: emitter,
		clock:   clock,
		logger:  logger.With(zap.String("zone_key", cfg.Key())),
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Config() Config {
	return t.cfg
}

// Observe feeds one intersection callback into the state machine.
func (t *Tracker) Observe(e Entry) {
	visible := e.Intersecting && e.Ratio >= t.cfg.Threshold

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.visible = visible

	switch {
	case visible && t.state == StateIdle:
		t.state = StatePending
		gen := t.gen
		t.pending = t.clock.AfterFunc(t.cfg.MinViewDuration, func() { t.onMinViewElapsed(gen) })
		t.mu.Unlock()
		return

	case !visible && t.state == StatePending:
		t.cancelPendingLocked()
		t.state = StateIdle
		t.mu.Unlock()
		return

	case !visible && t.state == StateStarted:
		t.state = StateIdle
		t.mu.Unlock()
		t.finish()
		return
	}
	t.mu.Unlock()
}

// ObserveRects computes the intersection ratio from layout rectangles.
func (t *Tracker) ObserveRects(target, viewport Rect) {
	ratio := Ratio(target, viewport, t.margin)
	t.Observe(Entry{Intersecting: ratio > 0, Ratio: ratio})
}

// Close is the teardown path: a pending start is cancelled, a running timer
// is ended and reported.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	started := t.state == StateStarted
	t.cancelPendingLocked()
	t.state = StateIdle
	t.mu.Unlock()

	if started {
		t.finish()
	}
}

func (t *Tracker) onMinViewElapsed(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || t.closed || t.state != StatePending {
		return
	}
	t.pending = nil
	if !t.visible {
		t.state = StateIdle
		return
	}
	t.timers.Start(t.key)
	t.state = StateStarted
	t.logger.Debug("zone view started")
}

func (t *Tracker) finish() {
	seconds, ok := t.timers.End(t.key)
	if !ok {
		return
	}
	t.emitter.Track(dispatch.Event{
		Page:      t.cfg.Page,
		Zone:      t.cfg.Zone,
		Component: t.cfg.Component,
		Action:    model.ActionZoneView,
		Value:     model.Seconds(seconds),
		Metadata:  t.cfg.Metadata,
	})
	t.logger.Debug("zone view ended", zap.Int("seconds", seconds))
}

func (t *Tracker) cancelPendingLocked() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.gen++
}
