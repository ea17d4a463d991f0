// Package corner records dwell time on the numbered corners of the legacy
// single-page layout and ships them in small batches.
package corner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/RoofStorm/tiger-engagement/internal/timer"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize  = 5
	DefaultFlushDelay = 10 * time.Second
	DefaultMinDwell   = model.MinCornerDwellSec * time.Second
	sendTimeout       = 10 * time.Second
)

type Sender interface {
	SendCorners(ctx context.Context, records []model.CornerRecord) error
	BeaconCorners(records []model.CornerRecord)
}

type Config struct {
	BatchSize  int
	FlushDelay time.Duration
	MinDwell   time.Duration
}

type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	minSec   int
	sender   Sender
	clock    clockwork.Clock
	timers   *timer.Registry
	logger   *zap.Logger
	active   map[int]struct{}
	queue    []model.CornerRecord
	timer    clockwork.Timer
	timerGen uint64
	closed   bool
	inflight sync.WaitGroup
}

func New(sender Sender, clock clockwork.Clock, cfg Config, logger *zap.Logger) *Tracker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = DefaultFlushDelay
	}
	if cfg.MinDwell <= 0 {
		cfg.MinDwell = DefaultMinDwell
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:    cfg,
		minSec: int(cfg.MinDwell / time.Second),
		sender: sender,
		clock:  clock,
		timers: timer.NewRegistry(clock),
		logger: logger,
		active: make(map[int]struct{}),
	}
}

func key(corner int) string {
	return fmt.Sprintf("corner:%d", corner)
}

// Enter starts timing a corner. Entering a corner that is already being
// timed keeps the original start.
func (t *Tracker) Enter(corner int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.active[corner] = struct{}{}
	t.timers.Start(key(corner))
}

// Leave stops timing a corner and queues the dwell if it is long enough.
func (t *Tracker) Leave(corner int) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	batch := t.leaveLocked(corner)
	if batch == nil {
		t.mu.Unlock()
		return
	}
	t.inflight.Add(1)
	t.mu.Unlock()

	go t.deliver(batch)
}

// leaveLocked records the dwell and returns a batch when the size threshold
// was reached.
func (t *Tracker) leaveLocked(corner int) []model.CornerRecord {
	delete(t.active, corner)
	seconds, ok := t.timers.End(key(corner))
	if !ok {
		return nil
	}
	if seconds < t.minSec {
		t.logger.Debug("corner dwell too short, dropped",
			zap.Int("corner", corner),
			zap.Int("seconds", seconds),
		)
		return nil
	}

	t.queue = append(t.queue, model.CornerRecord{
		Corner:      corner,
		DurationSec: seconds,
		Timestamp:   model.FormatTimestamp(t.clock.Now()),
	})
	if len(t.queue) >= t.cfg.BatchSize {
		return t.takeLocked()
	}
	if t.timer == nil && !t.closed {
		gen := t.timerGen
		t.timer = t.clock.AfterFunc(t.cfg.FlushDelay, func() { t.onDelay(gen) })
	}
	return nil
}

func (t *Tracker) onDelay(gen uint64) {
	t.mu.Lock()
	if gen != t.timerGen || t.closed || len(t.queue) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.takeLocked()
	t.inflight.Add(1)
	t.mu.Unlock()

	t.deliver(batch)
}

// Flush sends the queued records and waits for the result.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if len(t.queue) == 0 {
		t.mu.Unlock()
		return nil
	}
	batch := t.takeLocked()
	t.mu.Unlock()

	return t.send(ctx, batch)
}

// Close ends every active corner, then beacons the queue without waiting.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	var batch []model.CornerRecord
	for corner := range t.active {
		batch = append(batch, t.leaveLocked(corner)...)
	}
	t.stopTimerLocked()
	batch = append(batch, t.queue...)
	t.queue = nil
	t.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	t.logger.Debug("beaconing corner records", zap.Int("count", len(batch)))
	t.sender.BeaconCorners(batch)
}

func (t *Tracker) Wait() {
	t.inflight.Wait()
}

func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *Tracker) deliver(batch []model.CornerRecord) {
	defer t.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	_ = t.send(ctx, batch)
}

func (t *Tracker) send(ctx context.Context, batch []model.CornerRecord) error {
	if err := t.sender.SendCorners(ctx, batch); err != nil {
		t.logger.Error("failed to send corner analytics, dropping batch",
			zap.Error(err),
			zap.Int("count", len(batch)),
		)
		return err
	}
	return nil
}

func (t *Tracker) takeLocked() []model.CornerRecord {
	t.stopTimerLocked()
	batch := t.queue
	t.queue = nil
	return batch
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.timerGen++
}
