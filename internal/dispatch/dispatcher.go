// Package dispatch batches tracked events and delivers them to the ingestion endpoint.
//
// Delivery is at-most-once: a batch that fails to send is logged and dropped.
// Ambient identity (session, user, device, referrer) is stamped onto events when
// a batch leaves the queue, so an event queued before login and flushed after it
// carries the logged-in user id.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize   = 10
	DefaultFlushDelay  = 5 * time.Second
	defaultSendTimeout = 10 * time.Second
)

// Event is what callers hand to Track. Identity and timestamp are added at send time.
type Event struct {
	Page      string
	Zone      string
	Component string
	Action    model.Action
	Value     *int
	Metadata  map[string]any
}

type Identity struct {
	SessionID string
	UserID    *string
	Device    string
	Referrer  string
}

type Sender interface {
	SendEvents(ctx context.Context, events []model.TrackedEvent) error
	// BeaconEvents must return immediately; delivery is not guaranteed.
	BeaconEvents(events []model.TrackedEvent)
}

type Config struct {
	BatchSize   int
	FlushDelay  time.Duration
	SendTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushDelay <= 0 {
		c.FlushDelay = DefaultFlushDelay
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
}

type Dispatcher struct {
	mu       sync.Mutex
	cfg      Config
	sender   Sender
	clock    clockwork.Clock
	logger   *zap.Logger
	identity Identity
	queue    []Event
	timer    clockwork.Timer
	timerGen uint64
	closed   bool
	inflight sync.WaitGroup
}

func New(sender Sender, clock clockwork.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	cfg.setDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:    cfg,
		sender: sender,
		clock:  clock,
		logger: logger,
	}
}

// Init sets the ambient identity. It is meant to run once per page lifetime;
// calling it again overwrites every field.
func (d *Dispatcher) Init(id Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.identity = id
	d.logger.Debug("dispatcher initialized",
		zap.String("session_id", id.SessionID),
		zap.String("device", id.Device),
	)
}

// UpdateUserID changes the ambient user id for batches sent from now on.
func (d *Dispatcher) UpdateUserID(userID *string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if userID == nil {
		d.identity.UserID = nil
		return
	}
	id := *userID
	d.identity.UserID = &id
}

// Track queues an event. Reaching the batch size starts a flush at once;
// otherwise the first queued event arms the flush delay.
func (d *Dispatcher) Track(ev Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Debug("dispatcher closed, event ignored",
			zap.String("page", ev.Page),
			zap.String("action", string(ev.Action)),
		)
		return
	}

	d.queue = append(d.queue, ev)
	if len(d.queue) >= d.cfg.BatchSize {
		batch := d.takeLocked()
		d.inflight.Add(1)
		d.mu.Unlock()
		go d.deliver(batch)
		return
	}

	if d.timer == nil {
		gen := d.timerGen
		d.timer = d.clock.AfterFunc(d.cfg.FlushDelay, func() { d.onDelay(gen) })
	}
	d.mu.Unlock()
}

func (d *Dispatcher) onDelay(gen uint64) {
	d.mu.Lock()
	if gen != d.timerGen || d.closed || len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.takeLocked()
	d.inflight.Add(1)
	d.mu.Unlock()

	d.deliver(batch)
}

// Flush sends everything queued and waits for the result. The error is also logged.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return nil
	}
	batch := d.takeLocked()
	d.mu.Unlock()

	return d.send(ctx, batch)
}

// Close hands whatever is still queued to the beacon transport and stops
// accepting events. It never waits for delivery.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	var batch []model.TrackedEvent
	if len(d.queue) > 0 {
		batch = d.takeLocked()
	} else {
		d.stopTimerLocked()
	}
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	d.logger.Debug("beaconing remaining events", zap.Int("count", len(batch)))
	d.sender.BeaconEvents(batch)
}

// Wait blocks until background flushes started by Track have finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) deliver(batch []model.TrackedEvent) {
	defer d.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()
	_ = d.send(ctx, batch)
}

func (d *Dispatcher) send(ctx context.Context, batch []model.TrackedEvent) error {
	if err := d.sender.SendEvents(ctx, batch); err != nil {
		d.logger.Error("failed to send analytics batch, dropping it",
			zap.Error(err),
			zap.Int("count", len(batch)),
		)
		return err
	}
	d.logger.Debug("analytics batch sent", zap.Int("count", len(batch)))
	return nil
}

// takeLocked drains the queue, stamping identity and send time.
func (d *Dispatcher) takeLocked() []model.TrackedEvent {
	d.stopTimerLocked()

	now := model.FormatTimestamp(d.clock.Now())
	var userID *string
	if d.identity.UserID != nil {
		id := *d.identity.UserID
		userID = &id
	}

	batch := make([]model.TrackedEvent, len(d.queue))
	for i, ev := range d.queue {
		batch[i] = model.TrackedEvent{
			SessionID: d.identity.SessionID,
			UserID:    userID,
			Device:    d.identity.Device,
			Referrer:  d.identity.Referrer,
			Page:      ev.Page,
			Zone:      ev.Zone,
			Component: ev.Component,
			Action:    ev.Action,
			Value:     ev.Value,
			Metadata:  ev.Metadata,
			Timestamp: now,
		}
	}
	d.queue = nil
	return batch
}

func (d *Dispatcher) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.timerGen++
}
