package corner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    [][]model.CornerRecord
	beacons [][]model.CornerRecord
	err     error
}

func (f *fakeSender) SendCorners(_ context.Context, records []model.CornerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, records)
	return f.err
}

func (f *fakeSender) BeaconCorners(records []model.CornerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beacons = append(f.beacons, records)
}

func (f *fakeSender) sends() [][]model.CornerRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]model.CornerRecord(nil), f.sent...)
}

func (f *fakeSender) beaconed() [][]model.CornerRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]model.CornerRecord(nil), f.beacons...)
}

func dwell(tr *Tracker, clock *clockwork.FakeClock, corner int, d time.Duration) {
	tr.Enter(corner)
	clock.Advance(d)
	tr.Leave(corner)
}

func TestShortDwellIsDropped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New(&fakeSender{}, clock, Config{}, nil)

	dwell(tr, clock, 1, 2*time.Second)
	assert.Zero(t, tr.Pending())

	dwell(tr, clock, 1, 2999*time.Millisecond)
	assert.Zero(t, tr.Pending())

	dwell(tr, clock, 1, 3*time.Second)
	assert.Equal(t, 1, tr.Pending())
}

func TestBatchSizeFlushesWithoutDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sender := &fakeSender{}
	tr := New(sender, clock, Config{}, nil)

	for i := range 4 {
		dwell(tr, clock, i, 3*time.Second)
	}
	assert.Empty(t, sender.sends())

	dwell(tr, clock, 4, 4*time.Second)
	tr.Wait()

	sends := sender.sends()
	require.Len(t, sends, 1)
	require.Len(t, sends[0], DefaultBatchSize)
	assert.Equal(t, 4, sends[0][4].Corner)
	assert.Equal(t, 4, sends[0][4].DurationSec)
	assert.Zero(t, tr.Pending())

	_, err := model.ParseTimestamp(sends[0][0].Timestamp)
	assert.NoError(t, err)
}

func TestFlushDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sender := &fakeSender{}
	tr := New(sender, clock, Config{}, nil)

	dwell(tr, clock, 2, 5*time.Second)
	clock.Advance(9 * time.Second)
	assert.Empty(t, sender.sends())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(sender.sends()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, sender.sends()[0][0].DurationSec)
}

func TestFailedSendDropsBatch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sender := &fakeSender{err: errors.New("offline")}
	tr := New(sender, clock, Config{BatchSize: 2}, nil)

	dwell(tr, clock, 1, 3*time.Second)
	dwell(tr, clock, 2, 3*time.Second)
	tr.Wait()

	assert.Len(t, sender.sends(), 1)
	assert.Zero(t, tr.Pending())

	err := tr.Flush(context.Background())
	assert.NoError(t, err)
}

func TestCloseBeaconsQueueAndActiveCorners(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sender := &fakeSender{}
	tr := New(sender, clock, Config{}, nil)

	dwell(tr, clock, 1, 3*time.Second)
	tr.Enter(2)
	tr.Enter(3)
	clock.Advance(4 * time.Second)
	tr.Leave(3)
	tr.Enter(3)
	clock.Advance(time.Second)

	tr.Close()

	beacons := sender.beaconed()
	require.Len(t, beacons, 1)
	corners := map[int]int{}
	for _, r := range beacons[0] {
		corners[r.Corner] = r.DurationSec
	}
	// corner 3's second dwell is only one second long
	assert.Equal(t, map[int]int{1: 3, 2: 5, 3: 4}, corners)
	assert.Len(t, beacons[0], 3)

	tr.Enter(4)
	clock.Advance(10 * time.Second)
	tr.Leave(4)
	assert.Zero(t, tr.Pending())
	assert.Empty(t, sender.sends())
}

func TestCloseWithNothingQueued(t *testing.T) {
	sender := &fakeSender{}
	tr := New(sender, clockwork.NewFakeClock(), Config{}, nil)
	tr.Close()
	tr.Close()
	assert.Empty(t, sender.beaconed())
}
