package timer

import (
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndWithoutElapsedTimeIsZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)

	r.Start("welcome:hero")
	got, ok := r.End("welcome:hero")

	require.True(t, ok)
	assert.Equal(t, 0, got)
}

func TestEndWithoutStart(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())

	_, ok := r.End("never")
	assert.False(t, ok)
}

func TestSecondStartKeepsFirstStartTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)

	r.Start("k")
	clock.Advance(4 * time.Second)
	r.Start("k")
	clock.Advance(2 * time.Second)

	got, ok := r.End("k")
	require.True(t, ok)
	assert.Equal(t, 6, got)
}

func TestEndTwice(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)

	r.Start("k")
	clock.Advance(time.Second)
	_, ok := r.End("k")
	require.True(t, ok)

	_, ok = r.End("k")
	assert.False(t, ok)
}

func TestKeyReuseAfterEnd(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)

	r.Start("k")
	clock.Advance(10 * time.Second)
	r.End("k")

	r.Start("k")
	clock.Advance(3 * time.Second)
	got, ok := r.End("k")

	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestElapsedIsFloored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)

	r.Start("k")
	clock.Advance(2999 * time.Millisecond)
	got, _ := r.End("k")

	assert.Equal(t, 2, got)
}

func TestIndependentKeys(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)

	r.Start("a")
	clock.Advance(2 * time.Second)
	r.Start("b")
	clock.Advance(time.Second)

	keys := r.ActiveKeys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)

	a, _ := r.End("a")
	b, _ := r.End("b")
	assert.Equal(t, 3, a)
	assert.Equal(t, 1, b)
	assert.False(t, r.Active("a"))
}
