// Package navigation owns the in-flight page transition and page-view timing.
package navigation

import (
	"sync"

	"github.com/RoofStorm/tiger-engagement/internal/dispatch"
	"github.com/RoofStorm/tiger-engagement/internal/model"
	"go.uber.org/zap"
)

type Timers interface {
	Start(key string)
	End(key string) (int, bool)
}

type Emitter interface {
	Track(ev dispatch.Event)
}

// Coordinator allows at most one navigation in flight. It is created once
// by the composition root and handed to whatever drives page changes.
type Coordinator struct {
	mu      sync.Mutex
	timers  Timers
	emitter Emitter
	logger  *zap.Logger

	current string
	target  string
	pending bool
	closed  bool
}

func New(timers Timers, emitter Emitter, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{timers: timers, emitter: emitter, logger: logger}
}

func pageKey(page string) string {
	return "page:" + page
}

// Begin reserves a navigation to page. It returns false when another
// navigation is already in flight or page is the current page.
func (c *Coordinator) Begin(page string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.pending || page == c.current {
		return false
	}
	c.pending = true
	c.target = page
	return true
}

// Complete finishes the in-flight navigation: the previous page's view is
// ended and reported, and the new page's view starts.
func (c *Coordinator) Complete() {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return
	}
	prev := c.current
	next := c.target
	c.current = next
	c.target = ""
	c.pending = false
	c.mu.Unlock()

	if prev != "" {
		c.endPage(prev)
	}
	c.timers.Start(pageKey(next))
	c.emitter.Track(dispatch.Event{Page: next, Action: model.ActionPageView})
	c.logger.Debug("navigation completed", zap.String("from", prev), zap.String("to", next))
}

func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	c.target = ""
}

// Navigate is Begin followed by Complete.
func (c *Coordinator) Navigate(page string) bool {
	if !c.Begin(page) {
		return false
	}
	c.Complete()
	return true
}

func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Close ends the current page view. Later navigations are refused.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = false
	prev := c.current
	c.mu.Unlock()

	if prev != "" {
		c.endPage(prev)
	}
}

func (c *Coordinator) endPage(page string) {
	seconds, ok := c.timers.End(pageKey(page))
	if !ok {
		return
	}
	c.emitter.Track(dispatch.Event{
		Page:   page,
		Action: model.ActionPageViewEnd,
		Value:  model.Seconds(seconds),
	})
}
