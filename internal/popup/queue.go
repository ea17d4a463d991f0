// Package popup arbitrates which engagement popup is on screen.
//
// Any component may enqueue; only one item is displayed at a time and the
// display slot is filled by reconcile, which runs after every mutation.
package popup

import (
	"reflect"
	"slices"
	"sync"

	"go.uber.org/zap"
)

type Type string

const (
	TypeDailyLogin     Type = "DAILY_LOGIN"
	TypeMonthlyRankWin Type = "MONTHLY_RANK_WIN"
)

const (
	PriorityDailyLogin     = 1
	PriorityMonthlyRankWin = 2
)

type Item struct {
	Type     Type
	Priority int
	Payload  any
}

type DailyLoginPayload struct {
	Points int
	Streak int
}

type MonthlyRankWinPayload struct {
	NotificationID string
	Rank           int
	Month          string
}

func DailyLogin(p DailyLoginPayload) Item {
	return Item{Type: TypeDailyLogin, Priority: PriorityDailyLogin, Payload: p}
}

func MonthlyRankWin(p MonthlyRankWinPayload) Item {
	return Item{Type: TypeMonthlyRankWin, Priority: PriorityMonthlyRankWin, Payload: p}
}

func (i Item) same(other Item) bool {
	return i.Type == other.Type && reflect.DeepEqual(i.Payload, other.Payload)
}

type Queue struct {
	mu          sync.Mutex
	current     *Item
	pending     []Item
	subscribers []func(Item)
	logger      *zap.Logger
}

func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{logger: logger}
}

// Enqueue adds item unless an identical (type, payload) is displayed or
// waiting. It reports whether the item was accepted.
func (q *Queue) Enqueue(item Item) bool {
	return q.EnqueueAll(item) == 1
}

// EnqueueAll inserts items as a single update: the display slot is
// reconciled once, after every item has been sorted into pending. It returns
// the number of items accepted.
func (q *Queue) EnqueueAll(items ...Item) int {
	q.mu.Lock()
	accepted := 0
	for _, item := range items {
		if q.isDuplicateLocked(item) {
			q.logger.Debug("duplicate popup ignored", zap.String("type", string(item.Type)))
			continue
		}
		q.pending = append(q.pending, item)
		accepted++
	}
	slices.SortStableFunc(q.pending, func(a, b Item) int {
		return b.Priority - a.Priority
	})
	promoted, subs := q.reconcileLocked()
	q.mu.Unlock()

	notify(promoted, subs)
	return accepted
}

func (q *Queue) isDuplicateLocked(item Item) bool {
	if q.current != nil && q.current.same(item) {
		return true
	}
	return slices.ContainsFunc(q.pending, item.same)
}

// CloseCurrent dismisses the displayed item. The next pending item, if any,
// is promoted.
func (q *Queue) CloseCurrent() {
	q.mu.Lock()
	q.current = nil
	promoted, subs := q.reconcileLocked()
	q.mu.Unlock()

	notify(promoted, subs)
}

func (q *Queue) Current() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return Item{}, false
	}
	return *q.current, true
}

func (q *Queue) Pending() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.pending)
}

// Subscribe registers fn to be called with every promoted item. fn is called
// outside the queue lock and may call back into the queue.
func (q *Queue) Subscribe(fn func(Item)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribers = append(q.subscribers, fn)
}

// reconcileLocked derives the display slot from (current, pending): an empty
// slot takes the head of pending.
func (q *Queue) reconcileLocked() (*Item, []func(Item)) {
	if q.current != nil || len(q.pending) == 0 {
		return nil, nil
	}
	head := q.pending[0]
	q.pending = slices.Delete(q.pending, 0, 1)
	q.current = &head
	return &head, slices.Clone(q.subscribers)
}

func notify(item *Item, subs []func(Item)) {
	if item == nil {
		return
	}
	for _, fn := range subs {
		fn(*item)
	}
}
