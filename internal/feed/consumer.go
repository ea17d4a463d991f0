// Package feed keeps the signed-in user's notification list and turns unread
// rank wins into popups.
package feed

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/RoofStorm/tiger-engagement/internal/popup"
	"go.uber.org/zap"
)

type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticated
)

type Client interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// Readiness reports whether the page may show notifications. Pages with a
// blocking intro video implement it; nil means always ready.
type Readiness interface {
	ContentReady() bool
	VideoPlaying() bool
}

type PopupSink interface {
	EnqueueAll(items ...popup.Item) int
}

type Consumer struct {
	mu        sync.Mutex
	client    Client
	readiness Readiness
	popups    PopupSink
	logger    *zap.Logger

	auth    AuthState
	userID  string
	fetched bool // fetched for the current authenticated transition
	items   []model.Notification
}

func New(client Client, readiness Readiness, popups PopupSink, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		client:    client,
		readiness: readiness,
		popups:    popups,
		logger:    logger,
	}
}

func (c *Consumer) ready() bool {
	if c.readiness == nil {
		return true
	}
	return c.readiness.ContentReady() && !c.readiness.VideoPlaying()
}

// SetAuth records an authentication transition. Entering the authenticated
// state (or switching user) arms one fetch, which runs as soon as the page is
// ready. Signing out clears the list.
func (c *Consumer) SetAuth(ctx context.Context, state AuthState, userID string) {
	c.mu.Lock()
	if state == Unauthenticated {
		c.auth = Unauthenticated
		c.userID = ""
		c.fetched = false
		c.items = nil
		c.mu.Unlock()
		return
	}
	if c.auth != Authenticated || c.userID != userID {
		c.fetched = false
		c.items = nil
	}
	c.auth = Authenticated
	c.userID = userID
	c.mu.Unlock()

	c.evaluate(ctx)
}

// SetReady re-evaluates the readiness gate, typically when the intro video ends.
func (c *Consumer) SetReady(ctx context.Context) {
	c.evaluate(ctx)
}

func (c *Consumer) evaluate(ctx context.Context) {
	c.mu.Lock()
	due := c.auth == Authenticated && !c.fetched && c.ready()
	if due {
		c.fetched = true
	}
	c.mu.Unlock()

	if due {
		_ = c.Refresh(ctx)
	}
}

// Refresh fetches the list now. On failure the current list is kept.
func (c *Consumer) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.auth != Authenticated {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := c.userID
	c.mu.Unlock()

	items, err := c.client.ListNotifications(ctx)
	if err != nil {
		c.logger.Error("failed to fetch notifications", zap.Error(err))
		return fmt.Errorf("fetch notifications: %w", err)
	}

	c.mu.Lock()
	if c.auth != Authenticated || c.userID != userID {
		// signed out or switched user while the request was in flight
		c.mu.Unlock()
		return nil
	}
	c.items = items
	c.mu.Unlock()

	c.logger.Debug("notifications fetched", zap.Int("count", len(items)))
	c.enqueueRankWins(items)
	return nil
}

func (c *Consumer) enqueueRankWins(items []model.Notification) {
	if c.popups == nil {
		return
	}
	var popups []popup.Item
	for _, n := range items {
		if n.IsRead {
			continue
		}
		meta, ok := n.RankWin()
		if !ok {
			continue
		}
		popups = append(popups, popup.MonthlyRankWin(popup.MonthlyRankWinPayload{
			NotificationID: n.ID,
			Rank:           meta.Rank,
			Month:          meta.Month,
		}))
	}
	if len(popups) > 0 {
		c.popups.EnqueueAll(popups...)
	}
}

func (c *Consumer) Items() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

func (c *Consumer) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// MarkAsRead flips the local flag only after the server confirms.
func (c *Consumer) MarkAsRead(ctx context.Context, id string) error {
	c.mu.Lock()
	known := slices.ContainsFunc(c.items, func(n model.Notification) bool { return n.ID == id })
	c.mu.Unlock()
	if !known {
		return ErrNotificationNotFound
	}

	if err := c.client.MarkNotificationRead(ctx, id); err != nil {
		c.logger.Error("failed to mark notification as read",
			zap.String("notification_id", id),
			zap.Error(err),
		)
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}

	c.mu.Lock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].IsRead = true
		}
	}
	c.mu.Unlock()
	return nil
}
