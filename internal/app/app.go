// Package app wires the tracking SDK together. One App lives for the
// lifetime of a page or client process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/RoofStorm/tiger-engagement/internal/config"
	"github.com/RoofStorm/tiger-engagement/internal/corner"
	"github.com/RoofStorm/tiger-engagement/internal/dispatch"
	"github.com/RoofStorm/tiger-engagement/internal/feed"
	"github.com/RoofStorm/tiger-engagement/internal/navigation"
	"github.com/RoofStorm/tiger-engagement/internal/popup"
	"github.com/RoofStorm/tiger-engagement/internal/session"
	"github.com/RoofStorm/tiger-engagement/internal/timer"
	"github.com/RoofStorm/tiger-engagement/internal/transport"
	"github.com/RoofStorm/tiger-engagement/internal/zone"
	"github.com/RoofStorm/tiger-engagement/pkg/kvstore"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Options struct {
	Client config.ClientConfig

	// Optional overrides.
	HTTPClient *http.Client
	Storage    kvstore.Store
	Clock      clockwork.Clock
	Readiness  feed.Readiness
	Logger     *zap.Logger
}

type App struct {
	cfg         config.ClientConfig
	clock       clockwork.Clock
	logger      *zap.Logger
	storage     kvstore.Store
	ownsStorage bool

	sessions   *session.Store
	timers     *timer.Registry
	transport  *transport.HTTP
	dispatcher *dispatch.Dispatcher
	corners    *corner.Tracker
	popups     *popup.Queue
	feed       *feed.Consumer
	navigation *navigation.Coordinator

	mu     sync.Mutex
	zones  []*zone.Tracker
	closed bool
}

func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg := opts.Client

	storage := opts.Storage
	ownsStorage := false
	if storage == nil {
		var err error
		storage, err = kvstore.New(ctx, kvstore.Config{
			Driver:        cfg.Session.Driver,
			SQLitePath:    cfg.Session.SQLitePath,
			RedisAddress:  cfg.Session.RedisAddress,
			RedisPassword: cfg.Session.RedisPassword,
			RedisDB:       cfg.Session.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("open session storage: %w", err)
		}
		ownsStorage = true
	}

	httpTransport, err := transport.NewHTTP(transport.Config{
		APIBase:       cfg.APIBase,
		Timeout:       cfg.RequestTimeout,
		BeaconTimeout: cfg.BeaconTimeout,
	}, opts.HTTPClient, logger.Named("transport"))
	if err != nil {
		if ownsStorage {
			_ = storage.Close()
		}
		return nil, fmt.Errorf("create transport: %w", err)
	}

	a := &App{
		cfg:         cfg,
		clock:       clock,
		logger:      logger,
		storage:     storage,
		ownsStorage: ownsStorage,
		sessions:    session.NewStore(storage, logger.Named("session")),
		timers:      timer.NewRegistry(clock),
		transport:   httpTransport,
		popups:      popup.NewQueue(logger.Named("popup")),
	}

	a.dispatcher = dispatch.New(httpTransport, clock, dispatch.Config{
		BatchSize:  cfg.BatchSize,
		FlushDelay: cfg.FlushDelay,
	}, logger.Named("dispatch"))

	id := a.sessions.Identity(ctx)
	a.dispatcher.Init(dispatch.Identity{
		SessionID: id.SessionID,
		UserID:    id.UserID,
		Device:    cfg.Device,
		Referrer:  cfg.Referrer,
	})

	a.corners = corner.New(httpTransport, clock, corner.Config{
		BatchSize:  cfg.CornerBatchSize,
		FlushDelay: cfg.CornerFlushDelay,
		MinDwell:   cfg.CornerMinDwell,
	}, logger.Named("corner"))
	a.feed = feed.New(httpTransport, opts.Readiness, a.popups, logger.Named("feed"))
	a.navigation = navigation.New(a.timers, a.dispatcher, logger.Named("navigation"))

	logger.Info("tracking initialized",
		zap.String("session_id", id.SessionID),
		zap.String("api_base", cfg.APIBase),
	)
	return a, nil
}

func (a *App) Track(ev dispatch.Event) {
	a.dispatcher.Track(ev)
}

// Zone creates a visibility tracker for one page region. Unset thresholds
// come from the client configuration. The tracker is closed with the App.
func (a *App) Zone(cfg zone.Config) *zone.Tracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = a.cfg.ZoneThreshold
	}
	if cfg.MinViewDuration <= 0 {
		cfg.MinViewDuration = a.cfg.ZoneMinViewDuration
	}
	tr := zone.New(cfg, a.timers, a.dispatcher, a.clock, a.logger.Named("zone"))

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		tr.Close()
		return tr
	}
	a.zones = append(a.zones, tr)
	return tr
}

// Login applies an authenticated transition: later batches carry userID,
// the notification feed loads and the daily login reward is claimed.
func (a *App) Login(ctx context.Context, userID, token string) {
	a.sessions.SetUserID(&userID)
	a.dispatcher.UpdateUserID(a.sessions.UserID())
	a.transport.SetToken(token)

	a.feed.SetAuth(ctx, feed.Authenticated, userID)

	reward, err := a.transport.ClaimDailyLogin(ctx)
	if err != nil {
		a.logger.Warn("failed to claim daily login reward", zap.Error(err))
		return
	}
	if reward.Awarded {
		a.popups.Enqueue(popup.DailyLogin(popup.DailyLoginPayload{
			Points: reward.Points,
			Streak: reward.Streak,
		}))
	}
}

func (a *App) Logout(ctx context.Context) {
	a.sessions.SetUserID(nil)
	a.dispatcher.UpdateUserID(nil)
	a.transport.SetToken("")
	a.feed.SetAuth(ctx, feed.Unauthenticated, "")
}

// Close is the teardown path. Active zone and page timers are ended and
// reported, then queued events and corner records leave by beacon.
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	zones := a.zones
	a.zones = nil
	a.mu.Unlock()

	a.navigation.Close()
	for _, z := range zones {
		z.Close()
	}
	a.dispatcher.Close()
	a.corners.Close()

	if a.ownsStorage {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("failed to close session storage", zap.Error(err))
		}
	}
}

// Wait blocks until background sends, including beacons, have finished.
// A page never waits; a command-line client does before exiting.
func (a *App) Wait() {
	a.dispatcher.Wait()
	a.corners.Wait()
	a.transport.WaitBeacons()
}

func (a *App) SessionID(ctx context.Context) string {
	return a.sessions.SessionID(ctx)
}

func (a *App) Corners() *corner.Tracker {
	return a.corners
}

func (a *App) Popups() *popup.Queue {
	return a.popups
}

func (a *App) Feed() *feed.Consumer {
	return a.feed
}

func (a *App) Navigation() *navigation.Coordinator {
	return a.navigation
}

func (a *App) Flush(ctx context.Context) error {
	return a.dispatcher.Flush(ctx)
}

func (a *App) SetReady(ctx context.Context) {
	a.feed.SetReady(ctx)
}
