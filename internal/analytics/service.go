package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// cacheRetention is how long unique-session sets are kept in memory.
const cacheRetention = 24 * time.Hour

type Service struct {
	repo   Repository
	clock  clockwork.Clock
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]map[string]struct{}
}

func NewService(repo Repository, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		repo:     repo,
		clock:    clock,
		logger:   logger,
		sessions: make(map[string]map[string]struct{}),
	}
}

// ProcessEvent folds a dwell event into its hourly summary. Events that
// carry no duration are ignored.
func (s *Service) ProcessEvent(ctx context.Context, ev *model.TrackedEvent) error {
	if ev.Value == nil {
		return nil
	}
	var zone string
	switch ev.Action {
	case model.ActionZoneView:
		zone = ev.Zone
	case model.ActionPageViewEnd:
	default:
		return nil
	}

	at, err := model.ParseTimestamp(ev.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid event timestamp %q: %w", ev.Timestamp, err)
	}

	summary := NewSummary(at, ev.Page, zone, s.clock.Now().UTC())
	summary.AddView(*ev.Value)
	summary.SetUniqueSessions(s.markSession(summary.cacheKey(), ev.SessionID))

	if err := s.repo.UpsertSummary(ctx, summary); err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}

	s.logger.Debug("Dwell event processed",
		zap.String("page", ev.Page),
		zap.String("zone", zone),
		zap.Int("seconds", *ev.Value),
	)
	return nil
}

func (s *Service) markSession(key, sessionID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sessions[key]
	if !ok {
		set = make(map[string]struct{})
		s.sessions[key] = set
	}
	set[sessionID] = struct{}{}
	return int64(len(set))
}

// CreateMessageHandler decodes kafka values published by the collector.
func (s *Service) CreateMessageHandler() func(ctx context.Context, key, value []byte) error {
	return func(ctx context.Context, key, value []byte) error {
		var ev model.TrackedEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			s.logger.Error("Failed to unmarshal tracked event",
				zap.Error(err),
				zap.String("key", string(key)),
			)
			return err
		}
		return s.ProcessEvent(ctx, &ev)
	}
}

// CleanupOldCache drops unique-session sets for days older than the retention.
func (s *Service) CleanupOldCache() {
	cutoff := s.clock.Now().UTC().Add(-cacheRetention).Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.sessions {
		day, _, _ := strings.Cut(key, "|")
		if day < cutoff {
			delete(s.sessions, key)
			removed++
		}
	}
	s.logger.Debug("Cache cleanup completed", zap.Int("removed", removed))
}

// RunCleanup calls CleanupOldCache every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.CleanupOldCache()
		case <-ctx.Done():
			return
		}
	}
}
