package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type KafkaProducer interface {
	SendMessage(ctx context.Context, key string, value any) error
}

// Observer receives ingestion counts, typically prometheus counters.
type Observer interface {
	ObserveIngest(kind string, accepted, rejected int)
	ObservePublishFailure()
}

const (
	KindEvents  = "events"
	KindCorners = "corners"
)

type Service struct {
	repo     Repository
	producer KafkaProducer
	observer Observer
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewService wires the ingestion pipeline. producer and observer may be nil.
func NewService(repo Repository, producer KafkaProducer, observer Observer, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		repo:     repo,
		producer: producer,
		observer: observer,
		clock:    clock,
		logger:   logger,
	}
}

// TrackBatch validates, stores and publishes a batch. Invalid events are
// skipped individually; the batch fails only when nothing in it is valid or
// the store is unavailable. Publishing is best effort.
func (s *Service) TrackBatch(ctx context.Context, batch []model.TrackedEvent, clientIP string) (Result, error) {
	if len(batch) == 0 {
		return Result{}, ErrEmptyBatch
	}

	now := s.clock.Now().UTC()
	events := make([]*Event, 0, len(batch))
	var firstErr error
	for i, te := range batch {
		ev, err := NewEvent(te, clientIP, now)
		if err != nil {
			s.logger.Warn("Invalid tracked event",
				zap.Int("index", i),
				zap.String("page", te.Page),
				zap.String("action", string(te.Action)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		events = append(events, ev)
	}

	result := Result{Accepted: len(events), Rejected: len(batch) - len(events)}
	if len(events) == 0 {
		s.observe(KindEvents, result)
		return result, fmt.Errorf("%w: %w", ErrNoValidEvents, firstErr)
	}

	if _, err := s.repo.CreateBatch(ctx, events); err != nil {
		s.logger.Error("failed to store event batch", zap.Error(err))
		return Result{}, fmt.Errorf("failed to save batch: %w", err)
	}
	s.observe(KindEvents, result)

	s.publish(ctx, events)

	s.logger.Info("Tracked events ingested",
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
	)
	return result, nil
}

// publish sends each event keyed by session id so one session stays on one
// partition.
func (s *Service) publish(ctx context.Context, events []*Event) {
	if s.producer == nil {
		return
	}
	for _, ev := range events {
		if err := s.producer.SendMessage(ctx, ev.SessionID, ev.Tracked()); err != nil {
			s.logger.Error("failed to publish tracked event",
				zap.String("event_id", ev.ID.String()),
				zap.Error(err),
			)
			if s.observer != nil {
				s.observer.ObservePublishFailure()
			}
		}
	}
}

func (s *Service) TrackCorners(ctx context.Context, batch []model.CornerRecord, clientIP string) (Result, error) {
	if len(batch) == 0 {
		return Result{}, ErrEmptyBatch
	}

	now := s.clock.Now().UTC()
	views := make([]*CornerView, 0, len(batch))
	var firstErr error
	for _, rec := range batch {
		v, err := NewCornerView(rec, clientIP, now)
		if err != nil {
			if !errors.Is(err, ErrDwellTooShort) {
				s.logger.Warn("Invalid corner record", zap.Int("corner", rec.Corner), zap.Error(err))
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		views = append(views, v)
	}

	result := Result{Accepted: len(views), Rejected: len(batch) - len(views)}
	if len(views) == 0 {
		s.observe(KindCorners, result)
		return result, fmt.Errorf("%w: %w", ErrNoValidEvents, firstErr)
	}

	if _, err := s.repo.CreateCornerViews(ctx, views); err != nil {
		s.logger.Error("failed to store corner views", zap.Error(err))
		return Result{}, fmt.Errorf("failed to save corner views: %w", err)
	}
	s.observe(KindCorners, result)
	return result, nil
}

func (s *Service) observe(kind string, r Result) {
	if s.observer != nil {
		s.observer.ObserveIngest(kind, r.Accepted, r.Rejected)
	}
}
