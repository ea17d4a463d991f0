package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"go.uber.org/zap"
)

const DefaultListLimit = 50

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) List(ctx context.Context, userID string) ([]model.Notification, error) {
	items, err := s.repo.ListByUser(ctx, userID, DefaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if !errors.Is(err, ErrNotificationNotFound) {
			s.logger.Error("failed to mark notification read",
				zap.String("notification_id", id),
				zap.Error(err),
			)
		}
		return err
	}

	s.logger.Debug("notification marked read",
		zap.String("notification_id", id),
		zap.String("user_id", userID),
	)
	return nil
}
