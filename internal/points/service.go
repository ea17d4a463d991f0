package points

import (
	"context"
	"fmt"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DailyLoginPoints = 10
	// StreakBonus is added per consecutive day after the first, up to MaxStreakBonus.
	StreakBonus    = 2
	MaxStreakBonus = 10
)

type Service struct {
	repo   Repository
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewService(repo Repository, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

// ClaimDailyLogin awards the login bonus at most once per user per UTC day.
// A second claim on the same day returns Awarded=false with the current streak.
func (s *Service) ClaimDailyLogin(ctx context.Context, userID string) (model.DailyLoginReward, error) {
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)

	last, err := s.repo.LastClaim(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load last claim", zap.String("user_id", userID), zap.Error(err))
		return model.DailyLoginReward{}, fmt.Errorf("failed to claim daily login: %w", err)
	}
	if last != nil && !last.Day.UTC().Before(today) {
		return model.DailyLoginReward{Awarded: false, Streak: last.Streak}, nil
	}

	streak := 1
	if last != nil && last.Day.UTC().Equal(today.AddDate(0, 0, -1)) {
		streak = last.Streak + 1
	}
	claim := Claim{
		UserID: userID,
		Day:    today,
		Streak: streak,
		Points: DailyLoginPoints + min((streak-1)*StreakBonus, MaxStreakBonus),
	}

	saved, err := s.repo.SaveClaim(ctx, claim)
	if err != nil {
		s.logger.Error("failed to save claim", zap.String("user_id", userID), zap.Error(err))
		return model.DailyLoginReward{}, fmt.Errorf("failed to claim daily login: %w", err)
	}
	if !saved {
		// a concurrent request claimed first
		return model.DailyLoginReward{Awarded: false, Streak: streak}, nil
	}

	s.logger.Info("Daily login awarded",
		zap.String("user_id", userID),
		zap.Int("streak", streak),
		zap.Int("points", claim.Points),
	)
	return model.DailyLoginReward{Awarded: true, Points: claim.Points, Streak: streak}, nil
}
