// Package points awards loyalty points, currently the once-a-day login bonus.
package points

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RoofStorm/tiger-engagement/pkg/postgres"
	"go.uber.org/zap"
)

type Claim struct {
	UserID string    `db:"user_id"`
	Day    time.Time `db:"day"`
	Streak int       `db:"streak"`
	Points int       `db:"points"`
}

type Repository interface {
	// LastClaim returns the most recent claim of userID, or nil.
	LastClaim(ctx context.Context, userID string) (*Claim, error)
	// SaveClaim records the claim and credits the points. It reports false
	// when a claim for that day already exists.
	SaveClaim(ctx context.Context, claim Claim) (bool, error)
}

type repository struct {
	db     *postgres.DB
	logger *zap.Logger
}

func NewRepository(db *postgres.DB, logger *zap.Logger) Repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

func (r *repository) LastClaim(ctx context.Context, userID string) (*Claim, error) {
	query := `
		SELECT user_id, day, streak, points
		FROM daily_login_claims
		WHERE user_id = $1
		ORDER BY day DESC
		LIMIT 1
	`

	var claim Claim
	if err := r.db.GetContext(ctx, &claim, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last claim: %w", err)
	}
	return &claim, nil
}

func (r *repository) SaveClaim(ctx context.Context, claim Claim) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
		INSERT INTO daily_login_claims (user_id, day, streak, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, day) DO NOTHING
	`, claim.UserID, claim.Day, claim.Streak, claim.Points)
	if err != nil {
		return false, fmt.Errorf("failed to insert claim: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_points (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance = user_points.balance + EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
	`, claim.UserID, claim.Points)
	if err != nil {
		return false, fmt.Errorf("failed to credit points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Daily login claimed",
		zap.String("user_id", claim.UserID),
		zap.Int("streak", claim.Streak),
		zap.Int("points", claim.Points),
	)
	return true, nil
}
