package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const summaryColumns = "id, date, hour, page, zone, views, total_seconds, unique_sessions, updated_at"

// Counters accumulate; unique_sessions only grows because the in-process
// session sets are rebuilt empty after a restart.
const upsertSummarySQL = `
	INSERT INTO dwell_summary (date, hour, page, zone, views, total_seconds, unique_sessions, updated_at)
	VALUES (:date, :hour, :page, :zone, :views, :total_seconds, :unique_sessions, :updated_at)
	ON CONFLICT (date, hour, page, zone) DO UPDATE SET
		views = dwell_summary.views + EXCLUDED.views,
		total_seconds = dwell_summary.total_seconds + EXCLUDED.total_seconds,
		unique_sessions = GREATEST(dwell_summary.unique_sessions, EXCLUDED.unique_sessions),
		updated_at = EXCLUDED.updated_at
	RETURNING id`

// Repository persists hourly dwell summaries.
type Repository interface {
	UpsertSummary(ctx context.Context, summary *Summary) error
	GetSummariesByDateRange(ctx context.Context, from, to time.Time, page string) ([]*Summary, error)
}

type sqlRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, logger *zap.Logger) Repository {
	return &sqlRepository{db: db, log: logger}
}

func (r *sqlRepository) UpsertSummary(ctx context.Context, summary *Summary) error {
	query, args, err := r.db.BindNamed(upsertSummarySQL, summary)
	if err != nil {
		return fmt.Errorf("bind summary: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&summary.ID); err != nil {
		r.log.Error("summary upsert failed",
			zap.String("key", summary.cacheKey()),
			zap.Error(err),
		)
		return fmt.Errorf("upsert summary %s: %w", summary.cacheKey(), err)
	}

	r.log.Debug("summary upserted", zap.String("key", summary.cacheKey()), zap.Int("id", summary.ID))
	return nil
}

// GetSummariesByDateRange returns the rows whose day lies in [from, to],
// optionally restricted to one page.
func (r *sqlRepository) GetSummariesByDateRange(ctx context.Context, from, to time.Time, page string) ([]*Summary, error) {
	query := "SELECT " + summaryColumns + " FROM dwell_summary WHERE date >= $1 AND date <= $2"
	args := []any{from, to}
	if page != "" {
		query += " AND page = $3"
		args = append(args, page)
	}
	query += " ORDER BY date, hour, page, zone"

	var out []*Summary
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("select summaries: %w", err)
	}
	return out, nil
}
