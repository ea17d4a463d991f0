package ingest

import (
	"context"
	"fmt"

	"github.com/RoofStorm/tiger-engagement/pkg/postgres"
	"go.uber.org/zap"
)

type Repository interface {
	CreateBatch(ctx context.Context, events []*Event) (int, error)
	CreateCornerViews(ctx context.Context, views []*CornerView) (int, error)
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

const insertEventQuery = `
	INSERT INTO tracked_events (
		id, session_id, user_id, device, referrer, page, zone, component,
		action, value, metadata, client_ip, occurred_at, received_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO NOTHING
`

// CreateBatch stores events in one transaction and returns how many rows
// were new. Any insert failure aborts the whole batch.
func (r *repository) CreateBatch(ctx context.Context, events []*Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PreparexContext(ctx, insertEventQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		res, err := stmt.ExecContext(
			ctx,
			ev.ID,
			ev.SessionID,
			ev.UserID,
			ev.Device,
			ev.Referrer,
			ev.Page,
			ev.Zone,
			ev.Component,
			ev.Action,
			ev.Value,
			ev.Metadata,
			ev.ClientIP,
			ev.OccurredAt,
			ev.ReceivedAt,
		)
		if err != nil {
			r.logger.Error("Failed to insert tracked event",
				zap.String("event_id", ev.ID.String()),
				zap.Error(err),
			)
			return 0, fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Tracked events stored",
		zap.Int("total", len(events)),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}

func (r *repository) CreateCornerViews(ctx context.Context, views []*CornerView) (int, error) {
	if len(views) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO corner_views (id, corner, duration_sec, client_ip, occurred_at, received_at)
		VALUES (:id, :corner, :duration_sec, :client_ip, :occurred_at, :received_at)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.db.NamedExecContext(ctx, query, views)
	if err != nil {
		return 0, fmt.Errorf("failed to insert corner views: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
