package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu        sync.Mutex
	summaries []Summary
	err       error
}

func (r *memRepo) UpsertSummary(_ context.Context, s *Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.summaries = append(r.summaries, *s)
	return nil
}

func (r *memRepo) GetSummariesByDateRange(context.Context, time.Time, time.Time, string) ([]*Summary, error) {
	return nil, nil
}

func zoneEvent(session string, seconds int) model.TrackedEvent {
	return model.TrackedEvent{
		SessionID: session,
		Page:      "home",
		Zone:      "hero",
		Action:    model.ActionZoneView,
		Value:     model.Seconds(seconds),
		Timestamp: "2026-10-18T09:15:00.000Z",
	}
}

func newTestService(repo Repository) (*Service, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC))
	return NewService(repo, clock, zap.NewNop()), clock
}

func TestProcessEventAggregatesZoneViews(t *testing.T) {
	repo := &memRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	for _, ev := range []model.TrackedEvent{zoneEvent("s1", 4), zoneEvent("s1", 2), zoneEvent("s2", 6)} {
		require.NoError(t, svc.ProcessEvent(ctx, &ev))
	}

	require.Len(t, repo.summaries, 3)
	last := repo.summaries[2]
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), last.Date)
	assert.Equal(t, 9, last.Hour)
	assert.Equal(t, "home", last.Page)
	assert.Equal(t, "hero", last.Zone)
	assert.Equal(t, int64(1), last.Views)
	assert.Equal(t, int64(6), last.TotalSeconds)
	assert.Equal(t, int64(2), last.UniqueSessions)
	assert.Equal(t, int64(1), repo.summaries[1].UniqueSessions)
}

func TestProcessEventPageDurationHasNoZone(t *testing.T) {
	repo := &memRepo{}
	svc, _ := newTestService(repo)

	ev := model.TrackedEvent{
		SessionID: "s1",
		Page:      "home",
		Zone:      "ignored",
		Action:    model.ActionPageViewEnd,
		Value:     model.Seconds(5),
		Timestamp: "2026-10-18T09:15:00Z",
	}
	require.NoError(t, svc.ProcessEvent(context.Background(), &ev))

	require.Len(t, repo.summaries, 1)
	assert.Empty(t, repo.summaries[0].Zone)
	assert.Equal(t, int64(5), repo.summaries[0].TotalSeconds)
}

func TestProcessEventIgnoresOtherActions(t *testing.T) {
	repo := &memRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	click := model.TrackedEvent{SessionID: "s1", Page: "home", Action: model.ActionClick, Timestamp: "2026-10-18T09:15:00Z"}
	require.NoError(t, svc.ProcessEvent(ctx, &click))

	noValue := zoneEvent("s1", 0)
	noValue.Value = nil
	require.NoError(t, svc.ProcessEvent(ctx, &noValue))

	assert.Empty(t, repo.summaries)
}

func TestProcessEventErrors(t *testing.T) {
	svc, _ := newTestService(&memRepo{err: errors.New("db down")})
	ctx := context.Background()

	ev := zoneEvent("s1", 3)
	assert.Error(t, svc.ProcessEvent(ctx, &ev))

	bad := zoneEvent("s1", 3)
	bad.Timestamp = "yesterday"
	assert.Error(t, svc.ProcessEvent(ctx, &bad))
}

func TestCreateMessageHandler(t *testing.T) {
	repo := &memRepo{}
	svc, _ := newTestService(repo)
	handle := svc.CreateMessageHandler()

	value, err := json.Marshal(zoneEvent("s1", 4))
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("s1"), value))
	assert.Len(t, repo.summaries, 1)

	assert.Error(t, handle(context.Background(), []byte("s1"), []byte("{")))
}

func TestCleanupOldCache(t *testing.T) {
	repo := &memRepo{}
	svc, clock := newTestService(repo)
	ctx := context.Background()

	ev := zoneEvent("s1", 4)
	require.NoError(t, svc.ProcessEvent(ctx, &ev))

	svc.CleanupOldCache()
	assert.Len(t, svc.sessions, 1)

	clock.Advance(48 * time.Hour)
	svc.CleanupOldCache()
	assert.Empty(t, svc.sessions)
}

func TestRepositoryUpsertSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(sqlx.NewDb(db, "sqlmock"), zap.NewNop())
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	summary := NewSummary(now, "home", "hero", now)
	summary.AddView(4)
	summary.SetUniqueSessions(1)

	mock.ExpectQuery("INSERT INTO dwell_summary").
		WithArgs(summary.Date, 10, "home", "hero", int64(1), int64(4), int64(1), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	require.NoError(t, repo.UpsertSummary(context.Background(), summary))
	assert.Equal(t, 7, summary.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetSummariesFiltersPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(sqlx.NewDb(db, "sqlmock"), zap.NewNop())
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "date", "hour", "page", "zone", "views", "total_seconds", "unique_sessions", "updated_at"}).
		AddRow(1, day, 9, "home", "hero", 3, 12, 2, day)
	mock.ExpectQuery("SELECT (.+) FROM dwell_summary WHERE (.+) AND page = \\$3").
		WithArgs(day, day, "home").
		WillReturnRows(rows)

	summaries, err := repo.GetSummariesByDateRange(context.Background(), day, day, "home")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(12), summaries[0].TotalSeconds)
	assert.NoError(t, mock.ExpectationsWereMet())
}
