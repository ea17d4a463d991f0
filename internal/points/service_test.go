package points

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RoofStorm/tiger-engagement/internal/auth"
	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/RoofStorm/tiger-engagement/pkg/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	claims map[string][]Claim
}

func newMemRepo() *memRepo {
	return &memRepo{claims: make(map[string][]Claim)}
}

func (m *memRepo) LastClaim(_ context.Context, userID string) (*Claim, error) {
	list := m.claims[userID]
	if len(list) == 0 {
		return nil, nil
	}
	c := list[len(list)-1]
	return &c, nil
}

func (m *memRepo) SaveClaim(_ context.Context, claim Claim) (bool, error) {
	for _, c := range m.claims[claim.UserID] {
		if c.Day.Equal(claim.Day) {
			return false, nil
		}
	}
	m.claims[claim.UserID] = append(m.claims[claim.UserID], claim)
	return true, nil
}

func TestClaimOncePerDayWithStreak(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC))
	svc := NewService(newMemRepo(), clock, zap.NewNop())
	ctx := context.Background()

	r, err := svc.ClaimDailyLogin(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.DailyLoginReward{Awarded: true, Points: 10, Streak: 1}, r)

	r, err = svc.ClaimDailyLogin(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.DailyLoginReward{Awarded: false, Streak: 1}, r)

	clock.Advance(2 * time.Hour) // next UTC day
	r, err = svc.ClaimDailyLogin(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.DailyLoginReward{Awarded: true, Points: 12, Streak: 2}, r)

	clock.Advance(48 * time.Hour) // missed a day
	r, err = svc.ClaimDailyLogin(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Streak)
	assert.Equal(t, 10, r.Points)
}

func TestStreakBonusIsCapped(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(newMemRepo(), clock, zap.NewNop())

	var r model.DailyLoginReward
	for range 10 {
		var err error
		r, err = svc.ClaimDailyLogin(context.Background(), "u1")
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}
	assert.Equal(t, 10, r.Streak)
	assert.Equal(t, DailyLoginPoints+MaxStreakBonus, r.Points)
}

func TestRepositorySaveClaim(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	repo := NewRepository(postgres.Wrap(sqlx.NewDb(sqlDB, "sqlmock"), zap.NewNop()), zap.NewNop())
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_login_claims").
		WithArgs("u1", day, 1, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_points").
		WithArgs("u1", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	saved, err := repo.SaveClaim(context.Background(), Claim{UserID: "u1", Day: day, Streak: 1, Points: 10})
	require.NoError(t, err)
	assert.True(t, saved)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_login_claims").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	saved, err = repo.SaveClaim(context.Background(), Claim{UserID: "u1", Day: day, Streak: 1, Points: 10})
	require.NoError(t, err)
	assert.False(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryLastClaimNone(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	repo := NewRepository(postgres.Wrap(sqlx.NewDb(sqlDB, "sqlmock"), zap.NewNop()), zap.NewNop())

	mock.ExpectQuery("FROM daily_login_claims").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "day", "streak", "points"}))

	claim, err := repo.LastClaim(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, claim)
}

func TestClaimHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	authn := auth.NewAuthenticator("secret", "tiger", zap.NewNop())
	svc := NewService(newMemRepo(), clockwork.NewFakeClock(), zap.NewNop())
	r := gin.New()
	NewHandler(svc, zap.NewNop()).Register(r.Group("/", authn.Required()))

	token, err := authn.Issue("u1", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/points/daily-login", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"awarded":true,"points":10,"streak":1}}`, w.Body.String())
}
