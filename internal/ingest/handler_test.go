package ingest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRouter(t *testing.T) (*gin.Engine, *fakeRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := &fakeRepo{}
	h := NewHandler(newTestService(repo, nil, nil), zap.NewNop())
	r := gin.New()
	h.Register(r)
	return r, repo
}

func TestTrackAcceptsBeaconContentType(t *testing.T) {
	r, repo := setupRouter(t)

	body := `{"events":[{"sessionId":"abc123","userId":null,"page":"welcome","action":"page_view","timestamp":"2026-10-18T08:00:00.000Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/analytics/track", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"accepted":1,"rejected":0}}`, w.Body.String())
	require.Len(t, repo.events, 1)
	assert.Nil(t, repo.events[0].UserID)
}

func TestTrackRejectsBadBodies(t *testing.T) {
	r, _ := setupRouter(t)

	for _, body := range []string{`not json`, `{"events":[]}`, `{"events":[{"page":"welcome","action":"click"}]}`} {
		req := httptest.NewRequest(http.MethodPost, "/analytics/track", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), `"success":false`)
	}
}

func TestTrackCornersEndpoint(t *testing.T) {
	r, repo := setupRouter(t)

	body := `{"events":[{"corner":1,"durationSec":3,"timestamp":"2026-10-18T08:00:00.000Z"},{"corner":2,"durationSec":1,"timestamp":"2026-10-18T08:00:00.000Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/analytics/corners", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"accepted":1,"rejected":1}}`, w.Body.String())
	assert.Len(t, repo.corners, 1)
}
