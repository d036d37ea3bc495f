package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/config"
	"herald/internal/logger"
	"herald/pkg/health"
	"herald/pkg/models"
)

type fakeChecker struct{ status health.Status }

func (f fakeChecker) Check(context.Context) health.Health {
	return health.Health{Status: f.status}
}

type fakePeeker struct {
	list      models.DeadLetterList
	err       error
	lastLimit int
}

func (f *fakePeeker) Peek(_ context.Context, limit int) (models.DeadLetterList, error) {
	f.lastLimit = limit
	return f.list, f.err
}

func newTestRouter(t *testing.T, status health.Status, peeker DeadLetterPeeker) *gin.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHandler(fakeChecker{status: status}, peeker, logger.NopLogger())
	return NewRouter(ctx, config.ServerConfig{}, "herald-test", h, logger.NopLogger())
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(newTestRouter(t, health.StatusHealthy, nil), "/health").Code)
	assert.Equal(t, http.StatusOK, get(newTestRouter(t, health.StatusDegraded, nil), "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(newTestRouter(t, health.StatusUnhealthy, nil), "/health").Code)
}

func TestMetrics(t *testing.T) {
	w := get(newTestRouter(t, health.StatusHealthy, nil), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListDeadLetters(t *testing.T) {
	peeker := &fakePeeker{list: models.DeadLetterList{
		Entries:   []models.DeadLetterEntry{{MessageID: "m-1", Body: "{}", ReceiveCount: 3}},
		Count:     1,
		Available: 1,
	}}
	router := newTestRouter(t, health.StatusHealthy, peeker)

	w := get(router, "/api/v1/dead-letters?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, peeker.lastLimit)

	var got models.DeadLetterList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, peeker.list, got)

	get(router, "/api/v1/dead-letters")
	assert.Equal(t, 10, peeker.lastLimit)
}

func TestListDeadLetters_Errors(t *testing.T) {
	tests := []struct {
		name   string
		peeker DeadLetterPeeker
		path   string
		status int
		code   string
	}{
		{"bad limit", &fakePeeker{}, "/api/v1/dead-letters?limit=abc", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"limit too large", &fakePeeker{}, "/api/v1/dead-letters?limit=11", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"queue error", &fakePeeker{err: errors.New("AccessDenied")}, "/api/v1/dead-letters", http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"no dlq", nil, "/api/v1/dead-letters", http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(newTestRouter(t, health.StatusHealthy, tt.peeker), tt.path)
			assert.Equal(t, tt.status, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error_code"])
		})
	}
}
