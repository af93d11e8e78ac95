package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/laundrytrack-backend/api/controllers"
	"github.com/angelmondragon/laundrytrack-backend/api/responses"
	"github.com/angelmondragon/laundrytrack-backend/pkg/config"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/metrics"
)

func up(context.Context) error { return nil }

func newTestRouter(t *testing.T, deps map[string]controllers.Pinger) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	return NewOpsRouter(cfg, logger.Nop(), deps, reg), reg
}

func TestHealthLive(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test", w.Header().Get("X-LaundryTrack-Env"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestHealthReadyReportsEachDependency(t *testing.T) {
	router, _ := newTestRouter(t, map[string]controllers.Pinger{
		"database": controllers.PingFunc(up),
		"pubsub":   controllers.PingFunc(up),
	})

	for _, path := range []string{"/health/ready", "/healthz"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)

		var body struct {
			Data struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "ready", body.Data.Status)
		assert.Equal(t, map[string]string{"database": "up", "pubsub": "up"}, body.Data.Checks)
	}
}

func TestHealthReadyFailsWhenDependencyDown(t *testing.T) {
	router, _ := newTestRouter(t, map[string]controllers.Pinger{
		"database": controllers.PingFunc(up),
		"pubsub":   controllers.PingFunc(func(context.Context) error {
			return errors.New("topic missing")
		}),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body responses.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "DEPENDENCY_ERROR", body.Error.Code)
	checks, ok := body.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "down", checks["pubsub"])
	assert.Equal(t, "up", checks["database"])
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	router, reg := newTestRouter(t, nil)
	relay := metrics.NewRelayMetrics(reg)
	relay.IncPublished("order_status_changed")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `laundrytrack_outbox_published_total{event_type="order_status_changed"} 1`)
}
