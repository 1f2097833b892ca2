package health

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, handler http.Handler, path string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestEndpoints(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quadlink_test_gauge",
		Help: "test gauge",
	})
	registry.MustRegister(gauge)
	gauge.Set(3)

	s := NewServer(slog.Default(), registry)
	handler := s.Handler()

	t.Run("health always ok", func(t *testing.T) {
		code, body := get(t, handler, "/health")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "OK", body)
	})

	t.Run("ready transitions", func(t *testing.T) {
		code, body := get(t, handler, "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "NOT READY", body)

		s.MarkReady()
		code, body = get(t, handler, "/ready")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "READY", body)

		s.MarkNotReady()
		code, _ = get(t, handler, "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("metrics served from the registry", func(t *testing.T) {
		code, body := get(t, handler, "/metrics")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, strings.Contains(body, "quadlink_test_gauge 3"))
	})
}
