package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/telemetry"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	m := &HTTPMetrics{
		meter:  tt.Meter(httpInstrumentationName),
		logger: logging.NewTestLogger().Logger,
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/deployments/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"state": "verified"})
	})
	e.POST("/api/v1/deployments", func(c echo.Context) error {
		return c.JSON(http.StatusAccepted, map[string]string{"id": "op-1"})
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/api/v1/deployments/op-1"},
		{http.MethodPost, "/api/v1/deployments"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	assert.Equal(t, int64(3), tt.CounterTotal(t, "launchpad.http.requests_total"))
	assert.Equal(t, int64(0), tt.CounterTotal(t, "launchpad.http.active_requests"))

	var durations uint64
	var endpoints []string
	for _, sm := range tt.Collect(t).ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "launchpad.http.request_duration_seconds" {
				continue
			}
			hist, ok := md.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			for _, dp := range hist.DataPoints {
				durations += dp.Count
				v, _ := dp.Attributes.Value("endpoint")
				endpoints = append(endpoints, v.AsString())
			}
		}
	}
	assert.Equal(t, uint64(3), durations)
	assert.ElementsMatch(t, []string{"/health", "/api/v1/deployments/:id", "/api/v1/deployments"}, endpoints)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/health", "/health"},
		{"/api/v1/deployments", "/api/v1/deployments"},
		{"/api/v1/deployments/:id", "/api/v1/deployments/:id"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
