package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kreatif/internal/health"
)

func ok(context.Context) error { return nil }

func ready(t *testing.T, h health.Handler) (int, health.Report) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var report health.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	return rr.Code, report
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReady(t *testing.T) {
	cases := []struct {
		name   string
		probes map[string]health.Probe
		code   int
		status string
		checks map[string]string
	}{
		{name: "memory only", code: http.StatusOK, status: "ok"},
		{
			name:   "all healthy",
			probes: map[string]health.Probe{"db": ok, "redis": ok},
			code:   http.StatusOK, status: "ok",
			checks: map[string]string{"db": "ok", "redis": "ok"},
		},
		{
			name: "db down",
			probes: map[string]health.Probe{
				"db":    func(context.Context) error { return errors.New("db down") },
				"redis": ok,
			},
			code: http.StatusServiceUnavailable, status: "degraded",
			checks: map[string]string{"db": "db down", "redis": "ok"},
		},
		{
			name: "probe times out",
			probes: map[string]health.Probe{"redis": func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}},
			code: http.StatusServiceUnavailable, status: "degraded",
			checks: map[string]string{"redis": context.DeadlineExceeded.Error()},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, report := ready(t, health.Handler{Probes: tc.probes, Timeout: 20 * time.Millisecond})
			require.Equal(t, tc.code, code)
			require.Equal(t, tc.status, report.Status)
			if tc.checks != nil {
				require.Equal(t, tc.checks, report.Checks)
			}
		})
	}
}

func TestReadyWhileDraining(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	h := health.Handler{Probes: map[string]health.Probe{"redis": ok}}

	code, _ := ready(t, h)
	require.Equal(t, http.StatusOK, code)

	health.SetReady(false)
	code, report := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "draining", report.Status)
}
