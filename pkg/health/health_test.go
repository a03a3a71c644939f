package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunFoldsStatuses(t *testing.T) {
	c := NewChecker("run-1")
	c.Register("sqlite", true, func(context.Context) error { return nil })
	require.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("redis", false, func(context.Context) error { return errors.New("connection refused") })
	report := c.Run(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
	require.Equal(t, "connection refused", report.Components["redis"].Message)
	require.False(t, report.Components["redis"].Required)

	c.Register("postgres", true, func(context.Context) error { return errors.New("timeout") })
	report = c.Run(context.Background())
	require.Equal(t, StatusDown, report.Status)
	require.Equal(t, StatusDown, report.Components["postgres"].Status)
	require.Len(t, report.Components, 3)
}

func TestHandler(t *testing.T) {
	c := NewChecker("run-2")
	c.Register("redis", false, func(context.Context) error { return errors.New("down") })
	h := c.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, StatusDegraded, report.Status)
	require.Equal(t, "run-2", report.RunID)

	c.Register("postgres", true, func(context.Context) error { return errors.New("down") })
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
