package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(ctx context.Context) ComponentHealth       { return ComponentHealth{Status: StatusUp} }
func degraded(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} }
func down(ctx context.Context) ComponentHealth     { return ComponentHealth{Status: StatusDown, Message: "unreachable"} }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("shards", up)
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("redis", degraded)
	assert.Equal(t, StatusDegraded, c.Run(context.Background()).Status)

	c.Register("manifest", down)
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Len(t, report.Components, 3)
	assert.Equal(t, []string{"manifest", "redis", "shards"}, c.Names())
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("shards", up)
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("redis", degraded)
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("manifest", down)
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "unreachable", report.Components["manifest"].Message)
}

func TestPing(t *testing.T) {
	c := NewChecker()
	c.Register("redis", Ping(func(ctx context.Context) error { return errors.New("connection refused") }, StatusDegraded))
	c.Register("postgres", Ping(func(ctx context.Context) error { return nil }, StatusDegraded))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Message)
	assert.Equal(t, StatusUp, report.Components["postgres"].Status)
}

func TestSlowCheckTimesOut(t *testing.T) {
	c := NewChecker()
	c.checkTimeout = 20 * time.Millisecond
	release := make(chan struct{})
	defer close(release)
	c.Register("origin", func(ctx context.Context) ComponentHealth {
		<-release
		return ComponentHealth{Status: StatusUp}
	})
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "check timed out", report.Components["origin"].Message)
}
