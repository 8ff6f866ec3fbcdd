package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/gas-sensor/internal/poller"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/session"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	tests := []struct {
		name   string
		status []Status
		want   Status
		ready  bool
	}{
		{"全部健康", []Status{StatusHealthy, StatusHealthy}, StatusHealthy, true},
		{"部分降级仍就绪", []Status{StatusHealthy, StatusDegraded}, StatusDegraded, true},
		{"不健康优先", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy, false},
		{"无检查器", nil, StatusHealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator()
			for i, s := range tt.status {
				agg.AddChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			assert.Equal(t, tt.want, agg.OverallStatus(context.Background()))
			assert.Equal(t, tt.ready, agg.Ready(context.Background()))
		})
	}
}

func TestAggregator_AddNil(t *testing.T) {
	agg := NewAggregator(&mockChecker{"sensor", StatusHealthy})
	agg.AddChecker(nil)
	assert.Len(t, agg.CheckAll(context.Background()), 1)
}

type fakeSession struct {
	state session.State
	resp  *mps.Response
	at    time.Time
}

func (f *fakeSession) State() session.State { return f.state }
func (f *fakeSession) QueueLen() int { return 0 }
func (f *fakeSession) LastAnswer() (*mps.Response, time.Time) { return f.resp, f.at }

func TestSensorChecker(t *testing.T) {
	now := time.Unix(10_000, 0)
	answer := &mps.Response{Command: mps.CmdAnswer}

	t.Run("会话已关闭", func(t *testing.T) {
		c := NewSensorChecker(&fakeSession{state: session.StateClosed}, nil, 0)
		assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
	})

	t.Run("读数新鲜", func(t *testing.T) {
		c := NewSensorChecker(&fakeSession{state: session.StateActive, resp: answer, at: now.Add(-time.Second)}, nil, 10*time.Second)
		c.now = func() time.Time { return now }
		assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	})

	t.Run("读数过旧", func(t *testing.T) {
		c := NewSensorChecker(&fakeSession{state: session.StateActive, resp: answer, at: now.Add(-time.Minute)}, nil, 10*time.Second)
		c.now = func() time.Time { return now }
		r := c.Check(context.Background())
		assert.Equal(t, StatusDegraded, r.Status)
		assert.Contains(t, r.Message, "1m0s")
	})

	t.Run("尚无读数", func(t *testing.T) {
		c := NewSensorChecker(&fakeSession{state: session.StateActive}, nil, time.Second)
		assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
	})

	t.Run("熔断打开", func(t *testing.T) {
		br := poller.NewBreaker(1, time.Hour)
		br.Record(assert.AnError)
		c := NewSensorChecker(&fakeSession{state: session.StateActive}, br, 0)
		r := c.Check(context.Background())
		assert.Equal(t, StatusDegraded, r.Status)
		assert.Equal(t, "open", r.Details["breaker"])
	})
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	agg := NewAggregator(&mockChecker{"sensor", StatusDegraded})
	r := gin.New()
	RegisterHTTPRoutes(r, agg)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Checks, "sensor")

	agg.AddChecker(&mockChecker{"database", StatusUnhealthy})
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReadiness(t *testing.T) {
	r := New()
	assert.False(t, r.Ready())
	r.SetSessionReady(true)
	assert.False(t, r.Ready())
	r.SetPollerReady(true)
	assert.True(t, r.Ready())
}
