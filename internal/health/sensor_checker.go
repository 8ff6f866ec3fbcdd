package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/gas-sensor/internal/poller"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/session"
)

// SessionView 会话的只读状态
type SessionView interface {
	State() session.State
	QueueLen() int
	LastAnswer() (*mps.Response, time.Time)
}

// SensorChecker 串口会话与采集状态检查
//   - 会话非 active：unhealthy
//   - 熔断器打开，或最近一次 ANSWER 超过 maxAge：degraded
type SensorChecker struct {
	sess    SessionView
	breaker *poller.Breaker
	maxAge  time.Duration
	now     func() time.Time
}

// NewSensorChecker breaker 可为 nil；maxAge<=0 不检查读数新鲜度
func NewSensorChecker(sess SessionView, breaker *poller.Breaker, maxAge time.Duration) *SensorChecker {
	return &SensorChecker{sess: sess, breaker: breaker, maxAge: maxAge, now: time.Now}
}

func (c *SensorChecker) Name() string { return "sensor" }

func (c *SensorChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	state := c.sess.State()
	details := map[string]any{
		"session": state.String(),
		"queue":   c.sess.QueueLen(),
	}
	result := func(s Status, msg string) CheckResult {
		return CheckResult{Status: s, Message: msg, Details: details, Latency: time.Since(start)}
	}
	if state != session.StateActive {
		return result(StatusUnhealthy, "session not active")
	}

	if c.breaker != nil {
		bs := c.breaker.State()
		details["breaker"] = bs.String()
		details["breaker_trips"] = c.breaker.Trips()
		if bs == poller.BreakerOpen {
			return result(StatusDegraded, "serial link failing, polling suspended")
		}
	}

	resp, at := c.sess.LastAnswer()
	if resp != nil {
		details["last_answer"] = at
	}
	if c.maxAge > 0 {
		if resp == nil {
			return result(StatusDegraded, "no reading yet")
		}
		if age := c.now().Sub(at); age > c.maxAge {
			return result(StatusDegraded, fmt.Sprintf("last reading %s old", age.Truncate(time.Second)))
		}
	}
	return result(StatusHealthy, "ok")
}
