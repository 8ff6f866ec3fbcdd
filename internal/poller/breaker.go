package poller

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常采集
	BreakerOpen                         // 链路连续失败，跳过采集
	BreakerHalfOpen                     // 冷却结束，放行一次试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen 熔断期间拒绝采集
var ErrBreakerOpen = errors.New("poller: circuit breaker is open")

// Breaker 串口链路熔断器。采集是串行的，半开状态只放行一次试探。
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	lastFailTime time.Time
	tripCount    int64
	threshold    int
	timeout      time.Duration
	now          func() time.Time

	onStateChange func(from, to BreakerState)
}

// NewBreaker threshold 次连续失败后熔断，timeout 后进入半开
func NewBreaker(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Breaker{threshold: threshold, timeout: timeout, now: time.Now}
}

// Allow 是否允许本轮采集
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailTime) < b.timeout {
			return ErrBreakerOpen
		}
		b.transitionTo(BreakerHalfOpen)
		return nil
	default:
		return nil
	}
}

// Record 记录本轮结果；只有链路错误计为失败
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		b.transitionTo(BreakerClosed)
		return
	}
	b.failures++
	b.lastFailTime = b.now()
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		if b.state != BreakerOpen {
			b.tripCount++
		}
		b.transitionTo(BreakerOpen)
	}
}

func (b *Breaker) transitionTo(s BreakerState) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s
	if b.onStateChange != nil {
		b.onStateChange(from, s)
	}
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips 累计熔断次数
func (b *Breaker) Trips() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripCount
}

// OnStateChange 设置状态变化回调（在持锁状态下同步调用，回调内不得访问 Breaker）
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}
