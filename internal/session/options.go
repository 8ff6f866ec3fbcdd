package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/metrics"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
)

const (
	defaultReadTimeout = time.Second
	defaultQueueSize   = 64
)

// Option 会话构造选项
type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithReadTimeout 单次 ReadExact 的超时
func WithReadTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.readTimeout = t
		}
	}
}

// WithQueueSize 待执行队列容量；满时 Submit 阻塞
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithSubmitTimeout 每次提交的默认等待上限，0 表示只受调用方 ctx 约束
func WithSubmitTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.submitTimeout = t }
}

// WithRetries 传输错误时的默认重试次数
func WithRetries(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.retries = n
		}
	}
}

func WithThrottle(t *Throttle) Option {
	return func(d *Dispatcher) { d.throttle = t }
}

// WithExpectedVersion 版本缓存初始值，用于与实际固件比对
func WithExpectedVersion(v mps.VersionInfo) Option {
	return func(d *Dispatcher) { d.version = v }
}

// WithUnit Shutdown 发送停止测量命令时使用的单位
func WithUnit(u mps.Unit) Option {
	return func(d *Dispatcher) { d.unit = u }
}

type submitOptions struct {
	timeout time.Duration
	retries int
}

// SubmitOption 单次提交选项，覆盖会话默认值
type SubmitOption func(*submitOptions)

// SubmitTimeout 本次提交的等待上限
func SubmitTimeout(t time.Duration) SubmitOption {
	return func(o *submitOptions) { o.timeout = t }
}

// SubmitRetries 本次提交在传输错误时的重试次数
func SubmitRetries(n int) SubmitOption {
	return func(o *submitOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}
