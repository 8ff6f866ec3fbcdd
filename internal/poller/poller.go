// Package poller 周期采集：按间隔提交 ANSWER，把读数写入各个 Sink。
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/metrics"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/session"
	"github.com/taoyao-code/gas-sensor/internal/storage/models"
)

// Session 采集所需的会话能力
type Session interface {
	Submit(ctx context.Context, cmd mps.Command, opts ...session.SubmitOption) (*mps.Response, error)
}

// Sink 读数去向（CSV、Redis、PostgreSQL）
type Sink interface {
	Name() string
	Write(ctx context.Context, r models.Reading) error
	Close() error
}

// Registry 传感器登记
type Registry interface {
	Register(ctx context.Context, info mps.SensorInfo, v mps.VersionInfo) (*models.Sensor, error)
	Touch(ctx context.Context, serial string, at time.Time) error
}

// Result 单轮采集结果
type Result string

const (
	ResultOK      Result = "ok"
	ResultStale   Result = "stale"   // 本轮无更新：帧被丢弃、设备报错或周期计数未前进
	ResultError   Result = "error"   // 传输错误
	ResultSkipped Result = "skipped" // 熔断中
)

// Identity 启动时读取的仪表身份
type Identity struct {
	Info         mps.SensorInfo  `json:"info" yaml:"info"`
	Version      mps.VersionInfo `json:"version" yaml:"version"`
	Expected     mps.VersionInfo `json:"expected" yaml:"expected"`
	VersionMatch bool            `json:"version_match" yaml:"version_match"`
}

// Option 采集器选项
type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithUnit(u mps.Unit) Option { return func(p *Poller) { p.unit = u } }

func WithSinks(sinks ...Sink) Option {
	return func(p *Poller) { p.sinks = append(p.sinks, sinks...) }
}

func WithRegistry(r Registry) Option { return func(p *Poller) { p.registry = r } }

func WithExpectedVersion(v mps.VersionInfo) Option { return func(p *Poller) { p.expected = v } }

func WithBreaker(b *Breaker) Option { return func(p *Poller) { p.breaker = b } }

func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

func WithMetrics(m *metrics.AppMetrics) Option { return func(p *Poller) { p.metrics = m } }

// Poller 周期采集器
type Poller struct {
	sess     Session
	sinks    []Sink
	registry Registry
	breaker  *Breaker
	interval time.Duration
	unit     mps.Unit
	expected mps.VersionInfo
	log      *zap.Logger
	metrics  *metrics.AppMetrics
	now      func() time.Time

	mu       sync.RWMutex
	identity Identity
	last     models.Reading
	hasLast  bool
}

// New 创建采集器
func New(sess Session, opts ...Option) *Poller {
	p := &Poller{
		sess:     sess,
		interval: 2 * time.Second,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = NewBreaker(0, 0)
	}
	p.breaker.OnStateChange(func(from, to BreakerState) {
		p.log.Warn("poll breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
	})
	return p
}

// Start 启动序列：开启连续测量，读取 SENSOR_INFO 与 VERSION，比对期望版本并登记仪表。
// 只有开启测量失败才返回错误；身份信息缺失只记录告警。
func (p *Poller) Start(ctx context.Context) (Identity, error) {
	meas := mps.Measurement(p.unit, mps.ModeContinuous)
	if _, err := p.sess.Submit(ctx, meas); err != nil {
		return Identity{}, fmt.Errorf("start measurement: %w", err)
	}
	p.log.Info("measurement started", zap.String("cmd", meas.String()))

	id := Identity{Expected: p.expected}
	if resp, err := p.sess.Submit(ctx, mps.SensorInfoQuery()); err != nil {
		p.log.Warn("read sensor info failed", zap.Error(err))
	} else if info, ok := mps.SensorInfoFromResponse(resp); ok {
		id.Info = info
	} else {
		p.log.Warn("no sensor info this cycle", zap.Stringer("resp", resp))
	}

	if resp, err := p.sess.Submit(ctx, mps.Version()); err != nil {
		p.log.Warn("read version failed", zap.Error(err))
	} else if v, ok := mps.VersionFromResponse(resp); ok {
		id.Version = v
	} else {
		p.log.Warn("no version this cycle", zap.Stringer("resp", resp))
	}

	id.VersionMatch = p.expected.IsZero() || p.expected == id.Version
	if !id.VersionMatch {
		p.log.Warn("firmware version mismatch",
			zap.Stringer("expected", p.expected),
			zap.Stringer("actual", id.Version))
	}

	if p.registry != nil && id.Info.SerialNumber != "" {
		if _, err := p.registry.Register(ctx, id.Info, id.Version); err != nil {
			p.log.Warn("register sensor failed", zap.String("serial", id.Info.SerialNumber), zap.Error(err))
		}
	}

	p.mu.Lock()
	p.identity = id
	p.mu.Unlock()
	p.log.Info("sensor identified",
		zap.String("serial", id.Info.SerialNumber),
		zap.Uint32("type", id.Info.SensorType),
		zap.Stringer("version", id.Version))
	return id, nil
}

// PollOnce 执行一轮采集
func (p *Poller) PollOnce(ctx context.Context) (models.Reading, Result, error) {
	if err := p.breaker.Allow(); err != nil {
		p.metrics.IncPoll(string(ResultSkipped))
		return models.Reading{}, ResultSkipped, err
	}

	resp, err := p.sess.Submit(ctx, mps.Answer())
	if err != nil {
		if errors.Is(err, session.ErrTransport) || errors.Is(err, session.ErrSubmitTimeout) {
			p.breaker.Record(err)
		}
		p.metrics.IncPoll(string(ResultError))
		return models.Reading{}, ResultError, err
	}
	p.breaker.Record(nil)

	if resp == nil {
		p.log.Info("no update this cycle", zap.String("reason", "invalid frame discarded"))
		p.metrics.IncPoll(string(ResultStale))
		return models.Reading{}, ResultStale, nil
	}
	r, ok := models.ReadingFromResponse(resp, p.unit, p.now())
	if !ok {
		p.log.Info("no update this cycle", zap.String("reason", "device status"), zap.String("status", resp.Status.String()))
		p.metrics.IncPoll(string(ResultStale))
		return models.Reading{}, ResultStale, nil
	}

	p.mu.Lock()
	r.Sensor = p.identity.Info.SerialNumber
	repeated := p.hasLast && p.last.Cycle == r.Cycle
	if !repeated {
		p.last, p.hasLast = r, true
	}
	p.mu.Unlock()
	if repeated {
		p.log.Debug("no update this cycle", zap.String("reason", "cycle count unchanged"), zap.Uint32("cycle", r.Cycle))
		p.metrics.IncPoll(string(ResultStale))
		return r, ResultStale, nil
	}

	for _, s := range p.sinks {
		if err := s.Write(ctx, r); err != nil {
			p.metrics.IncSinkError(s.Name())
			p.log.Warn("sink write failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
	if p.registry != nil && r.Sensor != "" {
		if err := p.registry.Touch(ctx, r.Sensor, r.Time); err != nil {
			p.log.Warn("touch sensor failed", zap.String("serial", r.Sensor), zap.Error(err))
		}
	}
	p.metrics.IncPoll(string(ResultOK))
	p.log.Debug("reading",
		zap.Uint32("cycle", r.Cycle),
		zap.Float32("concentration", r.Concentration),
		zap.String("unit", r.Unit),
		zap.String("gas", r.Gas))
	return r, ResultOK, nil
}

// Run 按间隔采集直到 ctx 取消或会话关闭
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.log.Info("poller started", zap.Duration("interval", p.interval), zap.String("unit", p.unit.String()))
	for {
		_, res, err := p.PollOnce(ctx)
		switch {
		case errors.Is(err, session.ErrClosed):
			p.log.Info("poller stopped: session closed")
			return nil
		case res == ResultError:
			p.log.Warn("poll failed", zap.Error(err))
		case res == ResultSkipped:
			p.log.Debug("poll skipped", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Latest 最近一次有效读数
func (p *Poller) Latest() (models.Reading, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.hasLast
}

// Identity 启动时读取的身份信息
func (p *Poller) Identity() Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// Breaker 采集熔断器
func (p *Poller) Breaker() *Breaker { return p.breaker }

// Close 关闭所有 Sink
func (p *Poller) Close() error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
