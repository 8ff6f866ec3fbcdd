package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/metrics"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
)

// State 会话生命周期
type State int32

const (
	StateActive State = iota
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type result struct {
	resp *mps.Response
	err  error
}

// pending 排队中的命令，worker 消费一次后发出完成信号
type pending struct {
	id      string
	cmd     mps.Command
	ctx     context.Context
	retries int
	done    chan result
}

// Dispatcher 单飞命令调度器：多个调用方并发提交，唯一的 worker 按 FIFO
// 顺序逐条与仪表交换，链路上至多一条命令在途。
type Dispatcher struct {
	tr            Transport
	log           *zap.Logger
	metrics       *metrics.AppMetrics
	throttle      *Throttle
	readTimeout   time.Duration
	submitTimeout time.Duration
	retries       int
	queueSize     int
	unit          mps.Unit

	queue   chan *pending
	stop    chan struct{}
	stopped chan struct{}
	running atomic.Bool
	state   atomic.Int32

	mu       sync.RWMutex
	last     *mps.Response
	answer   *mps.Response
	cycle    uint32
	hasCycle bool
	version  mps.VersionInfo
	updated  time.Time
}

// New 创建调度器，需随后调用 Run 启动 worker
func New(tr Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tr:          tr,
		log:         zap.NewNop(),
		readTimeout: defaultReadTimeout,
		queueSize:   defaultQueueSize,
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan *pending, d.queueSize)
	return d
}

// Run 运行 worker 直到 ctx 取消或 Shutdown。退出时队列中剩余命令以 ErrClosed 结束。
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.stopped)
	defer d.drain()

	d.log.Info("session worker started", zap.Int("queue_size", d.queueSize))
	for {
		// 每轮先检查停止信号，保证正在进行的交换完成后不再取新命令
		select {
		case <-ctx.Done():
			return d.exit(ctx.Err())
		case <-d.stop:
			return d.exit(nil)
		default:
		}
		select {
		case <-ctx.Done():
			return d.exit(ctx.Err())
		case <-d.stop:
			return d.exit(nil)
		case p := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			d.execute(p)
		}
	}
}

func (d *Dispatcher) exit(err error) error {
	d.log.Info("session worker stopped", zap.Int("dropped", len(d.queue)), zap.Error(err))
	return err
}

func (d *Dispatcher) drain() {
	for {
		select {
		case p := <-d.queue:
			p.done <- result{err: ErrClosed}
		default:
			d.metrics.SetQueueDepth(0)
			return
		}
	}
}

// Submit 提交命令并阻塞到该命令自己的交换完成。
// 校验失败的帧返回 (nil, nil)，表示本轮无数据；只写命令同样返回 (nil, nil)。
func (d *Dispatcher) Submit(ctx context.Context, cmd mps.Command, opts ...SubmitOption) (*mps.Response, error) {
	if d.State() != StateActive {
		return nil, ErrClosed
	}
	return d.submit(ctx, cmd, opts...)
}

func (d *Dispatcher) submit(ctx context.Context, cmd mps.Command, opts ...SubmitOption) (*mps.Response, error) {
	so := submitOptions{timeout: d.submitTimeout, retries: d.retries}
	for _, opt := range opts {
		opt(&so)
	}
	if so.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, so.timeout)
		defer cancel()
	}

	p := &pending{
		id:      uuid.NewString(),
		cmd:     cmd,
		ctx:     ctx,
		retries: so.retries,
		done:    make(chan result, 1),
	}

	select {
	case d.queue <- p:
		d.metrics.SetQueueDepth(len(d.queue))
	case <-ctx.Done():
		return nil, d.abandon(p, ctx)
	case <-d.stopped:
		return nil, ErrClosed
	}

	select {
	case r := <-p.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, d.abandon(p, ctx)
	case <-d.stopped:
		select {
		case r := <-p.done:
			return r.resp, r.err
		default:
			return nil, ErrClosed
		}
	}
}

func (d *Dispatcher) abandon(p *pending, ctx context.Context) error {
	d.metrics.IncSubmitTimeout()
	d.log.Warn("submit abandoned",
		zap.String("id", p.id),
		zap.String("cmd", p.cmd.String()),
		zap.Error(ctx.Err()))
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrSubmitTimeout, p.cmd, ctx.Err())
	}
	return ctx.Err()
}

// execute 在 worker 中执行一条命令并发出完成信号
func (d *Dispatcher) execute(p *pending) {
	if err := p.ctx.Err(); err != nil {
		d.log.Debug("skip abandoned command", zap.String("id", p.id), zap.String("cmd", p.cmd.String()))
		p.done <- result{err: err}
		return
	}
	if err := d.throttle.Wait(p.ctx); err != nil {
		p.done <- result{err: err}
		return
	}

	var (
		resp *mps.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = d.exchange(p)
		if err == nil || attempt >= p.retries || p.ctx.Err() != nil {
			break
		}
		d.log.Warn("exchange failed, retrying",
			zap.String("id", p.id),
			zap.String("cmd", p.cmd.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	if resp != nil {
		d.record(resp)
	}
	p.done <- result{resp: resp, err: err}
}

// exchange 一次写请求/读响应。锁不跨越任何 I/O。
func (d *Dispatcher) exchange(p *pending) (*mps.Response, error) {
	cmd := p.cmd
	name := mps.Lookup(cmd.ID()).Name
	start := time.Now()

	frame := cmd.Encode()
	d.log.Debug("tx", zap.String("id", p.id), zap.String("cmd", cmd.String()), zap.String("hex", hex.EncodeToString(frame)))
	if err := d.tr.Write(frame); err != nil {
		d.metrics.ObserveExchange(name, metrics.ResultError, 0)
		return nil, fmt.Errorf("%w: write %s: %w", ErrTransport, cmd, err)
	}
	if !cmd.ExpectsResponse() {
		d.metrics.AddBytes(len(frame), 0)
		d.metrics.ObserveExchange(name, metrics.ResultSent, time.Since(start).Seconds())
		return nil, nil
	}

	raw, err := d.tr.ReadExact(cmd.ResponseLen(), d.readTimeout)
	if err != nil {
		d.metrics.ObserveExchange(name, metrics.ResultError, 0)
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, cmd, err)
	}
	if rest := cmd.Remaining(raw); rest > 0 {
		tail, err := d.tr.ReadExact(rest, d.readTimeout)
		if err != nil {
			d.metrics.ObserveExchange(name, metrics.ResultError, 0)
			return nil, fmt.Errorf("%w: read %s tail: %w", ErrTransport, cmd, err)
		}
		raw = append(raw, tail...)
	}
	d.metrics.AddBytes(len(frame), len(raw))
	d.log.Debug("rx", zap.String("id", p.id), zap.String("cmd", cmd.String()), zap.String("hex", hex.EncodeToString(raw)))

	resp := cmd.Decode(raw)
	if resp == nil {
		d.metrics.ObserveExchange(name, metrics.ResultDiscarded, time.Since(start).Seconds())
		d.log.Warn("discarded invalid response frame",
			zap.String("id", p.id),
			zap.String("cmd", cmd.String()),
			zap.Int("len", len(raw)),
			zap.String("hex", hex.EncodeToString(raw)))
		if f, ok := d.tr.(flusher); ok {
			if err := f.Flush(); err != nil {
				d.log.Warn("flush input failed", zap.Error(err))
			}
		}
		return nil, nil
	}
	d.metrics.ObserveExchange(name, metrics.ResultOK, time.Since(start).Seconds())
	d.metrics.ObserveStatus(name, resp.Status.String())
	if !resp.OK() {
		d.log.Warn("device reported error", zap.String("cmd", cmd.String()), zap.String("status", resp.Status.String()))
	}
	return resp, nil
}

// record 将结果折叠进会话状态，仅由 worker 调用
func (d *Dispatcher) record(resp *mps.Response) {
	cc, isAnswer := resp.CycleCount()
	v, isVersion := mps.VersionFromResponse(resp)

	d.mu.Lock()
	d.last = resp
	d.updated = time.Now()
	if isAnswer {
		d.answer = resp
		d.cycle = cc
		d.hasCycle = true
	}
	if isVersion {
		d.version = v
	}
	d.mu.Unlock()

	if isAnswer {
		conc, _ := resp.Float(mps.FieldConcentration)
		temp, _ := resp.Float(mps.FieldTemperature)
		pres, _ := resp.Float(mps.FieldPressure)
		rh, _ := resp.Float(mps.FieldRelHumidity)
		ah, _ := resp.Float(mps.FieldAbsHumidity)
		d.metrics.SetReading(conc, temp, pres, rh, ah, cc)
	}
}

// Data 最近一次解码结果的副本
func (d *Dispatcher) Data() *mps.Response {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last.Clone()
}

// LastAnswer 最近一次成功的 ANSWER 及其时间
func (d *Dispatcher) LastAnswer() (*mps.Response, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.answer.Clone(), d.updated
}

// CycleCount 最近一次 ANSWER 上报的测量周期计数
func (d *Dispatcher) CycleCount() (uint32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cycle, d.hasCycle
}

// Version 缓存的版本信息：初始为期望版本，RefreshVersion 后为实际版本
func (d *Dispatcher) Version() mps.VersionInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// RefreshVersion 向仪表查询版本并更新缓存
func (d *Dispatcher) RefreshVersion(ctx context.Context, opts ...SubmitOption) (mps.VersionInfo, error) {
	resp, err := d.Submit(ctx, mps.Version(), opts...)
	if err != nil {
		return mps.VersionInfo{}, err
	}
	if resp == nil {
		return mps.VersionInfo{}, errors.New("session: no valid VERSION response")
	}
	v, ok := mps.VersionFromResponse(resp)
	if !ok {
		return mps.VersionInfo{}, fmt.Errorf("session: VERSION returned status %s", resp.Status)
	}
	return v, nil
}

func (d *Dispatcher) State() State { return State(d.state.Load()) }

// QueueLen 当前排队命令数
func (d *Dispatcher) QueueLen() int { return len(d.queue) }

// Throttle 返回节流器（可能为 nil）
func (d *Dispatcher) Throttle() *Throttle { return d.throttle }

// Shutdown 停止测量并关机，然后停止 worker、关闭链路、清空缓存。
// 已入队的命令先于停止命令执行；Shutdown 之后的提交返回 ErrClosed。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(StateActive), int32(StateShuttingDown)) {
		return ErrClosed
	}
	d.log.Info("session shutting down")

	var errs []error
	if d.running.Load() {
		for _, cmd := range []mps.Command{mps.Measurement(d.unit, mps.ModeStop), mps.Shutdown()} {
			if _, err := d.submit(ctx, cmd, SubmitRetries(0)); err != nil {
				d.log.Warn("shutdown command failed", zap.String("cmd", cmd.String()), zap.Error(err))
				errs = append(errs, err)
			}
		}
		close(d.stop)
		select {
		case <-d.stopped:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	} else {
		close(d.stop)
	}

	if err := d.tr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: close: %w", ErrTransport, err))
	}

	d.mu.Lock()
	d.last, d.answer = nil, nil
	d.cycle, d.hasCycle = 0, false
	d.version = mps.VersionInfo{}
	d.updated = time.Time{}
	d.mu.Unlock()

	d.state.Store(int32(StateClosed))
	d.log.Info("session closed")
	return errors.Join(errs...)
}
