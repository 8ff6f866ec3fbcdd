package session

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Throttle 基于 Token Bucket 的交换节流：限制每秒发往仪表的命令数
type Throttle struct {
	limiter      *rate.Limiter
	ratePerSec   float64
	burst        int
	allowedCount atomic.Int64
	waitedCount  atomic.Int64
}

// NewThrottle 创建节流器
// ratePerSec: 每秒允许的交换数；<=0 时返回 nil（不限速）
// burst: 突发容量，默认 1，仪表一次只处理一条命令
func NewThrottle(ratePerSec float64, burst int) *Throttle {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Wait 等待下一个令牌；nil 节流器立即返回
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if t.limiter.Allow() {
		t.allowedCount.Add(1)
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.waitedCount.Add(1)
	t.allowedCount.Add(1)
	return nil
}

// Stats 获取统计信息
func (t *Throttle) Stats() ThrottleStats {
	if t == nil {
		return ThrottleStats{}
	}
	return ThrottleStats{
		RatePerSecond: t.ratePerSec,
		Burst:         t.burst,
		AllowedTotal:  t.allowedCount.Load(),
		WaitedTotal:   t.waitedCount.Load(),
	}
}

// ThrottleStats 节流统计
type ThrottleStats struct {
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
	AllowedTotal  int64   `json:"allowed_total"`
	WaitedTotal   int64   `json:"waited_total"`
}
