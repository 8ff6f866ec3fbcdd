package health

import "sync/atomic"

// Readiness 启动阶段就绪标志：会话 worker 已运行且启动序列完成
type Readiness struct {
	sessionReady atomic.Bool
	pollerReady  atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetSessionReady(v bool) { r.sessionReady.Store(v) }
func (r *Readiness) SetPollerReady(v bool)  { r.pollerReady.Store(v) }

// Ready 各阶段均完成
func (r *Readiness) Ready() bool {
	return r.sessionReady.Load() && r.pollerReady.Load()
}
