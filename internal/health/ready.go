package health

import (
	"context"
	"sync/atomic"
)

// Readiness 进程生命周期就绪状态：启动完成且未进入停机
type Readiness struct {
	started  atomic.Bool
	draining atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetStarted(v bool)  { r.started.Store(v) }
func (r *Readiness) SetDraining(v bool) { r.draining.Store(v) }

// Ready 启动完成且未停机
func (r *Readiness) Ready() bool {
	return r.started.Load() && !r.draining.Load()
}

func (r *Readiness) Name() string { return "lifecycle" }

// Check 实现 Checker
func (r *Readiness) Check(context.Context) CheckResult {
	switch {
	case r.draining.Load():
		return CheckResult{Status: StatusUnhealthy, Message: "shutting down"}
	case !r.started.Load():
		return CheckResult{Status: StatusUnhealthy, Message: "starting"}
	default:
		return CheckResult{Status: StatusHealthy, Message: "ok"}
	}
}
