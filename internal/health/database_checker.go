package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseChecker 审计库健康检查。审计是旁路功能，库不可用只降级。
type DatabaseChecker struct {
	pool    *pgxpool.Pool
	dropped func() int64
}

// NewDatabaseChecker dropped 可为 nil，用于报告审计队列丢弃数
func NewDatabaseChecker(pool *pgxpool.Pool, dropped func() int64) *DatabaseChecker {
	return &DatabaseChecker{pool: pool, dropped: dropped}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.pool.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.pool.Stat()
	utilization := 0.0
	if stats.MaxConns() > 0 {
		utilization = float64(stats.AcquiredConns()) / float64(stats.MaxConns())
	}

	status := StatusHealthy
	message := "ok"
	if utilization >= 0.9 {
		status = StatusDegraded
		message = "connection pool near limit"
	}

	details := map[string]any{
		"total_conns":    stats.TotalConns(),
		"idle_conns":     stats.IdleConns(),
		"acquired_conns": stats.AcquiredConns(),
		"max_conns":      stats.MaxConns(),
		"utilization":    fmt.Sprintf("%.1f%%", utilization*100),
	}
	if c.dropped != nil {
		if n := c.dropped(); n > 0 {
			details["audit_dropped"] = n
			if status == StatusHealthy {
				status = StatusDegraded
				message = "audit queue overflow"
			}
		}
	}

	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
