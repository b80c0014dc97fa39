package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/hlk-radar/internal/health"
	redisstorage "github.com/taoyao-code/hlk-radar/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器：生命周期与设备可用性
func NewHealthAggregator(ready *health.Readiness, devices health.DeviceSource) *health.Aggregator {
	return health.NewAggregator(ready, health.NewDevicesChecker(devices))
}

// AddDatabaseChecker 添加审计库检查器
func AddDatabaseChecker(aggregator *health.Aggregator, pool *pgxpool.Pool, dropped func() int64) {
	if pool != nil {
		aggregator.AddChecker(health.NewDatabaseChecker(pool, dropped))
	}
}

// AddRedisChecker 添加Redis检查器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
