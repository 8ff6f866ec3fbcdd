package app

import (
	"time"

	"github.com/taoyao-code/gas-sensor/internal/health"
	"github.com/taoyao-code/gas-sensor/internal/poller"
	redisstorage "github.com/taoyao-code/gas-sensor/internal/storage/redis"
)

// NewHealthAggregator 串口会话必查；Redis 与数据库按启用情况加入
func NewHealthAggregator(sess health.SessionView, p *poller.Poller, pollInterval time.Duration, rdb *redisstorage.Client, db *Database) *health.Aggregator {
	var br *poller.Breaker
	if p != nil {
		br = p.Breaker()
	}
	// 连续 5 个采集周期没有新读数视为降级
	agg := health.NewAggregator(health.NewSensorChecker(sess, br, 5*pollInterval))
	if rdb != nil {
		agg.AddChecker(health.NewRedisChecker(rdb))
	}
	if db != nil {
		agg.AddChecker(health.NewDatabaseChecker(db.Pool))
	}
	return agg
}
