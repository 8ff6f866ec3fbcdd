package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/gas-sensor/internal/config"
	"github.com/taoyao-code/gas-sensor/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/gas-sensor/internal/storage/pg"
)

// Database 读数历史（pgx）与传感器登记（gorm）共用同一个 PostgreSQL
type Database struct {
	Pool     *pgxpool.Pool
	Readings *pgstorage.Repository
	Sensors  *gormrepo.Repository
}

// ConnectDB 建立连接并执行迁移；未启用时返回 nil, nil
func ConnectDB(ctx context.Context, cfg cfgpkg.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	if !cfg.Enabled {
		logger.Info("database is disabled, skipping initialization")
		return nil, nil
	}
	pool, err := pgstorage.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("db connect error", zap.Error(err))
		return nil, err
	}
	readings := &pgstorage.Repository{Pool: pool}
	if err := readings.EnsureSchema(ctx); err != nil {
		pool.Close()
		logger.Error("db migrate error", zap.Error(err))
		return nil, err
	}

	gdb, err := gormrepo.Open(cfg.DSN)
	if err != nil {
		pool.Close()
		return nil, err
	}
	sensors := gormrepo.New(gdb)
	if err := sensors.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("database ready", zap.String("dsn", MaskDSN(cfg.DSN)))
	return &Database{Pool: pool, Readings: readings, Sensors: sensors}, nil
}

// Close 关闭连接池
func (d *Database) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}
