package pg

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/gas-sensor/internal/migrate"
	"github.com/taoyao-code/gas-sensor/internal/storage/models"
)

// Migrations readings 表的向上/向下迁移
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Repository 读数历史（readings 表）
type Repository struct {
	Pool *pgxpool.Pool
}

// EnsureSchema 执行未应用的迁移（幂等）
func (r *Repository) EnsureSchema(ctx context.Context) error {
	sub, err := fs.Sub(Migrations, "migrations")
	if err != nil {
		return err
	}
	if err := (migrate.Runner{FS: sub}).Up(ctx, r.Pool); err != nil {
		return fmt.Errorf("migrate readings: %w", err)
	}
	return nil
}

// InsertReading 写入一条读数
func (r *Repository) InsertReading(ctx context.Context, rd models.Reading) error {
	const q = `INSERT INTO readings (sensor, measured_at, cycle, concentration, unit, gas,
                                     temperature, pressure, rel_humidity, abs_humidity)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, rd.Sensor, rd.Time, int64(rd.Cycle), rd.Concentration, rd.Unit, rd.Gas,
		rd.Temperature, rd.Pressure, rd.RelHumidity, rd.AbsHumidity)
	return err
}

// Recent 按时间倒序返回某传感器最近 limit 条读数
func (r *Repository) Recent(ctx context.Context, sensor string, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT sensor, measured_at, cycle, concentration, unit, gas,
                      temperature, pressure, rel_humidity, abs_humidity
               FROM readings WHERE sensor = $1
               ORDER BY measured_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, sensor, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Reading, error) {
		var (
			rd    models.Reading
			cycle int64
		)
		err := row.Scan(&rd.Sensor, &rd.Time, &cycle, &rd.Concentration, &rd.Unit, &rd.Gas,
			&rd.Temperature, &rd.Pressure, &rd.RelHumidity, &rd.AbsHumidity)
		rd.Cycle = uint32(cycle)
		return rd, err
	})
}

// Name 实现 poller.Sink
func (r *Repository) Name() string { return "postgres" }

// Write 实现 poller.Sink
func (r *Repository) Write(ctx context.Context, rd models.Reading) error {
	return r.InsertReading(ctx, rd)
}

// Close 连接池由调用方管理
func (r *Repository) Close() error { return nil }
