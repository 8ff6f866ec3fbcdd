package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/storage/models"
)

// ErrNotFound 传感器未登记
var ErrNotFound = errors.New("sensor not found")

// Open 打开 PostgreSQL 的 gorm 连接（静默 gorm 自身日志）
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return db, nil
}

// Repository 基于 GORM 的传感器登记表
type Repository struct {
	db *gorm.DB
}

// New 返回使用给定 *gorm.DB 的登记表
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate 建立/更新 sensors 表
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&models.Sensor{})
}

// Register 按序列号登记仪表：不存在则插入，存在则刷新描述信息与 last_seen_at。
func (r *Repository) Register(ctx context.Context, info mps.SensorInfo, v mps.VersionInfo) (*models.Sensor, error) {
	if info.SerialNumber == "" {
		return nil, errors.New("register sensor: empty serial number")
	}
	now := time.Now()
	record := &models.Sensor{
		SerialNum:       info.SerialNumber,
		SensorType:      int64(info.SensorType),
		CalibrationDate: info.CalibrationDate,
		ManufactureDate: info.ManufactureDate,
		SWVersion:       v.SW,
		HWVersion:       v.HW,
		ProtocolVersion: v.Protocol,
		LastSeenAt:      &now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "serial_num"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"sensor_type", "cal_date", "mfg_date",
				"sw_version", "hw_version", "protocol_version",
				"last_seen_at", "updated_at",
			}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}
	return r.GetBySerial(ctx, info.SerialNumber)
}

// Touch 刷新 last_seen_at
func (r *Repository) Touch(ctx context.Context, serial string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Sensor{}).
		Where("serial_num = ?", serial).
		Update("last_seen_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetBySerial 按序列号查询
func (r *Repository) GetBySerial(ctx context.Context, serial string) (*models.Sensor, error) {
	var s models.Sensor
	err := r.db.WithContext(ctx).Where("serial_num = ?", serial).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List 所有已登记仪表，按序列号排序
func (r *Repository) List(ctx context.Context) ([]models.Sensor, error) {
	var out []models.Sensor
	err := r.db.WithContext(ctx).Order("serial_num").Find(&out).Error
	return out, err
}
