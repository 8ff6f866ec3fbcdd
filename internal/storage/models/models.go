package models

import (
	"time"

	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
)

// 注意：
// - Sensor 由 gorm 管理（AutoMigrate），Reading 由 pgx 直接写入 readings 表
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Sensor 映射 sensors 表：按序列号登记的仪表
type Sensor struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// SENSOR_INFO 报告的序列号
	SerialNum       string `gorm:"column:serial_num;type:text;not null;uniqueIndex"`
	SensorType      int64  `gorm:"column:sensor_type;not null"`
	CalibrationDate string `gorm:"column:cal_date;type:text"`
	ManufactureDate string `gorm:"column:mfg_date;type:text"`
	SWVersion       string `gorm:"column:sw_version;type:text"`
	HWVersion       string `gorm:"column:hw_version;type:text"`
	ProtocolVersion string `gorm:"column:protocol_version;type:text"`
	// 最近一次登记或采集
	LastSeenAt *time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Sensor) TableName() string { return "sensors" }

// Version 登记的版本信息
func (s Sensor) Version() mps.VersionInfo {
	return mps.VersionInfo{SW: s.SWVersion, HW: s.HWVersion, Protocol: s.ProtocolVersion}
}

// Reading 一次成功 ANSWER 的读数
type Reading struct {
	Time          time.Time `json:"time" yaml:"time"`
	Sensor        string    `json:"sensor,omitempty" yaml:"sensor,omitempty"`
	Cycle         uint32    `json:"cycle" yaml:"cycle"`
	Concentration float32   `json:"concentration" yaml:"concentration"`
	Unit          string    `json:"unit" yaml:"unit"`
	Gas           string    `json:"gas" yaml:"gas"`
	Temperature   float32   `json:"temperature" yaml:"temperature"`
	Pressure      float32   `json:"pressure" yaml:"pressure"`
	RelHumidity   float32   `json:"rel_humidity" yaml:"rel_humidity"`
	AbsHumidity   float32   `json:"abs_humidity" yaml:"abs_humidity"`
}

// ReadingFromResponse 从 ANSWER 成功响应构造读数；其他响应返回 false
func ReadingFromResponse(resp *mps.Response, unit mps.Unit, at time.Time) (Reading, bool) {
	cycle, ok := resp.CycleCount()
	if !ok {
		return Reading{}, false
	}
	r := Reading{Time: at, Cycle: cycle, Unit: unit.String()}
	r.Concentration, _ = resp.Float(mps.FieldConcentration)
	r.Temperature, _ = resp.Float(mps.FieldTemperature)
	r.Pressure, _ = resp.Float(mps.FieldPressure)
	r.RelHumidity, _ = resp.Float(mps.FieldRelHumidity)
	r.AbsHumidity, _ = resp.Float(mps.FieldAbsHumidity)
	if gas, ok := resp.Gas(); ok {
		r.Gas = gas.String()
	}
	return r, true
}
