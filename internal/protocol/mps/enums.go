package mps

import (
	"fmt"
	"strings"
)

// Status 响应头中的设备状态码
type Status uint8

const (
	StatusOK                Status = 0x00
	StatusCRCFailed         Status = 0x01
	StatusBadParam          Status = 0x02
	StatusExeFailed         Status = 0x03
	StatusNoMem             Status = 0x04
	StatusUnknownCmd        Status = 0x05
	StatusIncompleteCommand Status = 0x07
	StatusErrorAO           Status = 0x20
	StatusErrorVDD          Status = 0x21
	StatusErrorVREF         Status = 0x22
	StatusEnvOutOfRange     Status = 0x23
	StatusSensorMalfunction Status = 0x24
	StatusFlashError        Status = 0x25
	StatusSensorInit        Status = 0x26
	StatusNegativeReading   Status = 0x27
	StatusCondensation      Status = 0x28
	StatusMalfunction       Status = 0x29
)

var statusNames = map[Status]string{
	StatusOK:                "OK",
	StatusCRCFailed:         "CRC_FAILED",
	StatusBadParam:          "BAD_PARAM",
	StatusExeFailed:         "EXE_FAILED",
	StatusNoMem:             "NO_MEM",
	StatusUnknownCmd:        "UNKNOWN_CMD",
	StatusIncompleteCommand: "INCOMPLETE_COMMAND",
	StatusErrorAO:           "ERROR_AO",
	StatusErrorVDD:          "ERROR_VDD",
	StatusErrorVREF:         "ERROR_VREF",
	StatusEnvOutOfRange:     "ENV_OUT_OF_RANGE",
	StatusSensorMalfunction: "SENSOR_MALFUNCTION",
	StatusFlashError:        "FLASH_ERROR",
	StatusSensorInit:        "SENSOR_INIT",
	StatusNegativeReading:   "NEGATIVE_READING",
	StatusCondensation:      "CONDENSATION",
	StatusMalfunction:       "MALFUNCTION",
}

// Known 是否为协议定义的状态码
func (s Status) Known() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
}

// GasID 气体识别结果。协议保留 253..255 表示未知/欠量程/超量程，
// 它们是正常取值而不是错误。
type GasID uint32

const (
	GasNone            GasID = 0
	GasHydrogen        GasID = 1
	GasHydrogenMixture GasID = 2
	GasMethane         GasID = 3
	GasLight           GasID = 4
	GasMedium          GasID = 5
	GasHeavy           GasID = 6
	GasUnknown         GasID = 253
	GasUnderRange      GasID = 254
	GasOverRange       GasID = 255
)

var gasNames = map[GasID]string{
	GasNone:            "NO_GAS",
	GasHydrogen:        "HYDROGEN",
	GasHydrogenMixture: "HYDROGEN_MIXTURE",
	GasMethane:         "METHANE",
	GasLight:           "LIGHT_GAS",
	GasMedium:          "MEDIUM_GAS",
	GasHeavy:           "HEAVY_GAS",
	GasUnknown:         "UNKNOWN_GAS",
	GasUnderRange:      "UNDER_RANGE",
	GasOverRange:       "OVER_RANGE",
}

// Known 是否为协议定义的气体编码
func (g GasID) Known() bool {
	_, ok := gasNames[g]
	return ok
}

// String 未定义的编码按 UNKNOWN_GAS 的语义呈现，但保留原值便于排查
func (g GasID) String() string {
	if n, ok := gasNames[g]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN_GAS(%d)", uint32(g))
}

// Unit 浓度单位选择（MEAS 负载低 4 位）
type Unit uint8

const (
	UnitPercentLEL    Unit = 0x0
	UnitPercentVolume Unit = 0x1
)

func (u Unit) String() string {
	switch u {
	case UnitPercentLEL:
		return "%LEL"
	case UnitPercentVolume:
		return "%VOL"
	default:
		return fmt.Sprintf("UNIT(%d)", uint8(u))
	}
}

// ParseUnit 解析配置/命令行中的单位
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lel", "%lel", "percent_lel":
		return UnitPercentLEL, nil
	case "vol", "%vol", "volume", "percent_volume":
		return UnitPercentVolume, nil
	}
	return 0, fmt.Errorf("unknown concentration unit %q", s)
}

// Mode 测量模式（MEAS 负载高 4 位）
type Mode uint8

const (
	ModeContinuous Mode = 0x2
	ModeStop       Mode = 0x3
)

func (m Mode) String() string {
	switch m {
	case ModeContinuous:
		return "CONTINUOUS"
	case ModeStop:
		return "STOP"
	default:
		return fmt.Sprintf("MODE(%d)", uint8(m))
	}
}

// ParseMode 解析配置/命令行中的测量模式
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continuous", "start":
		return ModeContinuous, nil
	case "stop", "stopped":
		return ModeStop, nil
	}
	return 0, fmt.Errorf("unknown measurement mode %q", s)
}

// MeasurementByte 组合 MEAS 请求负载：高 4 位模式，低 4 位单位
func MeasurementByte(unit Unit, mode Mode) byte {
	return byte(mode&0x0F)<<4 | byte(unit&0x0F)
}

// SplitMeasurementByte MeasurementByte 的逆操作
func SplitMeasurementByte(b byte) (Unit, Mode) {
	return Unit(b & 0x0F), Mode(b >> 4)
}
