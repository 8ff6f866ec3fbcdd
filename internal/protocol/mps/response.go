package mps

import (
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// 渲染键
const (
	KeyCommandID = "CommandId"
	KeyStatus    = "Status"
)

// Response 一次交换解出的结果。Status 非 OK 时 Fields 为空：
// 设备出错时负载不可信，调用方必须先检查 OK() 再读取字段。
type Response struct {
	Command CommandID
	Status  Status
	Fields  map[string]any
}

// OK 设备是否返回成功状态
func (r *Response) OK() bool { return r != nil && r.Status == StatusOK }

func (r *Response) field(name string) (any, bool) {
	if r == nil || r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Float 读取 f32 字段
func (r *Response) Float(name string) (float32, bool) {
	v, ok := r.field(name)
	if !ok {
		return 0, false
	}
	f, ok := v.(float32)
	return f, ok
}

// Uint 读取无符号整数字段（u8/u32）
func (r *Response) Uint(name string) (uint32, bool) {
	v, ok := r.field(name)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case uint8:
		return uint32(x), true
	case uint32:
		return x, true
	}
	return 0, false
}

// Text 读取文本字段
func (r *Response) Text(name string) (string, bool) {
	v, ok := r.field(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bytes 读取原始字节字段
func (r *Response) Bytes(name string) ([]byte, bool) {
	v, ok := r.field(name)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Gas 气体识别结果（ANSWER / ID）
func (r *Response) Gas() (GasID, bool) {
	v, ok := r.field(FieldGasID)
	if !ok {
		return 0, false
	}
	g, ok := v.(GasID)
	return g, ok
}

// SensorStatus STATUS 命令上报的传感器状态
func (r *Response) SensorStatus() (Status, bool) {
	v, ok := r.field(FieldSensorStatus)
	if !ok {
		return 0, false
	}
	s, ok := v.(Status)
	return s, ok
}

// CycleCount 仅 ANSWER 成功响应携带测量周期计数
func (r *Response) CycleCount() (uint32, bool) {
	if !r.OK() || r.Command != CmdAnswer {
		return 0, false
	}
	return r.Uint(FieldCycleCount)
}

// Clone 深拷贝，供会话状态对外只读暴露
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{Command: r.Command, Status: r.Status}
	if r.Fields != nil {
		out.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			if b, ok := v.([]byte); ok {
				v = slices.Clone(b)
			}
			out.Fields[k] = v
		}
	}
	return out
}

// Map 以字段名到值的形式渲染，枚举转为名称，字节转为十六进制
func (r *Response) Map() map[string]any {
	if r == nil {
		return nil
	}
	m := map[string]any{
		KeyCommandID: r.Command.String(),
		KeyStatus:    r.Status.String(),
	}
	for k, v := range r.Fields {
		switch x := v.(type) {
		case fmt.Stringer:
			m[k] = x.String()
		case []byte:
			m[k] = hex.EncodeToString(x)
		default:
			m[k] = v
		}
	}
	return m
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	keys := slices.Sorted(maps.Keys(r.Fields))
	var sb strings.Builder
	fmt.Fprintf(&sb, "{ CommandId: %s, Status: %s", r.Command, r.Status)
	m := r.Map()
	for _, k := range keys {
		fmt.Fprintf(&sb, ", %s: %v", k, m[k])
	}
	sb.WriteString(" }")
	return sb.String()
}

// VersionInfo 版本信息（软件 a.b.c.d / 硬件 a.b / 协议 a.b）
type VersionInfo struct {
	SW       string `json:"sw" yaml:"sw" mapstructure:"sw"`
	HW       string `json:"hw" yaml:"hw" mapstructure:"hw"`
	Protocol string `json:"protocol" yaml:"protocol" mapstructure:"protocol"`
}

// IsZero 未设置任何版本
func (v VersionInfo) IsZero() bool { return v == VersionInfo{} }

func (v VersionInfo) String() string {
	return fmt.Sprintf("sw=%s hw=%s protocol=%s", v.SW, v.HW, v.Protocol)
}

// VersionFromResponse 从 VERSION 成功响应提取版本信息
func VersionFromResponse(r *Response) (VersionInfo, bool) {
	if !r.OK() || r.Command != CmdVersion {
		return VersionInfo{}, false
	}
	sw, ok1 := r.Text(FieldSWVersion)
	hw, ok2 := r.Text(FieldHWVersion)
	pv, ok3 := r.Text(FieldProtocolVersion)
	if !ok1 || !ok2 || !ok3 {
		return VersionInfo{}, false
	}
	return VersionInfo{SW: sw, HW: hw, Protocol: pv}, true
}

// SensorInfo SENSOR_INFO 响应内容
type SensorInfo struct {
	SerialNumber    string `json:"serial_number" yaml:"serial_number"`
	SensorType      uint32 `json:"sensor_type" yaml:"sensor_type"`
	CalibrationDate string `json:"calibration_date" yaml:"calibration_date"`
	ManufactureDate string `json:"manufacture_date" yaml:"manufacture_date"`
}

// SensorInfoFromResponse 从 SENSOR_INFO 成功响应提取
func SensorInfoFromResponse(r *Response) (SensorInfo, bool) {
	if !r.OK() || r.Command != CmdSensorInfo {
		return SensorInfo{}, false
	}
	var info SensorInfo
	var ok bool
	if info.SerialNumber, ok = r.Text(FieldSerialNum); !ok {
		return SensorInfo{}, false
	}
	if info.SensorType, ok = r.Uint(FieldSensorType); !ok {
		return SensorInfo{}, false
	}
	info.CalibrationDate, _ = r.Text(FieldCalibrationDate)
	info.ManufactureDate, _ = r.Text(FieldManufactureDate)
	return info, true
}
