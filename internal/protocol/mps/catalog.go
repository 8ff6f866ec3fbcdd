package mps

import "fmt"

// CommandID 命令码（请求头中为 u16，响应头回显低 8 位）
type CommandID uint16

const (
	CmdAnswer           CommandID = 0x01 // 综合测量结果
	CmdConcentration    CommandID = 0x03 // 浓度
	CmdID               CommandID = 0x04 // 气体识别
	CmdEngData          CommandID = 0x09 // 工程数据（变长）
	CmdTemperature      CommandID = 0x21 // 温度
	CmdPressure         CommandID = 0x22 // 气压
	CmdRelativeHumidity CommandID = 0x23 // 相对湿度
	CmdAbsoluteHumidity CommandID = 0x24 // 绝对湿度
	CmdStatus           CommandID = 0x41 // 传感器状态
	CmdVersion          CommandID = 0x42 // 固件/硬件/协议版本
	CmdSensorInfo       CommandID = 0x43 // 序列号、型号、日期
	CmdMeasurement      CommandID = 0x61 // 启停测量（无响应）
	CmdShutdown         CommandID = 0x62 // 关机（无响应）
)

// 响应字段名
const (
	FieldCycleCount      = "CYCLE_COUNT"
	FieldConcentration   = "CONCENTRATION"
	FieldGasID           = "ID"
	FieldTemperature     = "TEMPERATURE"
	FieldPressure        = "PRESSURE"
	FieldRelHumidity     = "REL_HUMIDITY"
	FieldAbsHumidity     = "ABS_HUMIDITY"
	FieldSensorStatus    = "SENSOR_STATUS"
	FieldSWVersion       = "SW_VERSION"
	FieldHWVersion       = "HW_VERSION"
	FieldProtocolVersion = "PROTOCOL_VERSION"
	FieldSerialNum       = "SERIAL_NUM"
	FieldSensorType      = "SENSOR_TYPE"
	FieldCalibrationDate = "CAL_DATE"
	FieldManufactureDate = "MFG_DATE"
	FieldEngDataLength   = "LENGTH"
	FieldEngData         = "DATA"
)

// Kind 字段的线上编码方式（小端）
type Kind uint8

const (
	KindU8     Kind = iota + 1 // 1 字节无符号
	KindU32                    // 4 字节无符号
	KindF32                    // 4 字节 IEEE754
	KindBytes                  // 定长原始字节
	KindString                 // 定长文本，尾部 NUL 填充
)

// Field 响应负载中的一个定宽字段
type Field struct {
	Name string
	Kind Kind
	Size int
}

// Descriptor 单条命令的静态形状
type Descriptor struct {
	Name        string
	RequestLen  int // 请求负载字节数
	ResponseLen int // 响应负载字节数（0 表示无响应）；变长命令为最大数据长度
	Fields      []Field
	// Dynamic 响应长度在解码时由负载中的长度字段决定
	Dynamic bool
}

// ExpectsResponse 命令是否有响应帧
func (d Descriptor) ExpectsResponse() bool { return d.ResponseLen > 0 }

func (d Descriptor) fieldBytes() int {
	n := 0
	for _, f := range d.Fields {
		n += f.Size
	}
	return n
}

// MaxEngDataLen ENG_DATA 长度字段允许的最大数据字节数
const MaxEngDataLen = 128

// engDataPrefixLen ENG_DATA 负载中长度字段的字节数
const engDataPrefixLen = 4

func u32(name string) Field { return Field{Name: name, Kind: KindU32, Size: 4} }
func f32(name string) Field { return Field{Name: name, Kind: KindF32, Size: 4} }

var catalog = map[CommandID]Descriptor{
	CmdAnswer: {Name: "ANSWER", ResponseLen: 28, Fields: []Field{
		u32(FieldCycleCount),
		f32(FieldConcentration),
		u32(FieldGasID),
		f32(FieldTemperature),
		f32(FieldPressure),
		f32(FieldRelHumidity),
		f32(FieldAbsHumidity),
	}},
	CmdConcentration:    {Name: "CONC", ResponseLen: 4, Fields: []Field{f32(FieldConcentration)}},
	CmdID:               {Name: "ID", ResponseLen: 4, Fields: []Field{u32(FieldGasID)}},
	CmdTemperature:      {Name: "TEMP", ResponseLen: 4, Fields: []Field{f32(FieldTemperature)}},
	CmdPressure:         {Name: "PRES", ResponseLen: 4, Fields: []Field{f32(FieldPressure)}},
	CmdRelativeHumidity: {Name: "REL_HUM", ResponseLen: 4, Fields: []Field{f32(FieldRelHumidity)}},
	CmdAbsoluteHumidity: {Name: "ABS_HUM", ResponseLen: 4, Fields: []Field{f32(FieldAbsHumidity)}},
	CmdStatus:           {Name: "STATUS", ResponseLen: 1, Fields: []Field{{Name: FieldSensorStatus, Kind: KindU8, Size: 1}}},
	CmdVersion: {Name: "VERSION", ResponseLen: 8, Fields: []Field{
		{Name: FieldSWVersion, Kind: KindBytes, Size: 4},
		{Name: FieldHWVersion, Kind: KindBytes, Size: 2},
		{Name: FieldProtocolVersion, Kind: KindBytes, Size: 2},
	}},
	CmdSensorInfo: {Name: "SENSOR_INFO", ResponseLen: 68, Fields: []Field{
		{Name: FieldSerialNum, Kind: KindString, Size: 32},
		u32(FieldSensorType),
		{Name: FieldCalibrationDate, Kind: KindString, Size: 16},
		{Name: FieldManufactureDate, Kind: KindString, Size: 16},
	}},
	CmdEngData: {Name: "ENG_DATA", ResponseLen: MaxEngDataLen, Dynamic: true, Fields: []Field{
		u32(FieldEngDataLength),
		{Name: FieldEngData, Kind: KindBytes},
	}},
	CmdMeasurement: {Name: "MEAS", RequestLen: 1},
	CmdShutdown:    {Name: "SHUTDOWN"},
}

func init() {
	for id, d := range catalog {
		if d.Dynamic {
			continue
		}
		if d.fieldBytes() != d.ResponseLen {
			panic(fmt.Sprintf("mps: descriptor %s(0x%02X) fields cover %d bytes, want %d", d.Name, uint16(id), d.fieldBytes(), d.ResponseLen))
		}
	}
}

// Describe 查询命令形状；未知命令返回 false
func Describe(id CommandID) (Descriptor, bool) {
	d, ok := catalog[id]
	return d, ok
}

// Lookup 查询命令形状；未知命令属于编程错误，直接 panic
func Lookup(id CommandID) Descriptor {
	d, ok := catalog[id]
	if !ok {
		panic(fmt.Sprintf("mps: unknown command id 0x%02X", uint16(id)))
	}
	return d
}

// Commands 返回全部已定义命令码（按数值升序）
func Commands() []CommandID {
	return []CommandID{
		CmdAnswer, CmdConcentration, CmdID, CmdEngData,
		CmdTemperature, CmdPressure, CmdRelativeHumidity, CmdAbsoluteHumidity,
		CmdStatus, CmdVersion, CmdSensorInfo, CmdMeasurement, CmdShutdown,
	}
}

func (id CommandID) String() string {
	if d, ok := catalog[id]; ok {
		return d.Name
	}
	return fmt.Sprintf("CMD(0x%02X)", uint16(id))
}
