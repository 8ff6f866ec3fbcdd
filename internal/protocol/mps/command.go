package mps

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Command 可提交给会话的一条命令：负责编码请求、解释响应
type Command interface {
	ID() CommandID
	// Encode 生成完整请求帧
	Encode() []byte
	// Decode 校验并解释响应帧；校验失败返回 nil，状态非 OK 只含命令码与状态
	Decode(raw []byte) *Response
	// ExpectsResponse 为 false 时只写不读
	ExpectsResponse() bool
	// ResponseLen 首次读取的字节数（含响应头）
	ResponseLen() int
	// Remaining 根据首次读取的内容计算还需读取的字节数（仅变长命令非 0）
	Remaining(prefix []byte) int
	String() string
}

type command struct {
	id      CommandID
	desc    Descriptor
	payload []byte
}

func newCommand(id CommandID, payload []byte) *command {
	d := Lookup(id)
	if len(payload) != d.RequestLen {
		panic(fmt.Sprintf("mps: %s request payload is %d bytes, want %d", d.Name, len(payload), d.RequestLen))
	}
	return &command{id: id, desc: d, payload: payload}
}

func (c *command) ID() CommandID { return c.id }

func (c *command) Encode() []byte { return EncodeRequest(c.id, c.payload) }

func (c *command) ExpectsResponse() bool { return c.desc.ExpectsResponse() }

func (c *command) ResponseLen() int {
	switch {
	case !c.desc.ExpectsResponse():
		return 0
	case c.desc.Dynamic:
		return ResponseHeaderLen + engDataPrefixLen
	default:
		return ResponseHeaderLen + c.desc.ResponseLen
	}
}

func (c *command) Remaining(prefix []byte) int {
	if !c.desc.Dynamic || len(prefix) < ResponseHeaderLen+engDataPrefixLen {
		return 0
	}
	n := binary.LittleEndian.Uint32(prefix[ResponseHeaderLen:])
	if n > MaxEngDataLen {
		// 超限长度不再多读，交给 Decode 丢弃
		return 0
	}
	return int(n)
}

func (c *command) Decode(raw []byte) *Response {
	if !c.desc.ExpectsResponse() || !ValidateResponse(raw, c.id) {
		return nil
	}
	if Status(raw[1]) != StatusOK {
		return DecodeStatusOnly(raw)
	}
	if fn, ok := strategies[c.id]; ok {
		return fn(raw, c.desc)
	}
	return DecodeFields(raw, c.desc)
}

func (c *command) String() string {
	if c.id == CmdMeasurement && len(c.payload) == 1 {
		unit, mode := SplitMeasurementByte(c.payload[0])
		return fmt.Sprintf("%s(%s,%s)", c.desc.Name, unit, mode)
	}
	return c.desc.Name
}

func Answer() Command           { return newCommand(CmdAnswer, nil) }
func Concentration() Command    { return newCommand(CmdConcentration, nil) }
func GasIdentity() Command      { return newCommand(CmdID, nil) }
func EngData() Command          { return newCommand(CmdEngData, nil) }
func Temperature() Command      { return newCommand(CmdTemperature, nil) }
func Pressure() Command         { return newCommand(CmdPressure, nil) }
func RelativeHumidity() Command { return newCommand(CmdRelativeHumidity, nil) }
func AbsoluteHumidity() Command { return newCommand(CmdAbsoluteHumidity, nil) }
func SensorStatus() Command     { return newCommand(CmdStatus, nil) }
func Version() Command          { return newCommand(CmdVersion, nil) }
func SensorInfoQuery() Command  { return newCommand(CmdSensorInfo, nil) }
func Shutdown() Command         { return newCommand(CmdShutdown, nil) }

// Measurement 启停测量，只写不读
func Measurement(unit Unit, mode Mode) Command {
	return newCommand(CmdMeasurement, []byte{MeasurementByte(unit, mode)})
}

// New 按命令码构造无请求负载的命令
func New(id CommandID) (Command, error) {
	d, ok := Describe(id)
	if !ok {
		return nil, fmt.Errorf("unknown command id 0x%02X", uint16(id))
	}
	if d.RequestLen != 0 {
		return nil, fmt.Errorf("command %s requires a payload", d.Name)
	}
	return newCommand(id, nil), nil
}

// ParseCommand 按名称（不区分大小写，- 与 _ 等价）构造无负载命令
func ParseCommand(name string) (Command, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	for _, id := range Commands() {
		if catalog[id].Name == key {
			return New(id)
		}
	}
	switch key {
	case "CONCENTRATION":
		return New(CmdConcentration)
	case "TEMPERATURE":
		return New(CmdTemperature)
	case "PRESSURE":
		return New(CmdPressure)
	case "INFO":
		return New(CmdSensorInfo)
	}
	return nil, fmt.Errorf("unknown command %q", name)
}
