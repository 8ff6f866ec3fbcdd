package mps

import (
	"encoding/binary"
	"math"
	"slices"
	"strconv"
	"strings"
)

// DecodeStatusOnly 只解析回显命令码与状态。状态非 OK 时一律走这里。
func DecodeStatusOnly(raw []byte) *Response {
	if len(raw) < ResponseHeaderLen {
		return nil
	}
	return &Response{Command: CommandID(raw[0]), Status: Status(raw[1])}
}

// DecodeFields 通用表驱动解码：按描述符顺序拆出定宽字段并按位置命名。
// 负载不足以覆盖全部字段时返回 nil。
func DecodeFields(raw []byte, d Descriptor) *Response {
	resp := DecodeStatusOnly(raw)
	if resp == nil {
		return nil
	}
	payload := raw[ResponseHeaderLen:]
	if len(payload) < d.fieldBytes() {
		return nil
	}
	resp.Fields = make(map[string]any, len(d.Fields))
	off := 0
	for _, f := range d.Fields {
		b := payload[off : off+f.Size]
		off += f.Size
		switch f.Kind {
		case KindU8:
			resp.Fields[f.Name] = b[0]
		case KindU32:
			resp.Fields[f.Name] = binary.LittleEndian.Uint32(b)
		case KindF32:
			resp.Fields[f.Name] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case KindBytes:
			resp.Fields[f.Name] = slices.Clone(b)
		case KindString:
			resp.Fields[f.Name] = TrimStr(b)
		default:
			panic("mps: field " + f.Name + " has no wire kind")
		}
	}
	return resp
}

// TrimStr 定长文本去掉尾部 NUL 填充
func TrimStr(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// decodeFunc 命令专属的解码策略；入参已通过校验且状态为 OK
type decodeFunc func(raw []byte, d Descriptor) *Response

// strategies 需要偏离通用解码的命令。SENSOR_INFO 的定长文本由
// KindString 在通用路径中处理，不需要单独策略。
var strategies = map[CommandID]decodeFunc{
	CmdAnswer:  decodeGasField,
	CmdID:      decodeGasField,
	CmdStatus:  decodeSensorStatus,
	CmdVersion: decodeVersion,
	CmdEngData: decodeEngData,
}

// decodeGasField ID 字段重解释为气体枚举
func decodeGasField(raw []byte, d Descriptor) *Response {
	resp := DecodeFields(raw, d)
	if resp == nil {
		return nil
	}
	if v, ok := resp.Fields[FieldGasID].(uint32); ok {
		resp.Fields[FieldGasID] = GasID(v)
	}
	return resp
}

func decodeSensorStatus(raw []byte, d Descriptor) *Response {
	resp := DecodeFields(raw, d)
	if resp == nil {
		return nil
	}
	if v, ok := resp.Fields[FieldSensorStatus].(uint8); ok {
		resp.Fields[FieldSensorStatus] = Status(v)
	}
	return resp
}

// decodeVersion 8 字节组合为三个点分版本串，各段即原始字节值
func decodeVersion(raw []byte, d Descriptor) *Response {
	resp := DecodeFields(raw, d)
	if resp == nil {
		return nil
	}
	for _, name := range []string{FieldSWVersion, FieldHWVersion, FieldProtocolVersion} {
		if b, ok := resp.Fields[name].([]byte); ok {
			resp.Fields[name] = dotted(b)
		}
	}
	return resp
}

func dotted(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ".")
}

// decodeEngData 两遍解码：先取长度字段 L，再按 L 重新拆分整个缓冲区
func decodeEngData(raw []byte, d Descriptor) *Response {
	lengthField := d.Fields[0]
	head := DecodeFields(raw, Descriptor{Name: d.Name, Fields: []Field{lengthField}})
	if head == nil {
		return nil
	}
	n, _ := head.Fields[lengthField.Name].(uint32)
	if n > MaxEngDataLen {
		return nil
	}
	full := Descriptor{Name: d.Name, Fields: []Field{
		lengthField,
		{Name: FieldEngData, Kind: KindBytes, Size: int(n)},
	}}
	end := ResponseHeaderLen + engDataPrefixLen + int(n)
	if len(raw) < end {
		return nil
	}
	return DecodeFields(raw[:end], full)
}
