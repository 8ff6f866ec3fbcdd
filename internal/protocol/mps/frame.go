package mps

import (
	"encoding/binary"
	"errors"
)

// 请求帧：cmd(2) | len(2) | reserved(2)=0 | crc(2) | payload
// 响应帧：cmdEcho(1) | status(1) | len(2) | crc(2) | payload
// 全部小端。CRC 覆盖整帧，计算时 crc 字段置 0。
const (
	RequestHeaderLen  = 8
	ResponseHeaderLen = 6

	requestCRCOffset  = 6
	responseCRCOffset = 4
)

var (
	ErrShortFrame  = errors.New("short frame")
	ErrBadChecksum = errors.New("bad checksum")
	ErrBadLength   = errors.New("bad length")
	ErrReserved    = errors.New("reserved field not zero")
)

// EncodeRequest 构造请求帧：先写入 crc=0 的头部与负载，再回填 crc
func EncodeRequest(id CommandID, payload []byte) []byte {
	buf := make([]byte, RequestHeaderLen+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(id))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[RequestHeaderLen:], payload)
	binary.LittleEndian.PutUint16(buf[requestCRCOffset:], CRC16(CRCSeed, buf))
	return buf
}

// DecodeRequest 解析请求帧（仪表侧/模拟器使用）
func DecodeRequest(raw []byte) (CommandID, []byte, error) {
	if len(raw) < RequestHeaderLen {
		return 0, nil, ErrShortFrame
	}
	n := int(binary.LittleEndian.Uint16(raw[2:4]))
	if len(raw) != RequestHeaderLen+n {
		return 0, nil, ErrBadLength
	}
	if binary.LittleEndian.Uint16(raw[4:6]) != 0 {
		return 0, nil, ErrReserved
	}
	if checksumOf(raw, requestCRCOffset) != binary.LittleEndian.Uint16(raw[requestCRCOffset:]) {
		return 0, nil, ErrBadChecksum
	}
	id := CommandID(binary.LittleEndian.Uint16(raw[0:2]))
	return id, raw[RequestHeaderLen:], nil
}

// EncodeResponse 构造响应帧（仪表侧/模拟器/测试使用）
func EncodeResponse(id CommandID, status Status, payload []byte) []byte {
	buf := make([]byte, ResponseHeaderLen+len(payload))
	buf[0] = byte(id)
	buf[1] = byte(status)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[ResponseHeaderLen:], payload)
	binary.LittleEndian.PutUint16(buf[responseCRCOffset:], CRC16(CRCSeed, buf))
	return buf
}

// ValidateResponse 回显命令码一致且 crc 正确才可信；
// 校验失败的帧必须整体丢弃，不做部分解析。
func ValidateResponse(raw []byte, expected CommandID) bool {
	if len(raw) < ResponseHeaderLen {
		return false
	}
	if raw[0] != byte(expected) {
		return false
	}
	return checksumOf(raw, responseCRCOffset) == binary.LittleEndian.Uint16(raw[responseCRCOffset:])
}

// checksumOf 在副本上把 off 处两字节清零后计算 crc
func checksumOf(raw []byte, off int) uint16 {
	tmp := make([]byte, len(raw))
	copy(tmp, raw)
	tmp[off], tmp[off+1] = 0, 0
	return CRC16(CRCSeed, tmp)
}

// PayloadLen 响应头中声明的负载长度
func PayloadLen(raw []byte) int {
	if len(raw) < ResponseHeaderLen {
		return 0
	}
	return int(binary.LittleEndian.Uint16(raw[2:4]))
}
