package mps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16_KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		seed uint16
		data []byte
		want uint16
	}{
		{name: "CCITT-FALSE 校验串", seed: 0xFFFF, data: []byte("123456789"), want: 0x29B1},
		{name: "XMODEM 校验串", seed: 0x0000, data: []byte("123456789"), want: 0x31C3},
		{name: "空输入返回种子", seed: 0xFFFF, data: nil, want: 0xFFFF},
		{name: "单字节零", seed: 0xFFFF, data: []byte{0x00}, want: 0xE1F0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC16(tt.seed, tt.data))
		})
	}
}

func TestCRC16_Incremental(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	whole := CRC16(CRCSeed, data)
	part := CRC16(CRC16(CRCSeed, data[:2]), data[2:])
	assert.Equal(t, whole, part, "分段计算应与整体一致")
}

func TestCRC16_Different(t *testing.T) {
	assert.NotEqual(t, CRC16(CRCSeed, []byte{1, 2, 3}), CRC16(CRCSeed, []byte{1, 2, 4}))
}
