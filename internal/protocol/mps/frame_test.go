package mps

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sealResponse 按协议规则回填响应帧 crc（crc 字段清零后计算）
func sealResponse(raw []byte) []byte {
	raw[4], raw[5] = 0, 0
	binary.LittleEndian.PutUint16(raw[4:6], CRC16(CRCSeed, raw))
	return raw
}

func TestEncodeRequest_Layout(t *testing.T) {
	frame := EncodeRequest(CmdAnswer, nil)
	require.Len(t, frame, RequestHeaderLen)
	assert.Equal(t, uint16(CmdAnswer), binary.LittleEndian.Uint16(frame[0:2]))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(frame[2:4]), "无负载长度为 0")
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(frame[4:6]), "保留字段恒为 0")

	zeroed := append([]byte(nil), frame...)
	zeroed[6], zeroed[7] = 0, 0
	assert.Equal(t, CRC16(CRCSeed, zeroed), binary.LittleEndian.Uint16(frame[6:8]))
}

func TestEncodeRequest_WithPayload(t *testing.T) {
	b := MeasurementByte(UnitPercentVolume, ModeContinuous)
	frame := EncodeRequest(CmdMeasurement, []byte{b})
	require.Len(t, frame, RequestHeaderLen+1)
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(frame[2:4]))
	assert.Equal(t, b, frame[8])

	id, payload, err := DecodeRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, CmdMeasurement, id)
	assert.Equal(t, []byte{b}, payload)
}

func TestDecodeRequest_Errors(t *testing.T) {
	frame := EncodeRequest(CmdVersion, nil)

	_, _, err := DecodeRequest(frame[:5])
	assert.ErrorIs(t, err, ErrShortFrame)

	bad := append([]byte(nil), frame...)
	bad[0] ^= 0xFF
	_, _, err = DecodeRequest(bad)
	assert.ErrorIs(t, err, ErrBadChecksum)

	long := append(append([]byte(nil), frame...), 0x00)
	_, _, err = DecodeRequest(long)
	assert.ErrorIs(t, err, ErrBadLength)

	reserved := append([]byte(nil), frame...)
	reserved[4] = 1
	_, _, err = DecodeRequest(reserved)
	assert.ErrorIs(t, err, ErrReserved)
}

func TestValidateResponse_ChecksumInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := ResponseHeaderLen + rng.Intn(80)
		raw := make([]byte, n)
		rng.Read(raw)
		sealResponse(raw)
		id := CommandID(raw[0])
		require.True(t, ValidateResponse(raw, id), "case %d: 正确 crc 应通过", i)

		for bit := 0; bit < (n-ResponseHeaderLen)*8; bit++ {
			flipped := append([]byte(nil), raw...)
			flipped[ResponseHeaderLen+bit/8] ^= 1 << (bit % 8)
			if ValidateResponse(flipped, id) {
				t.Fatalf("case %d: 翻转负载第 %d 位后仍通过校验", i, bit)
			}
		}
	}
}

func TestValidateResponse_EchoMismatch(t *testing.T) {
	raw := EncodeResponse(CmdVersion, StatusOK, []byte{4, 1, 0, 1, 1, 0, 2, 0})
	require.True(t, ValidateResponse(raw, CmdVersion))
	assert.False(t, ValidateResponse(raw, CmdAnswer), "回显命令码不一致必须拒绝，即使 crc 自洽")
}

func TestValidateResponse_Short(t *testing.T) {
	assert.False(t, ValidateResponse(nil, CmdAnswer))
	assert.False(t, ValidateResponse([]byte{byte(CmdAnswer), 0, 0}, CmdAnswer))
}

func TestEncodeResponse_Header(t *testing.T) {
	raw := EncodeResponse(CmdStatus, StatusBadParam, []byte{0x07})
	assert.Equal(t, byte(CmdStatus), raw[0])
	assert.Equal(t, byte(StatusBadParam), raw[1])
	assert.Equal(t, 1, PayloadLen(raw))
	assert.True(t, ValidateResponse(raw, CmdStatus))
}

func TestDecodeStatusOnly(t *testing.T) {
	raw := EncodeResponse(CmdAnswer, StatusSensorInit, make([]byte, 28))
	resp := DecodeStatusOnly(raw)
	require.NotNil(t, resp)
	assert.Equal(t, CmdAnswer, resp.Command)
	assert.Equal(t, StatusSensorInit, resp.Status)
	assert.Empty(t, resp.Fields)
	assert.Nil(t, DecodeStatusOnly([]byte{1, 2}))
}

func TestDecodeFields_Short(t *testing.T) {
	raw := EncodeResponse(CmdAnswer, StatusOK, make([]byte, 12))
	assert.Nil(t, DecodeFields(raw, Lookup(CmdAnswer)))
}
