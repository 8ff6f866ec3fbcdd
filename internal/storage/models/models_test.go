package models

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
)

func TestReadingFromResponse(t *testing.T) {
	payload := make([]byte, 28)
	binary.LittleEndian.PutUint32(payload[0:], 9)
	binary.LittleEndian.PutUint32(payload[4:], math.Float32bits(3.5))
	binary.LittleEndian.PutUint32(payload[8:], uint32(mps.GasHeavy))
	binary.LittleEndian.PutUint32(payload[12:], math.Float32bits(20))
	resp := mps.Answer().Decode(mps.EncodeResponse(mps.CmdAnswer, mps.StatusOK, payload))
	require.NotNil(t, resp)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r, ok := ReadingFromResponse(resp, mps.UnitPercentVolume, at)
	require.True(t, ok)
	assert.Equal(t, Reading{
		Time: at, Cycle: 9, Concentration: 3.5, Unit: "%VOL", Gas: "HEAVY_GAS", Temperature: 20,
	}, r)

	bad := mps.Answer().Decode(mps.EncodeResponse(mps.CmdAnswer, mps.StatusSensorInit, payload))
	_, ok = ReadingFromResponse(bad, mps.UnitPercentLEL, at)
	assert.False(t, ok)
	_, ok = ReadingFromResponse(nil, mps.UnitPercentLEL, at)
	assert.False(t, ok)
}

func TestSensorVersion(t *testing.T) {
	s := Sensor{SWVersion: "4.1.0.1", HWVersion: "1.0", ProtocolVersion: "2.0"}
	assert.Equal(t, mps.VersionInfo{SW: "4.1.0.1", HW: "1.0", Protocol: "2.0"}, s.Version())
	assert.Equal(t, "sensors", Sensor{}.TableName())
}
