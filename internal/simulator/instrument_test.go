package simulator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/session"
	"github.com/taoyao-code/gas-sensor/internal/simulator"
)

func newSession(t *testing.T, sim *simulator.Instrument) *session.Dispatcher {
	t.Helper()
	d := session.New(sim)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	t.Cleanup(cancel)
	return d
}

func TestInstrument_MeasurementCycle(t *testing.T) {
	sim := simulator.New(simulator.WithSeed(1), simulator.WithGas(mps.GasMethane, 20))
	d := newSession(t, sim)
	ctx := context.Background()

	resp, err := d.Submit(ctx, mps.Answer())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, mps.StatusSensorInit, resp.Status, "未启动测量时报告初始化中")

	_, err = d.Submit(ctx, mps.Measurement(mps.UnitPercentLEL, mps.ModeContinuous))
	require.NoError(t, err)
	measuring, unit := sim.Measuring()
	assert.True(t, measuring)
	assert.Equal(t, mps.UnitPercentLEL, unit)

	for want := uint32(1); want <= 3; want++ {
		resp, err := d.Submit(ctx, mps.Answer())
		require.NoError(t, err)
		require.True(t, resp.OK())
		cc, ok := d.CycleCount()
		require.True(t, ok)
		assert.Equal(t, want, cc)
		gas, _ := resp.Gas()
		assert.Equal(t, mps.GasMethane, gas)
		conc, _ := resp.Float(mps.FieldConcentration)
		assert.InDelta(t, 20, conc, 0.1)
	}
}

func TestInstrument_VolumeUnit(t *testing.T) {
	sim := simulator.New(simulator.WithSeed(2), simulator.WithGas(mps.GasHydrogen, 40))
	d := newSession(t, sim)
	ctx := context.Background()

	_, err := d.Submit(ctx, mps.Measurement(mps.UnitPercentVolume, mps.ModeContinuous))
	require.NoError(t, err)
	resp, err := d.Submit(ctx, mps.Concentration())
	require.NoError(t, err)
	conc, ok := resp.Float(mps.FieldConcentration)
	require.True(t, ok)
	assert.InDelta(t, 2.0, conc, 0.01)
}

func TestInstrument_StaticQueries(t *testing.T) {
	info := mps.SensorInfo{SerialNumber: "SN-42", SensorType: 9, CalibrationDate: "2025-02-03", ManufactureDate: "2024-11-30"}
	sim := simulator.New(simulator.WithSensorInfo(info), simulator.WithEngData([]byte{1, 2, 3}))
	d := newSession(t, sim)
	ctx := context.Background()

	v, err := d.RefreshVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, mps.VersionInfo{SW: "4.1.0.1", HW: "1.0", Protocol: "2.0"}, v)

	resp, err := d.Submit(ctx, mps.SensorInfoQuery())
	require.NoError(t, err)
	got, ok := mps.SensorInfoFromResponse(resp)
	require.True(t, ok)
	assert.Equal(t, info, got)

	resp, err = d.Submit(ctx, mps.EngData())
	require.NoError(t, err)
	b, ok := resp.Bytes(mps.FieldEngData)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)

	resp, err = d.Submit(ctx, mps.SensorStatus())
	require.NoError(t, err)
	st, ok := resp.SensorStatus()
	require.True(t, ok)
	assert.Equal(t, mps.StatusOK, st)
}

func TestInstrument_StatusOverrideAndCorruption(t *testing.T) {
	sim := simulator.New(simulator.WithSeed(3))
	d := newSession(t, sim)
	ctx := context.Background()

	sim.SetStatus(mps.CmdAnswer, mps.StatusBadParam)
	resp, err := d.Submit(ctx, mps.Answer())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{mps.KeyCommandID: "ANSWER", mps.KeyStatus: "BAD_PARAM"}, resp.Map())
	sim.ClearStatus(mps.CmdAnswer)

	sim.CorruptNext(1)
	resp, err = d.Submit(ctx, mps.Temperature())
	require.NoError(t, err)
	assert.Nil(t, resp, "损坏的帧被丢弃")

	resp, err = d.Submit(ctx, mps.Temperature())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.OK())
}

func TestInstrument_Shutdown(t *testing.T) {
	sim := simulator.New()
	d := newSession(t, sim)
	ctx := context.Background()

	_, err := d.Submit(ctx, mps.Measurement(mps.UnitPercentLEL, mps.ModeContinuous))
	require.NoError(t, err)
	require.NoError(t, d.Shutdown(ctx))

	assert.False(t, sim.PoweredOn())
	measuring, _ := sim.Measuring()
	assert.False(t, measuring)
	assert.Equal(t, []mps.CommandID{mps.CmdMeasurement, mps.CmdMeasurement, mps.CmdShutdown}, sim.Received())

	_, err = sim.ReadExact(1, 0)
	assert.ErrorIs(t, err, simulator.ErrClosed)
}

func TestInstrument_NoResponseIsTransportError(t *testing.T) {
	sim := simulator.New()
	_, err := sim.ReadExact(6, 0)
	assert.ErrorIs(t, err, simulator.ErrNoResponse)

	bad := mps.EncodeRequest(mps.CmdVersion, nil)
	bad[7] ^= 0xFF
	require.NoError(t, sim.Write(bad))
	raw, err := sim.ReadExact(mps.ResponseHeaderLen, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(mps.StatusCRCFailed), raw[1])
}
