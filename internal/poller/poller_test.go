package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/session"
	"github.com/taoyao-code/gas-sensor/internal/simulator"
	"github.com/taoyao-code/gas-sensor/internal/storage/models"
)

type memorySink struct {
	mu       sync.Mutex
	readings []models.Reading
	fail     bool
	closed   bool
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Write(_ context.Context, r models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.readings = append(s.readings, r)
	return nil
}

func (s *memorySink) Close() error { s.closed = true; return nil }

type fakeRegistry struct {
	info    mps.SensorInfo
	version mps.VersionInfo
	calls   int
	touched []string
}

func (r *fakeRegistry) Register(_ context.Context, info mps.SensorInfo, v mps.VersionInfo) (*models.Sensor, error) {
	r.calls++
	r.info, r.version = info, v
	return &models.Sensor{SerialNum: info.SerialNumber}, nil
}

func (r *fakeRegistry) Touch(_ context.Context, serial string, _ time.Time) error {
	r.touched = append(r.touched, serial)
	return nil
}

// scriptedSession 依次返回预设结果
type scriptedSession struct {
	results []func() (*mps.Response, error)
	calls   int
}

func (s *scriptedSession) Submit(context.Context, mps.Command, ...session.SubmitOption) (*mps.Response, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		return nil, session.ErrClosed
	}
	return s.results[i]()
}

func transportErr() (*mps.Response, error) {
	return nil, fmt.Errorf("%w: read ANSWER: timeout", session.ErrTransport)
}

func startSimulated(t *testing.T, sim *simulator.Instrument) *session.Dispatcher {
	t.Helper()
	d := session.New(sim)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	t.Cleanup(cancel)
	return d
}

func TestPoller_StartSequence(t *testing.T) {
	info := mps.SensorInfo{SerialNumber: "SN-7", SensorType: 2, CalibrationDate: "2025-03-01", ManufactureDate: "2025-01-01"}
	sim := simulator.New(simulator.WithSeed(1), simulator.WithSensorInfo(info))
	d := startSimulated(t, sim)
	reg := &fakeRegistry{}
	expected := mps.VersionInfo{SW: "4.1.0.1", HW: "1.0", Protocol: "2.0"}

	p := New(d, WithUnit(mps.UnitPercentVolume), WithRegistry(reg), WithExpectedVersion(expected))
	id, err := p.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []mps.CommandID{mps.CmdMeasurement, mps.CmdSensorInfo, mps.CmdVersion}, sim.Received())
	measuring, unit := sim.Measuring()
	assert.True(t, measuring)
	assert.Equal(t, mps.UnitPercentVolume, unit)

	assert.Equal(t, info, id.Info)
	assert.Equal(t, expected, id.Version)
	assert.True(t, id.VersionMatch)
	assert.Equal(t, 1, reg.calls)
	assert.Equal(t, "SN-7", reg.info.SerialNumber)
	assert.Equal(t, id, p.Identity())
}

func TestPoller_StartVersionMismatch(t *testing.T) {
	sim := simulator.New(simulator.WithVersion([8]byte{5, 0, 0, 0, 1, 0, 2, 0}))
	d := startSimulated(t, sim)
	p := New(d, WithExpectedVersion(mps.VersionInfo{SW: "4.1.0.1", HW: "1.0", Protocol: "2.0"}))

	id, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, id.VersionMatch)
	assert.Equal(t, "5.0.0.0", id.Version.SW)
}

func TestPoller_StartFailsWhenMeasurementFails(t *testing.T) {
	p := New(&scriptedSession{results: []func() (*mps.Response, error){transportErr}})
	_, err := p.Start(context.Background())
	assert.ErrorIs(t, err, session.ErrTransport)
}

func TestPoller_PollOnceWritesSinks(t *testing.T) {
	sim := simulator.New(simulator.WithSeed(4), simulator.WithSensorInfo(mps.SensorInfo{SerialNumber: "SN-1"}))
	d := startSimulated(t, sim)
	sink := &memorySink{}
	reg := &fakeRegistry{}
	var buf bytes.Buffer
	csvSink := NewCSVSink(&buf)

	p := New(d, WithSinks(sink, csvSink), WithRegistry(reg))
	_, err := p.Start(context.Background())
	require.NoError(t, err)

	for want := uint32(1); want <= 2; want++ {
		r, res, err := p.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ResultOK, res)
		assert.Equal(t, want, r.Cycle)
		assert.Equal(t, "SN-1", r.Sensor)
		assert.Equal(t, "%LEL", r.Unit)
	}
	require.Len(t, sink.readings, 2)
	assert.Equal(t, []string{"SN-1", "SN-1"}, reg.touched)
	last, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, uint32(2), last.Cycle)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], ",SN-1,2,")

	require.NoError(t, p.Close())
	assert.True(t, sink.closed)
}

func TestPoller_NoUpdateCases(t *testing.T) {
	sim := simulator.New(simulator.WithSeed(5))
	d := startSimulated(t, sim)
	sink := &memorySink{}
	p := New(d, WithSinks(sink))
	_, err := p.Start(context.Background())
	require.NoError(t, err)

	sim.CorruptNext(1)
	_, res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultStale, res, "帧被丢弃")

	sim.SetStatus(mps.CmdAnswer, mps.StatusCondensation)
	_, res, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultStale, res, "设备报错")
	sim.ClearStatus(mps.CmdAnswer)

	assert.Empty(t, sink.readings)
	_, res, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res)
}

func TestPoller_RepeatedCycleIsStale(t *testing.T) {
	answer := func() (*mps.Response, error) {
		payload := make([]byte, 28)
		payload[0] = 3
		return mps.Answer().Decode(mps.EncodeResponse(mps.CmdAnswer, mps.StatusOK, payload)), nil
	}
	sink := &memorySink{}
	p := New(&scriptedSession{results: []func() (*mps.Response, error){answer, answer}}, WithSinks(sink))

	_, res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res)
	_, res, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultStale, res)
	assert.Len(t, sink.readings, 1)
}

func TestPoller_SinkFailureDoesNotStopPoll(t *testing.T) {
	sim := simulator.New()
	d := startSimulated(t, sim)
	bad, good := &memorySink{fail: true}, &memorySink{}
	p := New(d, WithSinks(bad, good))
	_, err := p.Start(context.Background())
	require.NoError(t, err)

	_, res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res)
	assert.Len(t, good.readings, 1)
}

func TestPoller_BreakerOpensOnTransportErrors(t *testing.T) {
	sess := &scriptedSession{results: []func() (*mps.Response, error){transportErr, transportErr, transportErr}}
	br := NewBreaker(2, time.Minute)
	p := New(sess, WithBreaker(br))

	for i := 0; i < 2; i++ {
		_, res, err := p.PollOnce(context.Background())
		assert.Equal(t, ResultError, res)
		assert.ErrorIs(t, err, session.ErrTransport)
	}
	assert.Equal(t, BreakerOpen, br.State())

	_, res, err := p.PollOnce(context.Background())
	assert.Equal(t, ResultSkipped, res)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 2, sess.calls, "熔断期间不再访问链路")
}

func TestPoller_RunStopsWhenSessionClosed(t *testing.T) {
	p := New(&scriptedSession{}, WithInterval(time.Millisecond))
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestBreaker_HalfOpen(t *testing.T) {
	br := NewBreaker(1, 10*time.Second)
	now := time.Unix(1000, 0)
	br.now = func() time.Time { return now }
	boom := errors.New("boom")

	br.Record(boom)
	assert.Equal(t, BreakerOpen, br.State())
	assert.ErrorIs(t, br.Allow(), ErrBreakerOpen)

	now = now.Add(11 * time.Second)
	require.NoError(t, br.Allow())
	assert.Equal(t, BreakerHalfOpen, br.State())
	br.Record(boom)
	assert.Equal(t, BreakerOpen, br.State(), "半开试探失败立即熔断")
	assert.Equal(t, int64(2), br.Trips())

	now = now.Add(11 * time.Second)
	require.NoError(t, br.Allow())
	br.Record(nil)
	assert.Equal(t, BreakerClosed, br.State())
}

func TestOpenCSV_Header(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "readings.csv")
	s, err := OpenCSV(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), models.Reading{Cycle: 1, Unit: "%LEL", Gas: "METHANE"}))
	require.NoError(t, s.Close())

	s, err = OpenCSV(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), models.Reading{Cycle: 2, Unit: "%LEL", Gas: "METHANE"}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3, "表头只写一次")
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
}
