// Package simulator 内存中的仪表模拟器，实现 session.Transport，
// 用于测试以及无硬件时的 run --simulate。
package simulator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
)

var (
	// ErrNoResponse 仪表没有可读的应答（已关机或命令无应答）
	ErrNoResponse = errors.New("simulator: no response")
	ErrClosed     = errors.New("simulator: closed")
)

// DefaultVersion VERSION 原始负载：软件 4.1.0.1，硬件 1.0，协议 2.0
var DefaultVersion = [8]byte{4, 1, 0, 1, 1, 0, 2, 0}

// Option 模拟器选项
type Option func(*Instrument)

func WithSeed(seed int64) Option {
	return func(s *Instrument) { s.rng = rand.New(rand.NewSource(seed)) }
}

func WithVersion(v [8]byte) Option {
	return func(s *Instrument) { s.version = v }
}

func WithSensorInfo(info mps.SensorInfo) Option {
	return func(s *Instrument) { s.info = info }
}

// WithGas 模拟环境中的气体与基准浓度（%LEL）
func WithGas(gas mps.GasID, lel float32) Option {
	return func(s *Instrument) {
		s.gas = gas
		s.lel = lel
	}
}

// WithEngData 工程数据内容，超过 128 字节会被截断
func WithEngData(b []byte) Option {
	return func(s *Instrument) {
		if len(b) > mps.MaxEngDataLen {
			b = b[:mps.MaxEngDataLen]
		}
		s.engData = append([]byte(nil), b...)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Instrument) {
		if l != nil {
			s.log = l
		}
	}
}

// Instrument 模拟仪表
type Instrument struct {
	mu        sync.Mutex
	log       *zap.Logger
	rng       *rand.Rand
	version   [8]byte
	info      mps.SensorInfo
	gas       mps.GasID
	lel       float32
	engData   []byte
	measuring bool
	unit      mps.Unit
	cycle     uint32
	poweredOn bool
	closed    bool
	rx        []byte
	overrides map[mps.CommandID]mps.Status
	corrupt   int
	received  []mps.CommandID
}

// New 创建处于上电、未测量状态的仪表
func New(opts ...Option) *Instrument {
	s := &Instrument{
		log:     zap.NewNop(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		version: DefaultVersion,
		info: mps.SensorInfo{
			SerialNumber:    "SIM-00000001",
			SensorType:      1,
			CalibrationDate: "2024-01-01",
			ManufactureDate: "2023-12-01",
		},
		gas:       mps.GasMethane,
		lel:       2.0,
		engData:   []byte{0xDE, 0xAD, 0xBE, 0xEF},
		poweredOn: true,
		overrides: make(map[mps.CommandID]mps.Status),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetStatus 之后对 id 的应答都携带 status（直到 ClearStatus）
func (s *Instrument) SetStatus(id mps.CommandID, status mps.Status) {
	s.mu.Lock()
	s.overrides[id] = status
	s.mu.Unlock()
}

func (s *Instrument) ClearStatus(id mps.CommandID) {
	s.mu.Lock()
	delete(s.overrides, id)
	s.mu.Unlock()
}

// CorruptNext 接下来 n 个应答帧翻转一个负载位，使 crc 校验失败
func (s *Instrument) CorruptNext(n int) {
	s.mu.Lock()
	s.corrupt = n
	s.mu.Unlock()
}

// Measuring 当前测量状态与单位
func (s *Instrument) Measuring() (bool, mps.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.measuring, s.unit
}

func (s *Instrument) PoweredOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poweredOn
}

// Received 收到的命令序列
func (s *Instrument) Received() []mps.CommandID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mps.CommandID(nil), s.received...)
}

func (s *Instrument) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.poweredOn {
		return nil
	}

	id, payload, err := mps.DecodeRequest(p)
	if err != nil {
		s.log.Debug("simulator rejected request", zap.Error(err))
		if len(p) >= 2 {
			s.reply(mps.CommandID(binary.LittleEndian.Uint16(p)), mps.StatusCRCFailed, nil)
		}
		return nil
	}
	s.received = append(s.received, id)

	d, ok := mps.Describe(id)
	if !ok {
		s.reply(id, mps.StatusUnknownCmd, nil)
		return nil
	}
	if len(payload) != d.RequestLen {
		s.reply(id, mps.StatusIncompleteCommand, nil)
		return nil
	}
	if st, ok := s.overrides[id]; ok {
		if d.ExpectsResponse() {
			s.reply(id, st, s.zeroPayload(d))
		}
		return nil
	}
	s.handle(id, d, payload)
	return nil
}

func (s *Instrument) handle(id mps.CommandID, d mps.Descriptor, payload []byte) {
	switch id {
	case mps.CmdMeasurement:
		unit, mode := mps.SplitMeasurementByte(payload[0])
		s.unit = unit
		s.measuring = mode == mps.ModeContinuous
		s.log.Debug("simulator measurement", zap.String("unit", unit.String()), zap.String("mode", mode.String()))
	case mps.CmdShutdown:
		s.measuring = false
		s.poweredOn = false
		s.rx = nil
	case mps.CmdAnswer:
		if !s.measuring {
			s.reply(id, mps.StatusSensorInit, s.zeroPayload(d))
			return
		}
		s.cycle++
		conc, gas := s.sample()
		b := newPayload()
		b.u32(s.cycle).f32(conc).u32(uint32(gas))
		b.f32(s.jitter(22.5, 0.3)).f32(s.jitter(101.3, 0.1)).f32(s.jitter(45, 1)).f32(s.jitter(9.1, 0.2))
		s.reply(id, mps.StatusOK, b.bytes())
	case mps.CmdConcentration:
		if !s.measuring {
			s.reply(id, mps.StatusSensorInit, s.zeroPayload(d))
			return
		}
		conc, _ := s.sample()
		s.reply(id, mps.StatusOK, newPayload().f32(conc).bytes())
	case mps.CmdID:
		_, gas := s.sample()
		s.reply(id, mps.StatusOK, newPayload().u32(uint32(gas)).bytes())
	case mps.CmdTemperature:
		s.reply(id, mps.StatusOK, newPayload().f32(s.jitter(22.5, 0.3)).bytes())
	case mps.CmdPressure:
		s.reply(id, mps.StatusOK, newPayload().f32(s.jitter(101.3, 0.1)).bytes())
	case mps.CmdRelativeHumidity:
		s.reply(id, mps.StatusOK, newPayload().f32(s.jitter(45, 1)).bytes())
	case mps.CmdAbsoluteHumidity:
		s.reply(id, mps.StatusOK, newPayload().f32(s.jitter(9.1, 0.2)).bytes())
	case mps.CmdStatus:
		s.reply(id, mps.StatusOK, []byte{byte(mps.StatusOK)})
	case mps.CmdVersion:
		s.reply(id, mps.StatusOK, s.version[:])
	case mps.CmdSensorInfo:
		b := newPayload()
		b.str(s.info.SerialNumber, 32).u32(s.info.SensorType).str(s.info.CalibrationDate, 16).str(s.info.ManufactureDate, 16)
		s.reply(id, mps.StatusOK, b.bytes())
	case mps.CmdEngData:
		b := newPayload().u32(uint32(len(s.engData)))
		b.buf = append(b.buf, s.engData...)
		s.reply(id, mps.StatusOK, b.bytes())
	default:
		s.reply(id, mps.StatusUnknownCmd, nil)
	}
}

// sample 当前浓度（按所选单位）与识别结果。1 %LEL 甲烷约 0.05 %VOL。
func (s *Instrument) sample() (float32, mps.GasID) {
	lel := s.jitter(s.lel, 0.05)
	switch {
	case lel < 0:
		return 0, mps.GasUnderRange
	case lel > 100:
		return 100, mps.GasOverRange
	case lel < 0.1:
		return lel, mps.GasNone
	}
	if s.unit == mps.UnitPercentVolume {
		return lel * 0.05, s.gas
	}
	return lel, s.gas
}

func (s *Instrument) jitter(base, spread float32) float32 {
	return base + spread*(2*s.rng.Float32()-1)
}

func (s *Instrument) zeroPayload(d mps.Descriptor) []byte {
	if d.Dynamic {
		return make([]byte, 4)
	}
	return make([]byte, d.ResponseLen)
}

func (s *Instrument) reply(id mps.CommandID, status mps.Status, payload []byte) {
	raw := mps.EncodeResponse(id, status, payload)
	if s.corrupt > 0 && len(raw) > mps.ResponseHeaderLen {
		s.corrupt--
		raw[mps.ResponseHeaderLen] ^= 0x01
	}
	s.rx = append(s.rx, raw...)
}

// ReadExact 从应答缓冲取 n 字节；不足时丢弃残留并返回 ErrNoResponse
func (s *Instrument) ReadExact(n int, _ time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.rx) < n {
		have := len(s.rx)
		s.rx = nil
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrNoResponse, n, have)
	}
	out := append([]byte(nil), s.rx[:n]...)
	s.rx = s.rx[n:]
	return out, nil
}

func (s *Instrument) Flush() error {
	s.mu.Lock()
	s.rx = nil
	s.mu.Unlock()
	return nil
}

func (s *Instrument) Close() error {
	s.mu.Lock()
	s.closed = true
	s.rx = nil
	s.mu.Unlock()
	return nil
}

type payload struct{ buf []byte }

func newPayload() *payload { return &payload{} }

func (p *payload) u32(v uint32) *payload {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *payload) f32(v float32) *payload { return p.u32(math.Float32bits(v)) }

func (p *payload) str(v string, size int) *payload {
	b := make([]byte, size)
	copy(b, v)
	p.buf = append(p.buf, b...)
	return p
}

func (p *payload) bytes() []byte { return p.buf }
