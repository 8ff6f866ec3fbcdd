package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// ErrReadTimeout 在超时前未读满请求的字节数
var ErrReadTimeout = errors.New("serial: read timeout")

// Port 串口抽象：原生实现基于 github.com/tarm/serial，测试中可替换
type Port interface {
	io.ReadWriteCloser

	// Flush 丢弃未读/未发送的缓冲数据
	Flush() error
}

// Config 串口配置
type Config struct {
	// 设备路径，如 /dev/ttyUSB0、COM3
	Device string
	Baud   int
	// ReadTimeout 单次 ReadExact 的默认超时
	ReadTimeout time.Duration
	// PollInterval 底层 Read 的最长阻塞时间
	PollInterval time.Duration
}

// DefaultConfig 38400 8N1，读超时 1s
func DefaultConfig(device string) Config {
	return Config{
		Device:       device,
		Baud:         38400,
		ReadTimeout:  time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

// Open 打开原生串口（8 数据位、无校验、1 停止位）
func Open(cfg Config, logger *zap.Logger) (*Link, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial: device is required")
	}
	def := DefaultConfig(cfg.Device)
	if cfg.Baud <= 0 {
		cfg.Baud = def.Baud
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.PollInterval,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	if logger != nil {
		logger.Info("serial port opened", zap.String("device", cfg.Device), zap.Int("baud", cfg.Baud))
	}
	return NewLink(port, cfg.ReadTimeout), nil
}

// Link 在 Port 之上提供整帧写入与定长读取
type Link struct {
	port        Port
	readTimeout time.Duration
	now         func() time.Time
	backoff     time.Duration
}

// NewLink 包装一个已打开的端口
func NewLink(port Port, readTimeout time.Duration) *Link {
	if readTimeout <= 0 {
		readTimeout = time.Second
	}
	return &Link{port: port, readTimeout: readTimeout, now: time.Now, backoff: time.Millisecond}
}

// Write 写出完整帧，处理短写
func (l *Link) Write(p []byte) error {
	for len(p) > 0 {
		n, err := l.port.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// ReadExact 读满 n 字节。底层超时返回的 io.EOF 视为暂无数据，继续等待直到 timeout。
func (l *Link) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = l.readTimeout
	}
	buf := make([]byte, n)
	got := 0
	deadline := l.now().Add(timeout)
	for got < n {
		m, err := l.port.Read(buf[got:])
		got += m
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if got >= n {
			break
		}
		if !l.now().Before(deadline) {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrReadTimeout, got, n)
		}
		if m == 0 {
			time.Sleep(l.backoff)
		}
	}
	return buf, nil
}

// Flush 丢弃输入缓冲中的残留字节
func (l *Link) Flush() error { return l.port.Flush() }

func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	return l.port.Close()
}
