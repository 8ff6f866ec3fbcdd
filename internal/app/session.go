package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/gas-sensor/internal/config"
	"github.com/taoyao-code/gas-sensor/internal/metrics"
	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
	"github.com/taoyao-code/gas-sensor/internal/serial"
	"github.com/taoyao-code/gas-sensor/internal/session"
	"github.com/taoyao-code/gas-sensor/internal/simulator"
)

// OpenTransport 打开串口；simulate 为 true 时使用内置模拟仪表
func OpenTransport(cfg cfgpkg.SerialConfig, simulate bool, logger *zap.Logger) (session.Transport, error) {
	if simulate {
		logger.Info("using simulated instrument")
		return simulator.New(simulator.WithLogger(logger.Named("simulator"))), nil
	}
	return serial.Open(serial.Config{
		Device:       cfg.Device,
		Baud:         cfg.Baud,
		ReadTimeout:  cfg.ReadTimeout,
		PollInterval: cfg.PollInterval,
	}, logger)
}

// NewSession 按配置构造命令调度器（尚未启动 worker）
func NewSession(cfg *cfgpkg.Config, tr session.Transport, appm *metrics.AppMetrics, logger *zap.Logger) (*session.Dispatcher, error) {
	unit, err := mps.ParseUnit(cfg.Poller.Unit)
	if err != nil {
		return nil, err
	}
	throttle := session.NewThrottle(cfg.Session.ThrottlePerSec, 1)
	logger.Info("session configured",
		zap.Int("queue_size", cfg.Session.QueueSize),
		zap.Duration("submit_timeout", cfg.Session.SubmitTimeout),
		zap.Int("retries", cfg.Session.Retries),
		zap.Float64("throttle_per_sec", cfg.Session.ThrottlePerSec))
	return session.New(tr,
		session.WithLogger(logger.Named("session")),
		session.WithMetrics(appm),
		session.WithReadTimeout(cfg.Serial.ReadTimeout),
		session.WithQueueSize(cfg.Session.QueueSize),
		session.WithSubmitTimeout(cfg.Session.SubmitTimeout),
		session.WithRetries(cfg.Session.Retries),
		session.WithThrottle(throttle),
		session.WithExpectedVersion(cfg.ExpectedVersion),
		session.WithUnit(unit),
	), nil
}
