package app

import (
	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/taoyao-code/gas-sensor/internal/config"
	"github.com/taoyao-code/gas-sensor/internal/metrics"
)

// NewMetrics 初始化注册表与应用指标；未启用时 AppMetrics 为 nil，调用方的指标方法均为空操作
func NewMetrics(cfg cfgpkg.MetricsConfig) (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	if !cfg.Enable {
		return reg, nil
	}
	return reg, metrics.NewAppMetrics(reg)
}
