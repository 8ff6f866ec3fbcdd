package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// 交换结果标签
const (
	ResultOK        = "ok"        // 有效响应（含设备错误状态）
	ResultDiscarded = "discarded" // 校验失败整帧丢弃
	ResultSent      = "sent"      // 只写命令
	ResultError     = "error"     // 传输错误
)

// AppMetrics 自定义业务指标
type AppMetrics struct {
	ExchangeTotal    *prometheus.CounterVec   // labels: cmd, result
	ExchangeDuration *prometheus.HistogramVec // labels: cmd
	DeviceStatus     *prometheus.CounterVec   // labels: cmd, status
	BytesWritten     prometheus.Counter
	BytesRead        prometheus.Counter
	QueueDepth       prometheus.Gauge // 待执行命令数
	SubmitTimeouts   prometheus.Counter
	Concentration    prometheus.Gauge
	Temperature      prometheus.Gauge
	Pressure         prometheus.Gauge
	RelHumidity      prometheus.Gauge
	AbsHumidity      prometheus.Gauge
	CycleCount       prometheus.Gauge
	PollTotal        *prometheus.CounterVec // labels: result=ok|stale|error|skipped
	SinkErrors       *prometheus.CounterVec // labels: sink
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}
	m := &AppMetrics{
		ExchangeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mps_exchange_total",
			Help: "Command exchanges with the instrument by result.",
		}, []string{"cmd", "result"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mps_exchange_duration_seconds",
			Help:    "Write-to-last-byte latency of command exchanges.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"cmd"}),
		DeviceStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mps_device_status_total",
			Help: "Response status codes reported by the instrument.",
		}, []string{"cmd", "status"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mps_serial_bytes_written_total",
			Help: "Total bytes written to the serial link.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mps_serial_bytes_read_total",
			Help: "Total bytes read from the serial link.",
		}),
		QueueDepth: gauge("mps_session_queue_depth", "Commands waiting for the dispatcher worker."),
		SubmitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mps_session_submit_timeout_total",
			Help: "Submissions abandoned by their caller before completion.",
		}),
		Concentration: gauge("mps_concentration", "Last reported gas concentration."),
		Temperature:   gauge("mps_temperature_celsius", "Last reported temperature."),
		Pressure:      gauge("mps_pressure_kpa", "Last reported pressure."),
		RelHumidity:   gauge("mps_relative_humidity_percent", "Last reported relative humidity."),
		AbsHumidity:   gauge("mps_absolute_humidity", "Last reported absolute humidity."),
		CycleCount:    gauge("mps_cycle_count", "Last reported measurement cycle count."),
		PollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mps_poll_total",
			Help: "Poll cycles by result.",
		}, []string{"result"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mps_sink_errors_total",
			Help: "Reading sink write failures.",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		m.ExchangeTotal, m.ExchangeDuration, m.DeviceStatus, m.BytesWritten, m.BytesRead,
		m.QueueDepth, m.SubmitTimeouts,
		m.Concentration, m.Temperature, m.Pressure, m.RelHumidity, m.AbsHumidity, m.CycleCount,
		m.PollTotal, m.SinkErrors,
	)
	return m
}

// 以下辅助方法允许 m 为 nil（未启用指标时）

func (m *AppMetrics) ObserveExchange(cmd, result string, seconds float64) {
	if m == nil {
		return
	}
	m.ExchangeTotal.WithLabelValues(cmd, result).Inc()
	if result != ResultError {
		m.ExchangeDuration.WithLabelValues(cmd).Observe(seconds)
	}
}

func (m *AppMetrics) ObserveStatus(cmd, status string) {
	if m == nil {
		return
	}
	m.DeviceStatus.WithLabelValues(cmd, status).Inc()
}

func (m *AppMetrics) AddBytes(written, read int) {
	if m == nil {
		return
	}
	m.BytesWritten.Add(float64(written))
	m.BytesRead.Add(float64(read))
}

func (m *AppMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *AppMetrics) IncSubmitTimeout() {
	if m == nil {
		return
	}
	m.SubmitTimeouts.Inc()
}

// SetReading 更新最近一次 ANSWER 的读数
func (m *AppMetrics) SetReading(conc, temp, pres, rh, ah float32, cycle uint32) {
	if m == nil {
		return
	}
	m.Concentration.Set(float64(conc))
	m.Temperature.Set(float64(temp))
	m.Pressure.Set(float64(pres))
	m.RelHumidity.Set(float64(rh))
	m.AbsHumidity.Set(float64(ah))
	m.CycleCount.Set(float64(cycle))
}

func (m *AppMetrics) IncPoll(result string) {
	if m == nil {
		return
	}
	m.PollTotal.WithLabelValues(result).Inc()
}

func (m *AppMetrics) IncSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}
