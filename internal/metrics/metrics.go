package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
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

// AppMetrics 雷达驱动指标，实现 driver.Observer
type AppMetrics struct {
	CommandsTotal   *prometheus.CounterVec   // labels: model, op, result
	CommandDuration *prometheus.HistogramVec // labels: op
	TelemetryFrames *prometheus.CounterVec   // labels: type, result
	LinkState       *prometheus.GaugeVec     // labels: device
	ReconnectsTotal *prometheus.CounterVec   // labels: device
	SnapshotMerges  prometheus.Counter
	DevicesGauge    prometheus.Gauge // 已注册设备数
}

var _ driver.Observer = (*AppMetrics)(nil)

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_commands_total",
			Help: "Radar commands by model, operation and result.",
		}, []string{"model", "op", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "radar_command_duration_seconds",
			Help:    "Round trip time of radar commands.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		TelemetryFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_telemetry_frames_total",
			Help: "Uplink telemetry frames by type and decode result.",
		}, []string{"type", "result"}),
		LinkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radar_link_state",
			Help: "Link state per device (0 disconnected, 1 connecting, 2 connected, 3 disconnecting).",
		}, []string{"device"}),
		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_reconnects_total",
			Help: "Reconnect attempts scheduled per device.",
		}, []string{"device"}),
		SnapshotMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_snapshot_merges_total",
			Help: "Snapshot merges that changed device state.",
		}),
		DevicesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_devices",
			Help: "Number of configured radar devices.",
		}),
	}
	reg.MustRegister(m.CommandsTotal, m.CommandDuration, m.TelemetryFrames, m.LinkState, m.ReconnectsTotal, m.SnapshotMerges, m.DevicesGauge)
	return m
}

func (m *AppMetrics) CommandDone(_ string, model hlk.Model, op hlk.Op, d time.Duration, err error) {
	m.CommandsTotal.WithLabelValues(string(model), string(op), Result(err)).Inc()
	m.CommandDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

func (m *AppMetrics) TelemetryDecoded(_ string, frameType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TelemetryFrames.WithLabelValues(frameType, result).Inc()
}

func (m *AppMetrics) LinkStateChanged(address string, _, to driver.State) {
	m.LinkState.WithLabelValues(address).Set(float64(to))
}

func (m *AppMetrics) ReconnectScheduled(address string, _ time.Duration) {
	m.ReconnectsTotal.WithLabelValues(address).Inc()
}

func (m *AppMetrics) SnapshotMerged(string) {
	m.SnapshotMerges.Inc()
}

// Result 命令结果标签
func Result(err error) string {
	var status *hlk.StatusError
	var mismatch *hlk.CommandMismatchError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, driver.ErrTimeout):
		return "timeout"
	case errors.Is(err, driver.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, hlk.ErrInvalidArgument):
		return "invalid"
	case driver.IsTransport(err), errors.Is(err, driver.ErrConnectionLost), errors.Is(err, driver.ErrNotConnected):
		return "transport"
	case errors.As(err, &status), errors.As(err, &mismatch), errors.Is(err, hlk.ErrShortResponse):
		return "protocol"
	default:
		return "error"
	}
}
