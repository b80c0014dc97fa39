package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/hlk-radar/internal/metrics"
)

// ConnectedCounter 已连接设备数，由 registry.Registry 实现
type ConnectedCounter interface {
	ConnectedCount() int
}

// NewMetrics 初始化注册表与驱动指标
func NewMetrics() (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	return reg, metrics.NewAppMetrics(reg)
}

// RegisterRuntimeMetrics 注册采集时计算的指标；dropped 为 nil 时不注册审计丢弃数
func RegisterRuntimeMetrics(reg prometheus.Registerer, devices ConnectedCounter, dropped func() int64) error {
	connected := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "radar_devices_connected",
		Help: "Radar devices with an established link.",
	}, func() float64 { return float64(devices.ConnectedCount()) })
	if err := reg.Register(connected); err != nil {
		return err
	}
	if dropped == nil {
		return nil
	}
	return reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "radar_audit_dropped_total",
		Help: "Audit records dropped because the queue was full.",
	}, func() float64 { return float64(dropped()) }))
}
