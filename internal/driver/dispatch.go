package driver

import (
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// dispatch 通知入口：下行应答交给命令信道，上行数据解析后合并进快照
func (d *Device) dispatch(buf []byte) {
	d.touch()

	switch d.profile.Route(buf) {
	case hlk.RouteAck:
		if !d.ch.Deliver(buf) && d.logLimiter.Allow() {
			d.log.Debug("unsolicited command response", zap.String("raw", hex.EncodeToString(buf)))
		}
	case hlk.RouteTelemetry:
		reading, err := d.profile.DecodeTelemetry(buf)
		if err != nil {
			d.obs.TelemetryDecoded(d.cfg.Address, "invalid", err)
			if d.logLimiter.Allow() {
				d.log.Warn("decode telemetry failed", zap.Error(err), zap.String("raw", hex.EncodeToString(buf)))
			}
			return
		}
		d.obs.TelemetryDecoded(d.cfg.Address, reading.Type.String(), nil)
		d.merge(reading.Fields())
	default:
		if d.logLimiter.Allow() {
			d.log.Debug("unknown notification dropped", zap.Int("len", len(buf)), zap.String("raw", hex.EncodeToString(buf)))
		}
	}
}

// merge 命令结果写入快照
func (d *Device) merge(fields map[string]any) {
	if d.state.Merge(fields) {
		d.obs.SnapshotMerged(d.cfg.Address)
	}
}
