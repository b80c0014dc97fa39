package driver

import (
	"time"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// Observer 驱动事件回调，用于指标与审计；回调须快速返回
type Observer interface {
	CommandDone(address string, model hlk.Model, op hlk.Op, d time.Duration, err error)
	TelemetryDecoded(address string, frameType string, err error)
	LinkStateChanged(address string, from, to State)
	ReconnectScheduled(address string, wait time.Duration)
	SnapshotMerged(address string)
}

// NopObserver 忽略全部事件
type NopObserver struct{}

func (NopObserver) CommandDone(string, hlk.Model, hlk.Op, time.Duration, error) {}
func (NopObserver) TelemetryDecoded(string, string, error)                      {}
func (NopObserver) LinkStateChanged(string, State, State)                       {}
func (NopObserver) ReconnectScheduled(string, time.Duration)                    {}
func (NopObserver) SnapshotMerged(string)                                       {}

// Observers 依次转发给多个观察者
type Observers []Observer

func (o Observers) CommandDone(address string, model hlk.Model, op hlk.Op, d time.Duration, err error) {
	for _, x := range o {
		x.CommandDone(address, model, op, d, err)
	}
}

func (o Observers) TelemetryDecoded(address string, frameType string, err error) {
	for _, x := range o {
		x.TelemetryDecoded(address, frameType, err)
	}
}

func (o Observers) LinkStateChanged(address string, from, to State) {
	for _, x := range o {
		x.LinkStateChanged(address, from, to)
	}
}

func (o Observers) ReconnectScheduled(address string, wait time.Duration) {
	for _, x := range o {
		x.ReconnectScheduled(address, wait)
	}
}

func (o Observers) SnapshotMerged(address string) {
	for _, x := range o {
		x.SnapshotMerged(address)
	}
}
