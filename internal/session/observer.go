package session

import (
	"errors"
	"time"

	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// Observer 把驱动事件转成会话信号
type Observer struct {
	driver.NopObserver
	mgr SessionManager
	now func() time.Time
}

var _ driver.Observer = (*Observer)(nil)

func NewObserver(mgr SessionManager) *Observer {
	return &Observer{mgr: mgr, now: time.Now}
}

func (o *Observer) CommandDone(address string, _ hlk.Model, _ hlk.Op, _ time.Duration, err error) {
	switch {
	case err == nil:
		o.mgr.OnActivity(address, o.now())
	case errors.Is(err, driver.ErrTimeout):
		o.mgr.OnCommandTimeout(address, o.now())
	}
}

func (o *Observer) TelemetryDecoded(address string, _ string, err error) {
	if err == nil {
		o.mgr.OnActivity(address, o.now())
	}
}

func (o *Observer) LinkStateChanged(address string, from, to driver.State) {
	switch {
	case to == driver.StateConnected:
		o.mgr.OnLinkUp(address, o.now())
	case to == driver.StateDisconnected && from != driver.StateConnecting:
		o.mgr.OnLinkDown(address, o.now())
	}
}
