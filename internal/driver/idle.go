package driver

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// resetIdle 已连接时重新计时；到期若仍有命令在途则顺延
func (d *Device) resetIdle() {
	if d.cfg.IdleDisconnect <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st != StateConnected {
		return
	}
	d.stopIdleLocked()
	gen := d.idleGen
	d.idle = time.AfterFunc(d.cfg.IdleDisconnect, func() { d.onIdle(gen) })
}

func (d *Device) stopIdleLocked() {
	d.idleGen++
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
}

// onIdle 持有 connectMu 后先置为断开中再检查在途命令：
// 之前开始的命令使本次空闲作废，之后到达的命令走慢路径等待重连
func (d *Device) onIdle(gen uint64) {
	d.connectMu.Lock()
	defer d.connectMu.Unlock()

	d.mu.Lock()
	if gen != d.idleGen || d.st != StateConnected || d.conn == nil {
		d.mu.Unlock()
		return
	}
	d.st = StateDisconnecting
	if d.busy() {
		d.st = StateConnected
		d.mu.Unlock()
		d.resetIdle()
		return
	}

	d.log.Debug("idle timeout, disconnecting", zap.Duration("idle", d.cfg.IdleDisconnect))
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := d.closeLocked(ctx, StateConnected); err != nil {
		d.log.Warn("idle disconnect failed", zap.Error(err))
	}
}
