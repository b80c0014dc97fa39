package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/link"
)

const disconnectTimeout = 5 * time.Second

// EnsureConnected 未连接时建立连接并完成初始化；并发调用只会触发一次连接
func (d *Device) EnsureConnected(ctx context.Context) error {
	if d.State() == StateConnected {
		d.resetIdle()
		return nil
	}
	d.connectMu.Lock()
	defer d.connectMu.Unlock()
	if d.State() == StateConnected {
		d.resetIdle()
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.connect(ctx)
}

func (d *Device) connect(ctx context.Context) error {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.expectedClose = false
	from := d.st
	d.st = StateConnecting
	d.mu.Unlock()
	d.changed(from, StateConnecting)

	d.log.Debug("connecting")
	conn, err := d.link.Connect(ctx, d.cfg.Address, func(cause error) { d.onLinkClosed(gen, cause) })
	if err != nil {
		d.markDisconnected(gen)
		return &TransportError{Op: "connect", Err: err}
	}

	d.mu.Lock()
	alive := d.gen == gen && d.st == StateConnecting
	if alive {
		d.conn = conn
		d.lastActivity = time.Now()
	}
	d.mu.Unlock()
	if !alive {
		return ErrConnectionLost
	}

	if err := conn.Subscribe(ctx, link.NotifyCharacteristic, d.dispatch); err != nil {
		d.teardown(ctx, gen, conn)
		return &TransportError{Op: "subscribe", Err: err}
	}
	if err := d.handshake(ctx, d); err != nil {
		d.teardown(ctx, gen, conn)
		return fmt.Errorf("handshake: %w", err)
	}

	d.mu.Lock()
	ok := d.gen == gen && d.conn == conn
	if ok {
		from = d.st
		d.st = StateConnected
	}
	d.mu.Unlock()
	if !ok {
		return ErrConnectionLost
	}
	d.changed(from, StateConnected)

	d.backoff.Success()
	d.timeouts.Store(0)
	d.touch()
	d.log.Info("connected")
	return nil
}

// teardown 连接过程中失败，主动断开
func (d *Device) teardown(ctx context.Context, gen uint64, conn link.Conn) {
	d.mu.Lock()
	if d.gen == gen {
		d.expectedClose = true
	}
	d.mu.Unlock()
	d.ch.Cancel(ErrDisconnecting)

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()
	if err := conn.Disconnect(dctx); err != nil {
		d.log.Debug("disconnect after failed connect", zap.Error(err))
	}
	d.markDisconnected(gen)
}

// markDisconnected 链路没有回调关闭时兜底置为断开
func (d *Device) markDisconnected(gen uint64) {
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	from := d.st
	d.st = StateDisconnected
	d.conn = nil
	d.stopIdleLocked()
	d.mu.Unlock()
	d.changed(from, StateDisconnected)
}

// onLinkClosed 链路回调；过期连接的回调被忽略
func (d *Device) onLinkClosed(gen uint64, cause error) {
	d.mu.Lock()
	if d.gen != gen || (d.conn == nil && d.st == StateDisconnected) {
		d.mu.Unlock()
		return
	}
	expected := d.expectedClose || cause == nil
	from := d.st
	d.st = StateDisconnected
	d.conn = nil
	d.stopIdleLocked()
	d.mu.Unlock()
	d.changed(from, StateDisconnected)

	if expected {
		d.ch.Cancel(ErrDisconnecting)
		d.log.Debug("disconnected")
		return
	}
	d.ch.Cancel(ErrConnectionLost)
	d.log.Warn("unexpected disconnection", zap.Error(cause), zap.Stringer("state", from))
	if from == StateConnected && d.autoReconnect {
		d.scheduleReconnect()
	}
}

// Disconnect 主动断开，可重复调用
func (d *Device) Disconnect(ctx context.Context) error {
	d.connectMu.Lock()
	defer d.connectMu.Unlock()

	d.mu.Lock()
	if d.conn == nil {
		d.mu.Unlock()
		return nil
	}
	return d.closeLocked(ctx, d.st)
}

// closeLocked 调用方持有 connectMu 与 mu，返回前释放 mu
func (d *Device) closeLocked(ctx context.Context, from State) error {
	conn, gen := d.conn, d.gen
	d.expectedClose = true
	d.st = StateDisconnecting
	d.stopIdleLocked()
	d.mu.Unlock()
	d.changed(from, StateDisconnecting)

	d.ch.Cancel(ErrDisconnecting)
	err := conn.Disconnect(ctx)
	d.markDisconnected(gen)
	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// scheduleReconnect 通知监管循环尽快重连
func (d *Device) scheduleReconnect() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// forceReconnect 丢弃当前连接，由监管循环重连
func (d *Device) forceReconnect(reason string) {
	d.log.Warn("forcing reconnect", zap.String("reason", reason))
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := d.Disconnect(ctx); err != nil {
		d.log.Debug("disconnect before reconnect", zap.Error(err))
	}
	if d.autoReconnect {
		d.scheduleReconnect()
	}
}

// Run 监管循环：断开时按间隔重连，意外断开后按退避尽快重连。
// ctx 结束时断开连接并返回。
func (d *Device) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(d.cfg.ConnectInterval)
	defer ticker.Stop()
	defer d.shutdown()
	// 先结束后台任务（标定轮询），再断开
	defer func() {
		cancel()
		d.mu.Lock()
		if d.life == ctx {
			d.life = nil
		}
		d.mu.Unlock()
	}()
	d.mu.Lock()
	d.life = ctx
	d.mu.Unlock()

	var wait time.Duration
	for {
		if wait > 0 {
			d.obs.ReconnectScheduled(d.cfg.Address, wait)
			d.log.Info("reconnect scheduled", zap.Duration("wait", wait), zap.Int("failures", d.backoff.Failures()))
			if err := sleepCtx(ctx, wait); err != nil {
				return nil
			}
		}
		wait = 0

		if d.autoReconnect && d.State() == StateDisconnected {
			if err := d.EnsureConnected(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.log.Warn("connect failed", zap.Error(err))
				wait = d.backoff.Failure()
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-d.kick:
			wait = d.backoff.Failure()
		case <-ticker.C:
		}
	}
}

// lifetime 后台任务使用的 ctx；未运行监管循环时不随设备取消
func (d *Device) lifetime() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.life != nil {
		return d.life
	}
	return context.Background()
}

func (d *Device) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := d.Disconnect(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		d.log.Warn("disconnect on shutdown", zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
