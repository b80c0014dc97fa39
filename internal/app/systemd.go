package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
)

// NotifyReady 通知 systemd 启动完成；非 systemd 托管时无操作
func NotifyReady(log *zap.Logger) {
	notify(log, daemon.SdNotifyReady)
}

// NotifyStopping 通知 systemd 开始停机
func NotifyStopping(log *zap.Logger) {
	notify(log, daemon.SdNotifyStopping)
}

func notify(log *zap.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", zap.String("state", state), zap.Error(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", zap.String("state", state))
	}
}

// RunWatchdog 按 WatchdogSec 的一半周期喂狗，alive 返回 false 时跳过本次
func RunWatchdog(ctx context.Context, alive func() bool, log *zap.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	log.Info("systemd watchdog enabled", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if alive != nil && !alive() {
				log.Warn("watchdog ping skipped, service not alive")
				continue
			}
			notify(log, daemon.SdNotifyWatchdog)
		}
	}
}
