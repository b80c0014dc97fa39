package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

var (
	calibrationPollInterval = 2 * time.Second
	calibrationMaxPolls     = 15
)

// StartAutoThreshold 启动自动阈值。
// LD2410 在配置模式内下发标定时长；LD2412 直接启动底噪标定并在后台轮询状态，
// 期间快照中 calibration_active 为 true。轮询随 Run 退出而停止。
func (d *Device) StartAutoThreshold(ctx context.Context, duration int) error {
	if err := d.require(hlk.OpStartAutoThreshold); err != nil {
		return err
	}
	if d.profile.TimedCalibration {
		if duration < 0 || duration > 0xFFFF {
			return fmt.Errorf("%w: duration must be 0..65535", hlk.ErrInvalidArgument)
		}
		return d.do(ctx, func(ctx context.Context) error {
			return d.withConfig(ctx, func() error {
				_, err := d.command(ctx, hlk.OpStartAutoThreshold, hlk.U16Value(uint16(duration)))
				return err
			})
		})
	}

	if !d.calibrating.CompareAndSwap(false, true) {
		return nil
	}
	err := d.do(ctx, func(ctx context.Context) error {
		_, err := d.command(ctx, hlk.OpStartAutoThreshold, nil)
		return err
	})
	if err != nil {
		d.calibrating.Store(false)
		return err
	}
	d.log.Info("calibration started")
	d.merge(map[string]any{"calibration_active": true})
	go d.pollCalibration(d.lifetime())
	return nil
}

// QueryAutoThreshold 查询自动阈值状态
func (d *Device) QueryAutoThreshold(ctx context.Context) (hlk.AutoThresholdState, error) {
	if err := d.require(hlk.OpQueryAutoThreshold); err != nil {
		return 0, err
	}
	var st hlk.AutoThresholdState
	query := func(ctx context.Context) error {
		resp, err := d.exchange(ctx, hlk.OpQueryAutoThreshold, nil, true)
		if err != nil {
			return err
		}
		v, err := hlk.ParseU16(hlk.OpQueryAutoThreshold, resp)
		if err != nil {
			return err
		}
		st = hlk.AutoThresholdState(v)
		return nil
	}

	var err error
	if d.profile.TimedCalibration {
		err = d.do(ctx, func(ctx context.Context) error {
			return d.withConfig(ctx, func() error { return query(ctx) })
		})
	} else {
		err = d.do(ctx, query)
		if err == nil {
			d.merge(map[string]any{"calibration_active": st == hlk.AutoThresholdRunning})
		}
	}
	return st, err
}

// pollCalibration 标定结束、查询失败、达到轮询上限或监管退出后置 calibration_active 为 false
func (d *Device) pollCalibration(life context.Context) {
	defer func() {
		d.merge(map[string]any{"calibration_active": false})
		d.calibrating.Store(false)
	}()

	for i := 0; i < calibrationMaxPolls; i++ {
		if err := sleepCtx(life, calibrationPollInterval); err != nil {
			d.log.Info("calibration polling stopped")
			return
		}
		ctx, cancel := context.WithTimeout(life, 2*d.cfg.CommandTimeout)
		st, err := d.QueryAutoThreshold(ctx)
		cancel()
		if err != nil {
			if life.Err() == nil {
				d.log.Warn("poll calibration status failed", zap.Error(err))
			}
			return
		}
		if st != hlk.AutoThresholdRunning {
			d.log.Info("calibration completed")
			return
		}
	}
}

// Calibrating 后台是否在轮询标定状态
func (d *Device) Calibrating() bool {
	return d.calibrating.Load()
}
