package driver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/link"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// Handshake 连接建立、订阅通知之后执行的初始化；返回错误时连接被断开
type Handshake func(ctx context.Context, d *Device) error

// HandshakeFor 型号默认的初始化流程
func HandshakeFor(model hlk.Model) Handshake {
	switch model {
	case hlk.ModelLD2410:
		return handshakeLD2410
	case hlk.ModelLD2412:
		return handshakeLD2412
	default:
		return func(context.Context, *Device) error { return nil }
	}
}

// handshakeLD2410 鉴权后开启工程模式并读取参数、分辨率与光敏配置
func handshakeLD2410(ctx context.Context, d *Device) error {
	if pw := d.currentPassword(); pw != "" && d.profile.Supports(hlk.OpSendPassword) {
		if err := d.sendPassword(ctx, pw); err != nil {
			return err
		}
	}
	err := d.withConfig(ctx, func() error {
		if _, err := d.command(ctx, hlk.OpEnableEngineering, nil); err != nil {
			return err
		}
		if _, err := d.readParams(ctx); err != nil {
			return err
		}
		if _, err := d.getResolution(ctx); err != nil {
			return err
		}
		_, err := d.getLightConfig(ctx)
		return err
	})
	if err != nil {
		return err
	}
	d.mergeAdvertFirmware(ctx)
	d.log.Info("negotiation complete, receiving uplink frames")
	return nil
}

// handshakeLD2412 等待模块就绪；固件版本未知时读取固件、基础参数与灵敏度
func handshakeLD2412(ctx context.Context, d *Device) error {
	if d.cfg.PostConnectDelay > 0 {
		if err := sleepCtx(ctx, d.cfg.PostConnectDelay); err != nil {
			return err
		}
	}
	if _, known := d.state.Get("firmware_version"); known {
		return nil
	}
	err := d.withConfig(ctx, func() error {
		if _, err := d.readFirmware(ctx); d.lenient(hlk.OpReadFirmware, err) != nil {
			return err
		}
		if _, err := d.readBasicParams(ctx); d.lenient(hlk.OpReadBasicParams, err) != nil {
			return err
		}
		if _, err := d.readGateSensitivity(ctx, hlk.OpReadMotionSens); d.lenient(hlk.OpReadMotionSens, err) != nil {
			return err
		}
		_, err := d.readGateSensitivity(ctx, hlk.OpReadMotionlessSens)
		return d.lenient(hlk.OpReadMotionlessSens, err)
	})
	if err != nil {
		return err
	}
	d.mergeAdvertFirmware(ctx)
	return nil
}

// lenient 设备拒绝或应答格式不对时只记录日志；链路失败、超时与取消照常返回
func (d *Device) lenient(op hlk.Op, err error) error {
	if err == nil || retryable(err) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrDisconnecting) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	d.log.Warn("optional read failed", zap.String("op", string(op)), zap.Error(err))
	return nil
}

// mergeAdvertFirmware 链路能提供广播厂商数据且固件版本未知时，从广播解析
func (d *Device) mergeAdvertFirmware(ctx context.Context) {
	if _, known := d.state.Get("firmware_version"); known {
		return
	}
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	reader, ok := conn.(link.ManufacturerDataReader)
	if !ok {
		return
	}
	mfr, err := reader.ManufacturerData(ctx)
	if err != nil {
		d.log.Debug("read manufacturer data failed", zap.Error(err))
		return
	}
	if fw, ok := hlk.ParseAdvertFirmware(mfr); ok {
		d.merge(fw.Fields())
	}
}
