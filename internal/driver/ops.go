package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// exchange 发送单条命令，不负责建立连接（握手中也会调用）
func (d *Device) exchange(ctx context.Context, op hlk.Op, value []byte, wait bool) ([]byte, error) {
	word, ok := d.profile.Word(op)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUnsupported)
	}

	start := time.Now()
	resp, err := d.ch.Exchange(ctx, word, value, wait)
	d.obs.CommandDone(d.cfg.Address, d.profile.Model, op, time.Since(start), err)

	switch {
	case err == nil:
		d.timeouts.Store(0)
		d.touch()
		return resp, nil
	case errors.Is(err, ErrTimeout):
		if n := d.timeouts.Add(1); int(n) >= d.cfg.MaxConsecutiveTimeouts {
			d.timeouts.Store(0)
			go d.forceReconnect("consecutive command timeouts")
		}
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

// command 发送并校验状态码
func (d *Device) command(ctx context.Context, op hlk.Op, value []byte) ([]byte, error) {
	resp, err := d.exchange(ctx, op, value, true)
	if err != nil {
		return nil, err
	}
	if err := hlk.CheckStatus(op, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// withConfig 在配置模式中执行 fn，结束后总是尝试退出配置模式
func (d *Device) withConfig(ctx context.Context, fn func() error) error {
	resp, err := d.exchange(ctx, hlk.OpEnableConfig, d.profile.Flag(1), true)
	if err != nil {
		return err
	}
	if _, err := hlk.ParseConfigSession(resp); err != nil {
		return err
	}

	ferr := fn()
	if ferr != nil && retryable(ferr) {
		return ferr
	}
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.CommandTimeout)
	defer cancel()
	if _, err := d.command(ectx, hlk.OpEndConfig, nil); err != nil {
		if ferr != nil {
			return ferr
		}
		return err
	}
	return ferr
}

// do 连接后执行操作；链路失败时换新连接重试
func (d *Device) do(ctx context.Context, fn func(ctx context.Context) error) error {
	d.ops.Add(1)
	defer d.ops.Add(-1)

	for attempt := 0; ; attempt++ {
		err := d.EnsureConnected(ctx)
		if err == nil {
			if err = fn(ctx); err == nil {
				return nil
			}
		}
		if attempt >= d.cfg.CommandRetries || !retryable(err) || ctx.Err() != nil {
			return err
		}
		d.log.Warn("operation failed, retrying on a new connection", zap.Error(err), zap.Int("attempt", attempt+1))
		if derr := d.Disconnect(ctx); derr != nil {
			d.log.Debug("disconnect before retry", zap.Error(derr))
		}
	}
}

// require 型号不支持任一操作时返回 ErrUnsupported
func (d *Device) require(ops ...hlk.Op) error {
	for _, op := range ops {
		if !d.profile.Supports(op) {
			return fmt.Errorf("%s on %s: %w", op, d.profile.Model, ErrUnsupported)
		}
	}
	return nil
}

// SetEngineeringMode 开关工程模式（上行带每门能量）
func (d *Device) SetEngineeringMode(ctx context.Context, enabled bool) error {
	op := hlk.OpDisableEngineering
	if enabled {
		op = hlk.OpEnableEngineering
	}
	if err := d.require(op); err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			if _, err := d.command(ctx, op, nil); err != nil {
				return err
			}
			d.merge(map[string]any{"engineering_mode": enabled})
			return nil
		})
	})
}

// ReadParams 读取 LD2410 距离门与灵敏度参数
func (d *Device) ReadParams(ctx context.Context) (hlk.Params, error) {
	if err := d.require(hlk.OpReadParams); err != nil {
		return hlk.Params{}, err
	}
	var out hlk.Params
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			p, err := d.readParams(ctx)
			out = p
			return err
		})
	})
	return out, err
}

func (d *Device) readParams(ctx context.Context) (hlk.Params, error) {
	resp, err := d.exchange(ctx, hlk.OpReadParams, nil, true)
	if err != nil {
		return hlk.Params{}, err
	}
	p, err := hlk.ParseParams(resp)
	if err != nil {
		return hlk.Params{}, err
	}
	d.merge(p.Fields())
	return p, nil
}

// SetMaxGates 设置 LD2410 最大运动门与最大静止门，无人时长沿用当前值
func (d *Device) SetMaxGates(ctx context.Context, moveGate, stillGate int) error {
	if err := d.require(hlk.OpSetMaxGates); err != nil {
		return err
	}
	value, err := hlk.MaxGatesValue(moveGate, stillGate, d.intField("absence_delay", 5))
	if err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			if _, err := d.command(ctx, hlk.OpSetMaxGates, value); err != nil {
				return err
			}
			d.merge(map[string]any{"max_move_gate": moveGate, "max_still_gate": stillGate})
			return nil
		})
	})
}

// SetAbsenceDelay 无人持续时间（秒）。LD2410 走最大门参数，LD2412 走基础参数。
func (d *Device) SetAbsenceDelay(ctx context.Context, seconds int) error {
	if d.profile.Supports(hlk.OpSetMaxGates) {
		value, err := hlk.MaxGatesValue(d.intField("max_move_gate", 8), d.intField("max_still_gate", 8), seconds)
		if err != nil {
			return err
		}
		return d.do(ctx, func(ctx context.Context) error {
			return d.withConfig(ctx, func() error {
				if _, err := d.command(ctx, hlk.OpSetMaxGates, value); err != nil {
					return err
				}
				d.merge(map[string]any{"absence_delay": seconds})
				return nil
			})
		})
	}
	if err := d.require(hlk.OpReadBasicParams, hlk.OpWriteBasicParams); err != nil {
		return err
	}
	if seconds < 0 || seconds > 0xFFFF {
		return fmt.Errorf("%w: absence delay must be 0..65535", hlk.ErrInvalidArgument)
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			p, err := d.readBasicParams(ctx)
			if err != nil {
				return err
			}
			p.UnmannedDuration = seconds
			return d.writeBasicParams(ctx, p)
		})
	})
}

// SetGateSensitivity 设置单个距离门（gate < 0 表示全部）的运动与静止灵敏度
func (d *Device) SetGateSensitivity(ctx context.Context, gate, move, still int) error {
	if d.profile.Supports(hlk.OpSetSensitivity) {
		return d.setSensitivityLD2410(ctx, gate, move, still)
	}
	return d.setSensitivityLD2412(ctx, gate, move, still)
}

func (d *Device) setSensitivityLD2410(ctx context.Context, gate, move, still int) error {
	g := hlk.AllGates
	if gate >= 0 {
		g = uint16(gate)
	}
	value, err := hlk.SensitivityValue(g, d.profile.Gates-1, move, still)
	if err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			if _, err := d.command(ctx, hlk.OpSetSensitivity, value); err != nil {
				return err
			}
			fields := make(map[string]any, 2)
			if cur := d.intsField("move_gate_sensitivity"); cur != nil {
				fields["move_gate_sensitivity"] = patchGates(cur, gate, move)
			}
			if cur := d.intsField("still_gate_sensitivity"); cur != nil {
				fields["still_gate_sensitivity"] = patchGates(cur, gate, still)
			}
			d.merge(fields)
			return nil
		})
	})
}

func (d *Device) setSensitivityLD2412(ctx context.Context, gate, move, still int) error {
	if err := d.require(hlk.OpReadMotionSens, hlk.OpWriteMotionSens, hlk.OpReadMotionlessSens, hlk.OpWriteMotionlessSens); err != nil {
		return err
	}
	if gate >= d.profile.Gates {
		return fmt.Errorf("%w: gate must be 0..%d", hlk.ErrInvalidArgument, d.profile.Gates-1)
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			motion, err := d.readGateSensitivity(ctx, hlk.OpReadMotionSens)
			if err != nil {
				return err
			}
			motionless, err := d.readGateSensitivity(ctx, hlk.OpReadMotionlessSens)
			if err != nil {
				return err
			}
			motion = patchGates(motion, gate, move)
			motionless = patchGates(motionless, gate, still)
			if err := d.writeGateSensitivity(ctx, hlk.OpWriteMotionSens, motion); err != nil {
				return err
			}
			if err := d.writeGateSensitivity(ctx, hlk.OpWriteMotionlessSens, motionless); err != nil {
				return err
			}
			d.merge(map[string]any{"motion_sensitivity": motion, "motionless_sensitivity": motionless})
			return nil
		})
	})
}

// ReadFirmware 读取固件版本
func (d *Device) ReadFirmware(ctx context.Context) (hlk.Firmware, error) {
	if err := d.require(hlk.OpReadFirmware); err != nil {
		return hlk.Firmware{}, err
	}
	var out hlk.Firmware
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			fw, err := d.readFirmware(ctx)
			out = fw
			return err
		})
	})
	return out, err
}

func (d *Device) readFirmware(ctx context.Context) (hlk.Firmware, error) {
	resp, err := d.exchange(ctx, hlk.OpReadFirmware, nil, true)
	if err != nil {
		return hlk.Firmware{}, err
	}
	fw, err := hlk.ParseFirmware(resp)
	if err != nil {
		return hlk.Firmware{}, err
	}
	d.merge(map[string]any{"firmware_version": fw.Version, "firmware_type": int(fw.Type)})
	return fw, nil
}

// SetBaudRate 设置串口波特率，重启后生效
func (d *Device) SetBaudRate(ctx context.Context, baud int) error {
	if err := d.require(hlk.OpSetBaudRate); err != nil {
		return err
	}
	value, err := hlk.BaudRateValue(baud)
	if err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			_, err := d.command(ctx, hlk.OpSetBaudRate, value)
			return err
		})
	})
}

// FactoryReset 恢复出厂设置并重启
func (d *Device) FactoryReset(ctx context.Context) error {
	if err := d.require(hlk.OpFactoryReset, hlk.OpReboot); err != nil {
		return err
	}
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			_, err := d.command(ctx, hlk.OpFactoryReset, nil)
			return err
		})
	})
	if err != nil {
		return err
	}
	d.log.Info("factory reset done, rebooting")
	return d.Reboot(ctx)
}

// Reboot 重启模块；进入配置模式后下发，不退出配置模式
func (d *Device) Reboot(ctx context.Context) error {
	if err := d.require(hlk.OpReboot); err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		resp, err := d.exchange(ctx, hlk.OpEnableConfig, d.profile.Flag(1), true)
		if err != nil {
			return err
		}
		if _, err := hlk.ParseConfigSession(resp); err != nil {
			return err
		}
		if !d.profile.RebootAck {
			_, err := d.exchange(ctx, hlk.OpReboot, nil, false)
			return err
		}
		_, err = d.command(ctx, hlk.OpReboot, nil)
		return err
	})
}

// SetBluetooth 开关模块蓝牙，重启后生效
func (d *Device) SetBluetooth(ctx context.Context, on bool) error {
	if err := d.require(hlk.OpSetBluetooth); err != nil {
		return err
	}
	var flag uint16
	if on {
		flag = 1
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			_, err := d.command(ctx, hlk.OpSetBluetooth, d.profile.Flag(flag))
			return err
		})
	})
}

// ReadMAC 读取模块 MAC 地址
func (d *Device) ReadMAC(ctx context.Context) (string, error) {
	if err := d.require(hlk.OpReadMAC); err != nil {
		return "", err
	}
	var out string
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			mac, err := d.readMAC(ctx)
			out = mac
			return err
		})
	})
	return out, err
}

func (d *Device) readMAC(ctx context.Context) (string, error) {
	resp, err := d.exchange(ctx, hlk.OpReadMAC, d.profile.Flag(1), true)
	if err != nil {
		return "", err
	}
	mac, err := hlk.ParseMAC(resp, d.profile.MACOffset)
	if err != nil {
		return "", err
	}
	d.merge(map[string]any{"mac_address": mac})
	return mac, nil
}

// SendPassword 蓝牙鉴权，不需要配置模式
func (d *Device) SendPassword(ctx context.Context, password string) error {
	if err := d.require(hlk.OpSendPassword); err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.sendPassword(ctx, password)
	})
}

func (d *Device) sendPassword(ctx context.Context, password string) error {
	value, err := hlk.PasswordValue(password)
	if err != nil {
		return err
	}
	resp, err := d.exchange(ctx, hlk.OpSendPassword, value, true)
	if err != nil {
		return err
	}
	if err := hlk.CheckStatus(hlk.OpSendPassword, resp); err != nil {
		var se *hlk.StatusError
		if errors.As(err, &se) && se.Status == 1 {
			return ErrAuthFailed
		}
		return err
	}
	return nil
}

// SetPassword 修改蓝牙密码（6 个 ASCII 字符），之后的重连使用新密码
func (d *Device) SetPassword(ctx context.Context, password string) error {
	if err := d.require(hlk.OpSetPassword); err != nil {
		return err
	}
	value, err := hlk.NewPasswordValue(password)
	if err != nil {
		return err
	}
	err = d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			_, err := d.command(ctx, hlk.OpSetPassword, value)
			return err
		})
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.password = password
	d.mu.Unlock()
	return nil
}

func (d *Device) currentPassword() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.password
}

// SetResolution 设置距离分辨率（0: 0.75m, 1: 0.2m）并重启
func (d *Device) SetResolution(ctx context.Context, index int) error {
	if err := d.require(hlk.OpSetResolution, hlk.OpReboot); err != nil {
		return err
	}
	if index != 0 && index != 1 {
		return fmt.Errorf("%w: resolution index must be 0 or 1", hlk.ErrInvalidArgument)
	}
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			if _, err := d.command(ctx, hlk.OpSetResolution, hlk.U16Value(uint16(index))); err != nil {
				return err
			}
			d.merge(map[string]any{"resolution": index})
			return nil
		})
	})
	if err != nil {
		return err
	}
	return d.Reboot(ctx)
}

// GetResolution 读取距离分辨率序号
func (d *Device) GetResolution(ctx context.Context) (int, error) {
	if err := d.require(hlk.OpGetResolution); err != nil {
		return 0, err
	}
	var out int
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			idx, err := d.getResolution(ctx)
			out = idx
			return err
		})
	})
	return out, err
}

func (d *Device) getResolution(ctx context.Context) (int, error) {
	resp, err := d.exchange(ctx, hlk.OpGetResolution, nil, true)
	if err != nil {
		return 0, err
	}
	v, err := hlk.ParseU16(hlk.OpGetResolution, resp)
	if err != nil {
		return 0, err
	}
	d.merge(map[string]any{"resolution": int(v)})
	return int(v), nil
}

// GetLightConfig 读取光敏辅助控制配置
func (d *Device) GetLightConfig(ctx context.Context) (hlk.LightConfig, error) {
	if err := d.require(hlk.OpGetLightConfig); err != nil {
		return hlk.LightConfig{}, err
	}
	var out hlk.LightConfig
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			c, err := d.getLightConfig(ctx)
			out = c
			return err
		})
	})
	return out, err
}

func (d *Device) getLightConfig(ctx context.Context) (hlk.LightConfig, error) {
	resp, err := d.exchange(ctx, hlk.OpGetLightConfig, nil, true)
	if err != nil {
		return hlk.LightConfig{}, err
	}
	c, err := hlk.ParseLightConfig(resp)
	if err != nil {
		return hlk.LightConfig{}, err
	}
	d.merge(c.Fields())
	return c, nil
}

// LightUpdate 光敏配置的部分更新，nil 字段沿用当前值
type LightUpdate struct {
	Mode      *int `json:"mode"`
	Threshold *int `json:"threshold"`
	OutLevel  *int `json:"out_level"`
}

// SetLightConfig 写入光敏辅助控制配置
func (d *Device) SetLightConfig(ctx context.Context, u LightUpdate) error {
	if err := d.require(hlk.OpSetLightConfig); err != nil {
		return err
	}
	c := hlk.LightConfig{
		Mode:      d.intField("light_function", hlk.DefaultLightConfig.Mode),
		Threshold: d.intField("light_threshold", hlk.DefaultLightConfig.Threshold),
		OutLevel:  d.intField("light_out_level", hlk.DefaultLightConfig.OutLevel),
	}
	if u.Mode != nil {
		c.Mode = *u.Mode
	}
	if u.Threshold != nil {
		c.Threshold = *u.Threshold
	}
	if u.OutLevel != nil {
		c.OutLevel = *u.OutLevel
	}
	value, err := c.Value()
	if err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			if _, err := d.command(ctx, hlk.OpSetLightConfig, value); err != nil {
				return err
			}
			d.merge(c.Fields())
			return nil
		})
	})
}

// ReadBasicParams 读取 LD2412 基础参数
func (d *Device) ReadBasicParams(ctx context.Context) (hlk.BasicParams, error) {
	if err := d.require(hlk.OpReadBasicParams); err != nil {
		return hlk.BasicParams{}, err
	}
	var out hlk.BasicParams
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			p, err := d.readBasicParams(ctx)
			out = p
			return err
		})
	})
	return out, err
}

func (d *Device) readBasicParams(ctx context.Context) (hlk.BasicParams, error) {
	resp, err := d.exchange(ctx, hlk.OpReadBasicParams, nil, true)
	if err != nil {
		return hlk.BasicParams{}, err
	}
	p, err := hlk.ParseBasicParams(resp)
	if err != nil {
		return hlk.BasicParams{}, err
	}
	d.merge(p.Fields())
	return p, nil
}

// WriteBasicParams 写入 LD2412 基础参数
func (d *Device) WriteBasicParams(ctx context.Context, p hlk.BasicParams) error {
	if err := d.require(hlk.OpWriteBasicParams); err != nil {
		return err
	}
	if _, err := p.Value(d.profile.Gates); err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			return d.writeBasicParams(ctx, p)
		})
	})
}

func (d *Device) writeBasicParams(ctx context.Context, p hlk.BasicParams) error {
	value, err := p.Value(d.profile.Gates)
	if err != nil {
		return err
	}
	if _, err := d.command(ctx, hlk.OpWriteBasicParams, value); err != nil {
		return err
	}
	d.merge(p.Fields())
	return nil
}

// ReadMotionSensitivity 读取 LD2412 各门运动灵敏度
func (d *Device) ReadMotionSensitivity(ctx context.Context) ([]int, error) {
	return d.readSensitivityOp(ctx, hlk.OpReadMotionSens)
}

// ReadMotionlessSensitivity 读取 LD2412 各门静止灵敏度
func (d *Device) ReadMotionlessSensitivity(ctx context.Context) ([]int, error) {
	return d.readSensitivityOp(ctx, hlk.OpReadMotionlessSens)
}

// WriteMotionSensitivity 写入 LD2412 各门运动灵敏度
func (d *Device) WriteMotionSensitivity(ctx context.Context, values []int) error {
	return d.writeSensitivityOp(ctx, hlk.OpWriteMotionSens, values)
}

// WriteMotionlessSensitivity 写入 LD2412 各门静止灵敏度
func (d *Device) WriteMotionlessSensitivity(ctx context.Context, values []int) error {
	return d.writeSensitivityOp(ctx, hlk.OpWriteMotionlessSens, values)
}

func (d *Device) readSensitivityOp(ctx context.Context, op hlk.Op) ([]int, error) {
	if err := d.require(op); err != nil {
		return nil, err
	}
	var out []int
	err := d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			v, err := d.readGateSensitivity(ctx, op)
			out = v
			return err
		})
	})
	return out, err
}

func (d *Device) writeSensitivityOp(ctx context.Context, op hlk.Op, values []int) error {
	if err := d.require(op); err != nil {
		return err
	}
	if _, err := hlk.GateSensitivityValue(values, d.profile.Gates); err != nil {
		return err
	}
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			return d.writeGateSensitivity(ctx, op, values)
		})
	})
}

var sensitivityKeys = map[hlk.Op]string{
	hlk.OpReadMotionSens:      "motion_sensitivity",
	hlk.OpWriteMotionSens:     "motion_sensitivity",
	hlk.OpReadMotionlessSens:  "motionless_sensitivity",
	hlk.OpWriteMotionlessSens: "motionless_sensitivity",
}

func (d *Device) readGateSensitivity(ctx context.Context, op hlk.Op) ([]int, error) {
	resp, err := d.exchange(ctx, op, nil, true)
	if err != nil {
		return nil, err
	}
	v, err := hlk.ParseGateSensitivity(op, resp, d.profile.Gates)
	if err != nil {
		return nil, err
	}
	d.merge(map[string]any{sensitivityKeys[op]: v})
	return v, nil
}

func (d *Device) writeGateSensitivity(ctx context.Context, op hlk.Op, values []int) error {
	value, err := hlk.GateSensitivityValue(values, d.profile.Gates)
	if err != nil {
		return err
	}
	if _, err := d.command(ctx, op, value); err != nil {
		return err
	}
	d.merge(map[string]any{sensitivityKeys[op]: append([]int(nil), values...)})
	return nil
}

// Refresh 重新读取设备配置并合并进快照
func (d *Device) Refresh(ctx context.Context) error {
	return d.do(ctx, func(ctx context.Context) error {
		return d.withConfig(ctx, func() error {
			return d.readConfiguration(ctx)
		})
	})
}

// readConfiguration 型号支持的配置项逐一读取；单项失败记录日志后继续
func (d *Device) readConfiguration(ctx context.Context) error {
	var readers []func() error
	if d.profile.Supports(hlk.OpReadFirmware) {
		readers = append(readers, func() error { _, err := d.readFirmware(ctx); return err })
	}
	if d.profile.Supports(hlk.OpReadParams) {
		readers = append(readers, func() error { _, err := d.readParams(ctx); return err })
	}
	if d.profile.Supports(hlk.OpReadBasicParams) {
		readers = append(readers, func() error { _, err := d.readBasicParams(ctx); return err })
	}
	if d.profile.Supports(hlk.OpGetResolution) {
		readers = append(readers, func() error { _, err := d.getResolution(ctx); return err })
	}
	if d.profile.Supports(hlk.OpGetLightConfig) {
		readers = append(readers, func() error { _, err := d.getLightConfig(ctx); return err })
	}
	for _, op := range []hlk.Op{hlk.OpReadMotionSens, hlk.OpReadMotionlessSens} {
		if d.profile.Supports(op) {
			op := op
			readers = append(readers, func() error { _, err := d.readGateSensitivity(ctx, op); return err })
		}
	}
	if d.profile.Supports(hlk.OpReadMAC) {
		readers = append(readers, func() error { _, err := d.readMAC(ctx); return err })
	}

	for _, read := range readers {
		if err := d.lenient("read_configuration", read()); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) intField(key string, def int) int {
	v, ok := d.state.Get(key)
	if !ok {
		return def
	}
	if n, ok := asInt(v); ok {
		return n
	}
	return def
}

func (d *Device) intsField(key string) []int {
	v, ok := d.state.Get(key)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []int:
		return append([]int(nil), s...)
	case []any:
		// 从 JSON 恢复的快照
		out := make([]int, 0, len(s))
		for _, x := range s {
			n, ok := asInt(x)
			if !ok {
				return nil
			}
			out = append(out, n)
		}
		return out
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), n == float64(int(n))
	}
	return 0, false
}

// patchGates 替换单门或全部门的值；gate 超出已知长度时原样返回
func patchGates(values []int, gate, v int) []int {
	out := append([]int(nil), values...)
	if gate < 0 {
		for i := range out {
			out[i] = v
		}
		return out
	}
	if gate < len(out) {
		out[gate] = v
	}
	return out
}
