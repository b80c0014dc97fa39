package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hlk-radar/internal/config"
	"github.com/taoyao-code/hlk-radar/internal/devicestate"
	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/link"
	"github.com/taoyao-code/hlk-radar/internal/link/bluez"
	"github.com/taoyao-code/hlk-radar/internal/link/serial"
)

// LinkFactory 为单台设备创建链路
type LinkFactory func(dc cfgpkg.DeviceConfig) (link.Link, error)

// SnapshotLoader 读取上次持久化的快照
type SnapshotLoader interface {
	Load(ctx context.Context, address string) (map[string]any, time.Time, error)
}

// NewLinkFactory BlueZ 设备共享一个适配器链路，串口设备各自独占端口
func NewLinkFactory(ble cfgpkg.BLEConfig, log *zap.Logger) LinkFactory {
	var shared *bluez.Link
	return func(dc cfgpkg.DeviceConfig) (link.Link, error) {
		switch dc.Transport {
		case cfgpkg.TransportBlueZ:
			if shared == nil {
				shared = bluez.New(ble.Adapter, log.Named("bluez"), bluez.WithTimeouts(ble.ConnectTimeout, ble.ResolveTimeout))
			}
			return shared, nil
		case cfgpkg.TransportSerial:
			return serial.New(dc.Serial.Port, dc.Serial.Baud, log.Named("serial")), nil
		default:
			return nil, fmt.Errorf("unknown transport %q", dc.Transport)
		}
	}
}

// BuildDevices 按配置创建设备；loader 非 nil 时先恢复快照
func BuildDevices(
	ctx context.Context,
	cfg *cfgpkg.Config,
	links LinkFactory,
	obs driver.Observer,
	loader SnapshotLoader,
	log *zap.Logger,
) ([]*driver.Device, error) {
	devices := make([]*driver.Device, 0, len(cfg.Devices))
	for i, dc := range cfg.Devices {
		profile, err := dc.Profile()
		if err != nil {
			return nil, fmt.Errorf("devices[%d]: %w", i, err)
		}
		l, err := links(dc)
		if err != nil {
			return nil, fmt.Errorf("devices[%d]: %w", i, err)
		}

		opts := []driver.Option{driver.WithLogger(log), driver.WithObserver(obs)}
		if loader != nil {
			if st := restoreSnapshot(ctx, loader, dc.Address, log); st != nil {
				opts = append(opts, driver.WithStore(st))
			}
		}

		d := driver.New(dc.DriverConfig(cfg.Driver, profile), profile, l, opts...)
		devices = append(devices, d)
		log.Info("device configured",
			zap.String("device", d.Address()),
			zap.String("model", string(d.Model())),
			zap.String("name", d.Name()),
			zap.String("transport", dc.Transport))
	}
	return devices, nil
}

func restoreSnapshot(ctx context.Context, loader SnapshotLoader, address string, log *zap.Logger) *devicestate.Store {
	lctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	snap, updated, err := loader.Load(lctx, address)
	if err != nil {
		log.Warn("restore snapshot failed", zap.String("device", address), zap.Error(err))
		return nil
	}
	if len(snap) == 0 {
		return nil
	}
	st := devicestate.New()
	st.Merge(snap)
	log.Info("snapshot restored",
		zap.String("device", address),
		zap.Int("fields", len(snap)),
		zap.Time("updated_at", updated))
	return st
}
