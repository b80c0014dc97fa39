package health

import (
	"context"
	"sort"
	"time"

	"github.com/taoyao-code/hlk-radar/internal/driver"
)

// DeviceSource 雷达设备列表
type DeviceSource interface {
	List() []*driver.Device
}

// DevicesChecker 雷达可用性检查器。
// 雷达按需连接、空闲断开，不可用只降级，不判为不健康。
type DevicesChecker struct {
	src DeviceSource
}

func NewDevicesChecker(src DeviceSource) *DevicesChecker {
	return &DevicesChecker{src: src}
}

func (c *DevicesChecker) Name() string {
	return "devices"
}

func (c *DevicesChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	devices := c.src.List()

	connected, available := 0, 0
	var unavailable []string
	for _, d := range devices {
		if d.State() == driver.StateConnected {
			connected++
		}
		if d.Available() {
			available++
		} else {
			unavailable = append(unavailable, d.Address())
		}
	}
	sort.Strings(unavailable)

	details := map[string]any{
		"total":     len(devices),
		"connected": connected,
		"available": available,
	}

	status := StatusHealthy
	message := "ok"
	switch {
	case len(devices) == 0:
		message = "no devices configured"
	case len(unavailable) > 0:
		status = StatusDegraded
		message = "some devices unavailable"
		details["unavailable"] = unavailable
	}

	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
