package app

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCount int

func (c fixedCount) ConnectedCount() int { return int(c) }

func TestRegisterRuntimeMetrics(t *testing.T) {
	t.Run("含审计丢弃数", func(t *testing.T) {
		reg, _ := NewMetrics()
		require.NoError(t, RegisterRuntimeMetrics(reg, fixedCount(2), func() int64 { return 7 }))

		n, err := testutil.GatherAndCount(reg, "radar_devices_connected", "radar_audit_dropped_total")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		mfs, err := reg.Gather()
		require.NoError(t, err)
		values := map[string]float64{}
		for _, mf := range mfs {
			switch mf.GetName() {
			case "radar_devices_connected":
				values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
			case "radar_audit_dropped_total":
				values[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
			}
		}
		assert.Equal(t, 2.0, values["radar_devices_connected"])
		assert.Equal(t, 7.0, values["radar_audit_dropped_total"])
	})

	t.Run("未启用审计", func(t *testing.T) {
		reg, _ := NewMetrics()
		require.NoError(t, RegisterRuntimeMetrics(reg, fixedCount(0), nil))
		n, err := testutil.GatherAndCount(reg, "radar_audit_dropped_total")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("重复注册报错", func(t *testing.T) {
		reg, _ := NewMetrics()
		require.NoError(t, RegisterRuntimeMetrics(reg, fixedCount(0), nil))
		assert.Error(t, RegisterRuntimeMetrics(reg, fixedCount(0), nil))
	})
}
