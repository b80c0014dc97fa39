package hlk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAdvertFirmware(t *testing.T) {
	mfr := map[uint16][]byte{
		256: {0x07, 0x02, 0x15, 0x28, 0x03, 0x24, 0x45, 0, 0, 0, 0, 0, 0},
	}
	fw, ok := ParseAdvertFirmware(mfr)
	require.True(t, ok)
	assert.Equal(t, "2.07.24032815", fw.Version)
	assert.Equal(t, time.Date(2024, time.March, 28, 15, 45, 0, 0, time.UTC), fw.BuildDate)
}

func TestParseAdvertFirmware_Invalid(t *testing.T) {
	tests := []struct {
		name string
		mfr  map[uint16][]byte
	}{
		{"无厂商数据", nil},
		{"长度不足", map[uint16][]byte{1494: {0x07, 0x02}}},
		{"月份非法", map[uint16][]byte{256: {0x07, 0x02, 0x15, 0x28, 0x13, 0x24, 0x45, 0, 0, 0, 0, 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseAdvertFirmware(tt.mfr)
			assert.False(t, ok)
		})
	}
}
