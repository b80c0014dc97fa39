package hlk

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand_EnableConfig(t *testing.T) {
	got := hex.EncodeToString(EncodeCommand(WordEnableConfig, []byte{0x01, 0x00}))
	assert.Equal(t, "fdfcfbfa0400ff00010004030201", got)
}

func TestEncodeUnwrap_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		word  Word
		value []byte
	}{
		{"无参数", WordEndConfig, nil},
		{"开关参数", WordEnableConfig, []byte{0x01, 0x00}},
		{"长参数", 0x0064, []byte{0, 0, 0xFF, 0xFF, 0, 0, 1, 0, 50, 0, 0, 0, 2, 0, 40, 0, 0, 0}},
		{"高位命令字", 0xABCD, []byte{0xFD, 0xFC, 0xFB, 0xFA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeCommand(tt.word, tt.value)
			require.True(t, IsFramed(frame, DownlinkHeader, DownlinkFooter))

			content := Unwrap(frame, DownlinkHeader, DownlinkFooter)
			want := append([]byte{byte(tt.word), byte(tt.word >> 8)}, tt.value...)
			assert.Equal(t, want, content)
		})
	}
}

func TestUnwrap_NotFramed(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"空", []byte{}},
		{"仅帧头", DownlinkHeader},
		{"帧尾不符", []byte{0xFD, 0xFC, 0xFB, 0xFA, 0x02, 0x00, 0xFF, 0x01, 0x00, 0x00, 0x00, 0x00}},
		{"长度不符", []byte{0xFD, 0xFC, 0xFB, 0xFA, 0x03, 0x00, 0xFF, 0x01, 0x04, 0x03, 0x02, 0x01}},
		{"上行帧", EncodeFrame(UplinkHeader, UplinkFooter, []byte{0x02, 0xAA})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unwrap(tt.buf, DownlinkHeader, DownlinkFooter)
			assert.Equal(t, tt.buf, got)
		})
	}
}

func TestProfileEncodeCommand_WordOrder(t *testing.T) {
	p := LD2410()
	be, err := p.Apply(Overrides{WordOrder: "be"})
	require.NoError(t, err)

	assert.Equal(t, "fdfcfbfa0200ff0004030201", hex.EncodeToString(p.EncodeCommand(WordEnableConfig, nil)))
	assert.Equal(t, "fdfcfbfa020000ff04030201", hex.EncodeToString(be.EncodeCommand(WordEnableConfig, nil)))
}
