package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

const ld2412Basic = "f4f3f2f10b0002aa016400 32c800 1e5500f8f7f6f5"

func decodeJSON(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var frames []map[string]any
	dec := json.NewDecoder(out)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		frames = append(frames, m)
	}
	return frames
}

func TestParseHex(t *testing.T) {
	b, err := parseHex("0xFD:FC, fb fa")
	require.NoError(t, err)
	assert.Equal(t, hlk.DownlinkHeader, b)

	_, err = parseHex("zz")
	assert.Error(t, err)
}

func TestDecodeFrames(t *testing.T) {
	p := hlk.LD2410()
	ack := hlk.EncodeFrame(hlk.DownlinkHeader, hlk.DownlinkFooter, []byte{0xFF, 0x01, 0x00, 0x00, 0x01, 0x00, 0x40, 0x00})
	failed := hlk.EncodeFrame(hlk.DownlinkHeader, hlk.DownlinkFooter, []byte{0xA3, 0x01, 0x01, 0x00})
	cmd := p.EncodeCommand(hlk.WordEnableConfig, p.Flag(1))

	t.Run("进入配置应答", func(t *testing.T) {
		got := decodeFrame(p, ack)
		assert.Equal(t, "ack", got.Route)
		assert.Equal(t, hlk.OpEnableConfig, got.Op)
		assert.Equal(t, "ack", got.Kind)
		require.NotNil(t, got.Status)
		assert.Zero(t, *got.Status)
		assert.Equal(t, uint16(1), got.Fields["protocol_version"])
		assert.Equal(t, uint16(0x40), got.Fields["buffer_size"])
		assert.Empty(t, got.Error)
	})

	t.Run("失败状态码", func(t *testing.T) {
		got := decodeFrame(p, failed)
		assert.Equal(t, hlk.OpReboot, got.Op)
		require.NotNil(t, got.Status)
		assert.Equal(t, uint16(1), *got.Status)
		assert.NotEmpty(t, got.Error)
	})

	t.Run("主机命令帧", func(t *testing.T) {
		got := decodeFrame(p, cmd)
		assert.Equal(t, hlk.OpEnableConfig, got.Op)
		assert.Equal(t, "command", got.Kind)
		assert.Equal(t, "0001", got.Payload)
	})

	t.Run("未知命令字", func(t *testing.T) {
		unknown := hlk.EncodeFrame(hlk.DownlinkHeader, hlk.DownlinkFooter, []byte{0x77, 0x77})
		got := decodeFrame(p, unknown)
		assert.Equal(t, errUnknownWord.Error(), got.Error)
	})

	t.Run("字节流多帧", func(t *testing.T) {
		stream := append([]byte{0x00, 0x11}, ack...)
		stream = append(stream, cmd...)
		got := decodeStream(p, stream)
		require.Len(t, got, 2)
		assert.Equal(t, hex.EncodeToString(ack), got[0].Raw)
		assert.Equal(t, "command", got[1].Kind)
	})
}

func TestRun(t *testing.T) {
	t.Run("参数输入", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run("ld2412", true, strings.Fields(ld2412Basic), strings.NewReader(""), &out))
		frames := decodeJSON(t, &out)
		require.Len(t, frames, 1)
		assert.Equal(t, "telemetry", frames[0]["route"])
		fields := frames[0]["fields"].(map[string]any)
		assert.Equal(t, "basic", fields["data_type"])
		assert.Equal(t, true, fields["moving"])
		assert.EqualValues(t, 100, fields["move_distance_cm"])
	})

	t.Run("标准输入忽略注释", func(t *testing.T) {
		var out bytes.Buffer
		in := strings.NewReader("# capture\n" + ld2412Basic + "\n")
		require.NoError(t, run("ld2412", false, nil, in, &out))
		assert.Len(t, decodeJSON(t, &out), 1)
	})

	t.Run("未知型号", func(t *testing.T) {
		assert.Error(t, run("ld9999", true, []string{ld2412Basic}, strings.NewReader(""), &bytes.Buffer{}))
	})

	t.Run("没有完整帧", func(t *testing.T) {
		assert.Error(t, run("ld2410", true, []string{"fdfcfbfa"}, strings.NewReader(""), &bytes.Buffer{}))
	})
}
