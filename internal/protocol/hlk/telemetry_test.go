package hlk

import (
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type telemetryVector struct {
	Name  string         `yaml:"name"`
	Model string         `yaml:"model"`
	Frame string         `yaml:"frame"`
	Want  map[string]any `yaml:"want"`
}

func loadTelemetryVectors(t *testing.T) []telemetryVector {
	t.Helper()
	raw, err := os.ReadFile("testdata/telemetry.yaml")
	require.NoError(t, err)
	var out []telemetryVector
	require.NoError(t, yaml.Unmarshal(raw, &out))
	require.NotEmpty(t, out)
	return out
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// normalize yaml 列表解码为 []any，转换为与 Fields 一致的 []int
func normalize(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]int, len(list))
	for i, e := range list {
		out[i] = e.(int)
	}
	return out
}

func TestDecodeTelemetry_Vectors(t *testing.T) {
	for _, vec := range loadTelemetryVectors(t) {
		t.Run(vec.Name, func(t *testing.T) {
			p, err := ProfileFor(vec.Model)
			require.NoError(t, err)

			r, err := p.DecodeTelemetry(mustHex(t, vec.Frame))
			require.NoError(t, err)

			fields := r.Fields()
			for k, want := range vec.Want {
				assert.Equal(t, normalize(want), fields[k], "field %s", k)
			}
		})
	}
}

func TestParseTelemetry_BasicUnavailableGates(t *testing.T) {
	content := []byte{0x01, 0x64, 0x00, 0x32, 0xC8, 0x00, 0x1E}
	payload := append(append([]byte{0x02, 0xAA}, content...), 0x55, 0x00)

	r, err := ParseTelemetry(payload, TelemetryLayout{Checksum: true})
	require.NoError(t, err)

	assert.True(t, r.Moving)
	assert.False(t, r.Stationary)
	assert.True(t, r.Occupancy())
	assert.Equal(t, uint16(100), r.MoveDistanceCM)
	assert.Equal(t, uint8(50), r.MoveEnergy)
	assert.Equal(t, uint16(200), r.StillDistanceCM)
	assert.Equal(t, uint8(30), r.StillEnergy)

	fields := r.Fields()
	for _, k := range []string{"move_gate_energy", "still_gate_energy", "max_move_gate", "max_still_gate", "light_level", "out_pin"} {
		v, ok := fields[k]
		assert.True(t, ok, "%s 必须存在", k)
		assert.Nil(t, v, "%s 应为不可用", k)
	}
}

func TestParseTelemetry_EngineeringGateCounts(t *testing.T) {
	payload := []byte{
		0x01, 0xAA,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x02, 0x01,
		5, 6, 7,
		8, 9,
		0x55, 0x00,
	}
	r, err := ParseTelemetry(payload, TelemetryLayout{Checksum: true})
	require.NoError(t, err)

	assert.False(t, r.Truncated)
	assert.Equal(t, []uint8{5, 6, 7}, r.MoveGateEnergy)
	assert.Equal(t, []uint8{8, 9}, r.StillGateEnergy)
	assert.Nil(t, r.LightLevel)
	assert.Nil(t, r.OutPin)
}

func TestParseTelemetry_EngineeringLightAndOutPin(t *testing.T) {
	payload := []byte{
		0x01, 0xAA,
		0x01, 0x10, 0x00, 0x20, 0x00, 0x00, 0x00, 0x10, 0x00,
		0x00, 0x00,
		0x11,
		0x22,
		0x7F, 0x01,
		0x55, 0x00,
	}
	r, err := ParseTelemetry(payload, TelemetryLayout{Checksum: true, DetectDistance: true})
	require.NoError(t, err)

	require.NotNil(t, r.DetectDistanceCM)
	assert.Equal(t, uint16(16), *r.DetectDistanceCM)
	require.NotNil(t, r.LightLevel)
	assert.Equal(t, uint8(0x7F), *r.LightLevel)
	require.NotNil(t, r.OutPin)
	assert.True(t, *r.OutPin)
	assert.Equal(t, true, r.Fields()["out_pin"])
}

func TestParseTelemetry_EngineeringTruncated(t *testing.T) {
	// 声明 8 个运动门但数据不足
	payload := []byte{
		0x01, 0xAA,
		0x02, 0x00, 0x00, 0x00, 0x40, 0x00, 0x33,
		0x08, 0x08,
		1, 2, 3,
		0x55, 0x00,
	}
	r, err := ParseTelemetry(payload, TelemetryLayout{Checksum: true})
	require.NoError(t, err)

	assert.True(t, r.Truncated)
	assert.True(t, r.Stationary)
	assert.Equal(t, uint16(64), r.StillDistanceCM)
	assert.Nil(t, r.MoveGateEnergy)
	assert.Nil(t, r.StillGateEnergy)
	assert.Nil(t, r.Fields()["move_gate_energy"])
	assert.Equal(t, true, r.Fields()["engineering_truncated"])
}

func TestParseTelemetry_Errors(t *testing.T) {
	basic := []byte{0x02, 0xAA, 0x01, 0x64, 0x00, 0x32, 0xC8, 0x00, 0x1E}
	tests := []struct {
		name    string
		payload []byte
		layout  TelemetryLayout
		want    error
	}{
		{"太短", []byte{0x02}, TelemetryLayout{Checksum: true}, ErrNotTelemetry},
		{"类型标志错误", []byte{0x02, 0xAB, 0, 0, 0, 0, 0, 0, 0, 0x55, 0}, TelemetryLayout{Checksum: true}, ErrNotTelemetry},
		{"未知类型", []byte{0x03, 0xAA, 0, 0, 0, 0, 0, 0, 0, 0x55, 0}, TelemetryLayout{Checksum: true}, ErrUnknownFrameType},
		{"缺少结束标志", append(append([]byte(nil), basic...), 0x54, 0x00), TelemetryLayout{Checksum: true}, ErrMissingEndMarker},
		{"长度不足", []byte{0x02, 0xAA, 0x00, 0x55, 0x00}, TelemetryLayout{Checksum: true}, ErrShortPayload},
		{"LD2410 缺少探测距离", append(append([]byte(nil), basic...), 0x55, 0x00), TelemetryLayout{Checksum: true, DetectDistance: true}, ErrShortPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseTelemetry(tt.payload, tt.layout)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseTelemetry_NoChecksumTrailer(t *testing.T) {
	payload := []byte{0x02, 0xAA, 0x03, 0x0A, 0x00, 0x14, 0x0B, 0x00, 0x15, 0x55}
	r, err := ParseTelemetry(payload, TelemetryLayout{})
	require.NoError(t, err)
	assert.True(t, r.Moving)
	assert.True(t, r.Stationary)
	assert.Equal(t, uint16(10), r.MoveDistanceCM)
	assert.Equal(t, uint16(11), r.StillDistanceCM)

	_, err = ParseTelemetry(payload, TelemetryLayout{Checksum: true})
	assert.ErrorIs(t, err, ErrMissingEndMarker)
}
