package hlk

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordValue(t *testing.T) {
	v, err := PasswordValue("HiLink")
	require.NoError(t, err)
	assert.Equal(t, "48694c696e6b", hex.EncodeToString(v))

	v, err = PasswordValue("abc")
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 'c', 0x00}, v)

	_, err = PasswordValue("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewPasswordValue("short")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewPasswordValue("密码密")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSensitivityValue(t *testing.T) {
	v, err := SensitivityValue(AllGates, 8, 40, 40)
	require.NoError(t, err)
	assert.Equal(t, "0000ffff0000010028000000020028000000", hex.EncodeToString(v))

	tests := []struct {
		name        string
		gate        uint16
		move, still int
	}{
		{"门越界", 9, 10, 10},
		{"运动灵敏度越界", 1, 101, 10},
		{"静止灵敏度为负", 1, 10, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SensitivityValue(tt.gate, 8, tt.move, tt.still)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestMaxGatesValue(t *testing.T) {
	v, err := MaxGatesValue(8, 8, 5)
	require.NoError(t, err)
	assert.Equal(t, "000008000000010008000000020005000000", hex.EncodeToString(v))

	_, err = MaxGatesValue(8, 8, 70000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLightConfigValue(t *testing.T) {
	v, err := LightConfig{Mode: 2, Threshold: 0x80, OutLevel: 1}.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x80, 0x01, 0x00}, v)

	_, err = LightConfig{Mode: 3}.Value()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBasicParamsValue(t *testing.T) {
	v, err := BasicParams{MinGate: 1, MaxGate: 12, UnmannedDuration: 30}.Value(14)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x0C, 0x1E, 0x00, 0x00}, v)

	_, err = BasicParams{MinGate: 5, MaxGate: 2}.Value(14)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGateSensitivityValue(t *testing.T) {
	vals := make([]int, 14)
	for i := range vals {
		vals[i] = 50
	}
	v, err := GateSensitivityValue(vals, 14)
	require.NoError(t, err)
	assert.Len(t, v, 14)

	_, err = GateSensitivityValue(vals[:3], 14)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestProfileWords(t *testing.T) {
	p2410, p2412 := LD2410(), LD2412()

	assert.True(t, p2410.Supports(OpSendPassword))
	assert.False(t, p2412.Supports(OpSendPassword))
	assert.True(t, p2412.Supports(OpReadBasicParams))
	assert.False(t, p2410.Supports(OpReadBasicParams))

	w, ok := p2412.Word(OpGetResolution)
	require.True(t, ok)
	assert.Equal(t, Word(0x0011), w)
	w, ok = p2410.Word(OpGetResolution)
	require.True(t, ok)
	assert.Equal(t, Word(0x00AB), w)

	assert.Equal(t, []byte{0x00, 0x01}, p2410.Flag(1))
	assert.Equal(t, []byte{0x01, 0x00}, p2412.Flag(1))
}

func TestProfileFor(t *testing.T) {
	p, err := ProfileFor("LD2410C")
	require.NoError(t, err)
	assert.Equal(t, ModelLD2410, p.Model)

	_, err = ProfileFor("ld1125")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestExportedWords(t *testing.T) {
	w, ok := LD2410().Word(OpReadParams)
	require.True(t, ok)
	assert.Equal(t, WordReadParams, w)

	_, ok = LD2412().Word(OpReadParams)
	assert.False(t, ok)
}
