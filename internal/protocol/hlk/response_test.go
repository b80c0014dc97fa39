package hlk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatus(t *testing.T) {
	require.NoError(t, CheckStatus(OpEndConfig, []byte{0x00, 0x00}))

	err := CheckStatus(OpEndConfig, []byte{0x01, 0x00})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, uint16(1), se.Status)
	assert.Equal(t, OpEndConfig, se.Op)

	assert.ErrorIs(t, CheckStatus(OpEndConfig, []byte{0x00}), ErrShortResponse)
}

func TestParseConfigSession(t *testing.T) {
	s, err := ParseConfigSession([]byte{0x00, 0x00, 0x01, 0x00, 0x40, 0x00})
	require.NoError(t, err)
	assert.Equal(t, ConfigSession{ProtocolVersion: 1, BufferSize: 0x40}, s)

	s, err = ParseConfigSession([]byte{0x00, 0x00})
	require.NoError(t, err)
	assert.Zero(t, s)
}

func TestParseFirmware(t *testing.T) {
	resp := []byte{0x00, 0x00, 0x00, 0x24, 0x10, 0x01, 0x10, 0x18, 0x04, 0x24}
	fw, err := ParseFirmware(resp)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2400), fw.Type)
	assert.Equal(t, "V1.10.24041810", fw.Version)

	_, err = ParseFirmware(resp[:6])
	assert.ErrorIs(t, err, ErrShortResponse)
}

func TestParseParams(t *testing.T) {
	resp := []byte{
		0x00, 0x00, 0xAA,
		0x08, 0x08, 0x06,
		50, 50, 40, 30, 20, 15, 15, 15, 15,
		0, 0, 40, 40, 30, 30, 20, 20, 20,
		0x05, 0x00,
	}
	p, err := ParseParams(resp)
	require.NoError(t, err)
	assert.Equal(t, 8, p.MaxGate)
	assert.Equal(t, 8, p.MaxMoveGate)
	assert.Equal(t, 6, p.MaxStillGate)
	assert.Len(t, p.MoveSensitivity, 9)
	assert.Equal(t, 50, p.MoveSensitivity[0])
	assert.Equal(t, 20, p.StillSensitivity[8])
	assert.Equal(t, 5, p.AbsenceDelay)

	_, err = ParseParams(resp[:12])
	assert.ErrorIs(t, err, ErrShortResponse)

	bad := append([]byte(nil), resp...)
	bad[2] = 0x00
	_, err = ParseParams(bad)
	assert.ErrorIs(t, err, ErrShortResponse)
}

func TestParseU16(t *testing.T) {
	v, err := ParseU16(OpGetResolution, []byte{0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), v)

	v, err = ParseU16(OpGetResolution, []byte{0x00, 0x00, 0x02})
	require.NoError(t, err)
	assert.Equal(t, uint16(2), v)

	_, err = ParseU16(OpGetResolution, []byte{0x00, 0x00})
	assert.ErrorIs(t, err, ErrShortResponse)
}

func TestParseLightConfig(t *testing.T) {
	c, err := ParseLightConfig([]byte{0x00, 0x00, 0x01, 0x80, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, LightConfig{Mode: 1, Threshold: 0x80}, c)
	assert.Equal(t, 0x80, c.Fields()["light_threshold"])
}

func TestParseMAC(t *testing.T) {
	mac, err := ParseMAC([]byte{0x00, 0x00, 0x00, 0x8F, 0x27, 0x2E, 0xB8, 0x0F, 0x65}, LD2410().MACOffset)
	require.NoError(t, err)
	assert.Equal(t, "8F:27:2E:B8:0F:65", mac)

	mac, err = ParseMAC([]byte{0x00, 0x00, 0x8F, 0x27, 0x2E, 0xB8, 0x0F, 0x65}, LD2412().MACOffset)
	require.NoError(t, err)
	assert.Equal(t, "8F:27:2E:B8:0F:65", mac)
}

func TestParseBasicParams(t *testing.T) {
	p, err := ParseBasicParams([]byte{0x00, 0x00, 0x01, 0x0C, 0x1E, 0x00, 0x01})
	require.NoError(t, err)
	assert.Equal(t, BasicParams{MinGate: 1, MaxGate: 12, UnmannedDuration: 30, OutPinPolarity: 1}, p)
}

func TestParseGateSensitivity(t *testing.T) {
	resp := []byte{0x00, 0x00, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	s, err := ParseGateSensitivity(OpReadMotionSens, resp, 14)
	require.NoError(t, err)
	assert.Len(t, s, 14)
	assert.Equal(t, 14, s[13])

	_, err = ParseGateSensitivity(OpReadMotionSens, resp[:10], 14)
	assert.ErrorIs(t, err, ErrShortResponse)
}
