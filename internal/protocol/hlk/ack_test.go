package hlk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ackFrame(ack []byte, rest ...byte) []byte {
	return EncodeFrame(DownlinkHeader, DownlinkFooter, append(append([]byte(nil), ack...), rest...))
}

func TestValidateResponse_EnableConfig(t *testing.T) {
	cases := []struct {
		name   string
		ack    []byte
		accept bool
	}{
		{"正确应答 FF 01", []byte{0xFF, 0x01}, true},
		{"字节交换 00 FF", []byte{0x00, 0xFF}, false},
		{"原命令字 FF 00", []byte{0xFF, 0x00}, false},
		{"反向变换 01 FF", []byte{0x01, 0xFF}, false},
		{"仅标志位 00 01", []byte{0x00, 0x01}, false},
		{"其他命令 FE 01", []byte{0xFE, 0x01}, false},
	}
	for _, p := range []*Profile{LD2410(), LD2412()} {
		for _, tc := range cases {
			t.Run(string(p.Model)+"/"+tc.name, func(t *testing.T) {
				payload, err := p.ValidateResponse(WordEnableConfig, ackFrame(tc.ack, 0x00, 0x00))
				if tc.accept {
					require.NoError(t, err)
					assert.Equal(t, []byte{0x00, 0x00}, payload)
					return
				}
				var mismatch *CommandMismatchError
				require.True(t, errors.As(err, &mismatch), "err=%v", err)
				assert.Equal(t, WordEnableConfig, mismatch.Command)
			})
		}
	}
}

func TestAckRules_Diverge(t *testing.T) {
	// 0x0163 线上字节 63 01，第二字节最低位为 1 时两种规则结果不同
	wire := []byte{0x63, 0x01}
	assert.Equal(t, []byte{0x63, 0x00}, XorBigEndian.Ack(wire))
	assert.Equal(t, []byte{0x63, 0x01}, OrLittleEndian.Ack(wire))

	// 常规命令两种规则一致
	assert.Equal(t, XorBigEndian.Ack([]byte{0xFE, 0x00}), OrLittleEndian.Ack([]byte{0xFE, 0x00}))
}

func TestValidateResponse_Short(t *testing.T) {
	_, err := LD2412().ValidateResponse(WordEndConfig, ackFrame([]byte{0xFE}))
	assert.ErrorIs(t, err, ErrShortResponse)
}

func TestParseAckRule(t *testing.T) {
	r, err := ParseAckRule("OR-LE")
	require.NoError(t, err)
	assert.Equal(t, "or-le", r.String())

	_, err = ParseAckRule("crc")
	assert.Error(t, err)
}
