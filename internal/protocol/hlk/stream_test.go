package hlk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDecoder_MixedFamilies(t *testing.T) {
	ack := EncodeFrame(DownlinkHeader, DownlinkFooter, []byte{0xFF, 0x01, 0x00, 0x00})
	up := EncodeFrame(UplinkHeader, UplinkFooter, []byte{0x02, 0xAA, 0x01, 0x64, 0x00, 0x32, 0xC8, 0x00, 0x1E, 0x55, 0x00})

	stream := append([]byte{0x00, 0x13, 0xF4}, ack...)
	stream = append(stream, up...)

	d := NewStreamDecoder()
	frames := d.Feed(stream)
	require.Len(t, frames, 2)
	assert.Equal(t, ack, frames[0])
	assert.Equal(t, up, frames[1])
	assert.Zero(t, d.Buffered())
}

func TestStreamDecoder_SplitAcrossReads(t *testing.T) {
	up := EncodeFrame(UplinkHeader, UplinkFooter, []byte{0x02, 0xAA, 0x01, 0x64, 0x00, 0x32, 0xC8, 0x00, 0x1E, 0x55, 0x00})
	d := NewStreamDecoder()

	var got [][]byte
	for i := 0; i < len(up); i += 3 {
		end := min(i+3, len(up))
		got = append(got, d.Feed(up[i:end])...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, up, got[0])
}

func TestStreamDecoder_BadFooterResync(t *testing.T) {
	bad := EncodeFrame(DownlinkHeader, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0xFE, 0x01, 0x00, 0x00})
	good := EncodeFrame(DownlinkHeader, DownlinkFooter, []byte{0xFE, 0x01, 0x00, 0x00})

	d := NewStreamDecoder()
	frames := d.Feed(append(bad, good...))
	require.Len(t, frames, 1)
	assert.Equal(t, good, frames[0])
}
