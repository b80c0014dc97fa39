package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/hlk-radar/internal/link"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// pipePort 用 io.Pipe 模拟串口：测试向 devW 写入即为设备发出的数据
type pipePort struct {
	r    *io.PipeReader
	devW *io.PipeWriter

	mu      sync.Mutex
	written []byte
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{r: r, devW: w}
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *pipePort) Close() error {
	return p.r.Close()
}

func TestSerialLink_FramesAndWrite(t *testing.T) {
	port := newPipePort()
	l := NewWithOpener("/dev/ttyUSB0", 0, func(string, int) (Port, error) { return port, nil }, nil)

	conn, err := l.Connect(context.Background(), "AA:BB:CC:DD:EE:01", nil)
	require.NoError(t, err)

	frames := make(chan []byte, 4)
	require.NoError(t, conn.Subscribe(context.Background(), link.NotifyCharacteristic, func(b []byte) { frames <- b }))

	ack := hlk.EncodeFrame(hlk.DownlinkHeader, hlk.DownlinkFooter, []byte{0xFE, 0x01, 0x00, 0x00})
	go func() {
		_, _ = port.devW.Write(ack[:5])
		_, _ = port.devW.Write(ack[5:])
	}()

	select {
	case got := <-frames:
		assert.Equal(t, ack, got)
	case <-time.After(time.Second):
		t.Fatal("未收到完整帧")
	}

	cmd := hlk.EncodeCommand(hlk.WordEndConfig, nil)
	require.NoError(t, conn.Write(context.Background(), link.WriteCharacteristic, cmd, false))
	port.mu.Lock()
	assert.Equal(t, cmd, port.written)
	port.mu.Unlock()

	err = conn.Write(context.Background(), link.NotifyCharacteristic, cmd, false)
	assert.ErrorIs(t, err, link.ErrUnknownChar)
}

func TestSerialLink_ReadErrorClosesOnce(t *testing.T) {
	port := newPipePort()
	l := NewWithOpener("/dev/ttyUSB0", 0, func(string, int) (Port, error) { return port, nil }, nil)

	closed := make(chan error, 2)
	conn, err := l.Connect(context.Background(), "AA:BB:CC:DD:EE:01", func(err error) { closed <- err })
	require.NoError(t, err)

	_ = port.devW.CloseWithError(errors.New("usb unplugged"))

	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("读失败后应通知断开")
	}
	assert.NoError(t, conn.Disconnect(context.Background()))
	assert.Len(t, closed, 0)
}

func TestSerialLink_DisconnectNilCause(t *testing.T) {
	port := newPipePort()
	l := NewWithOpener("/dev/ttyUSB0", 0, func(string, int) (Port, error) { return port, nil }, nil)

	closed := make(chan error, 1)
	conn, err := l.Connect(context.Background(), "AA:BB:CC:DD:EE:01", func(err error) { closed <- err })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Disconnect(ctx))
	assert.NoError(t, <-closed)
	assert.NoError(t, conn.Disconnect(ctx), "重复断开无副作用")

	err = conn.Write(ctx, link.WriteCharacteristic, []byte{0x01}, false)
	assert.ErrorIs(t, err, link.ErrClosed)
}
