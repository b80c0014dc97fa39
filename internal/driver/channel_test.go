package driver

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

func ackFrame(p *hlk.Profile, word hlk.Word, resp ...byte) []byte {
	body := append(p.ExpectedAck(word), resp...)
	return hlk.EncodeFrame(hlk.DownlinkHeader, hlk.DownlinkFooter, body)
}

type frameRecorder struct {
	mu      sync.Mutex
	frames  [][]byte
	onWrite func(frame []byte)
	err     error
}

func (r *frameRecorder) write(ctx context.Context, frame []byte) error {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	fn, err := r.onWrite, r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if fn != nil {
		fn(frame)
	}
	return nil
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestCommandChannelExchange(t *testing.T) {
	p := hlk.LD2410()

	t.Run("写入期间到达的应答不丢失", func(t *testing.T) {
		rec := &frameRecorder{}
		ch := NewCommandChannel(p, p, rec.write, time.Second)
		rec.onWrite = func([]byte) {
			assert.True(t, ch.Deliver(ackFrame(p, hlk.WordEnableConfig, 0x00, 0x00, 0x01, 0x00, 0x40, 0x00)))
		}

		resp, err := ch.Exchange(context.Background(), hlk.WordEnableConfig, p.Flag(1), true)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0x40, 0x00}, resp)
		assert.Equal(t, "fdfcfbfa0400ff00000104030201", hex.EncodeToString(rec.frames[0]))
		assert.False(t, ch.Pending())
	})

	t.Run("超时后迟到的应答被丢弃", func(t *testing.T) {
		rec := &frameRecorder{}
		ch := NewCommandChannel(p, p, rec.write, 30*time.Millisecond)

		_, err := ch.Exchange(context.Background(), hlk.WordReadFirmware, nil, true)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.False(t, ch.Deliver(ackFrame(p, hlk.WordReadFirmware, 0x00, 0x00)))
	})

	t.Run("应答命令字不匹配", func(t *testing.T) {
		rec := &frameRecorder{}
		ch := NewCommandChannel(p, p, rec.write, time.Second)
		rec.onWrite = func([]byte) {
			ch.Deliver(ackFrame(p, hlk.WordEndConfig, 0x00, 0x00))
		}

		_, err := ch.Exchange(context.Background(), hlk.WordEnableConfig, p.Flag(1), true)
		var mismatch *hlk.CommandMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, hlk.WordEnableConfig, mismatch.Command)
	})

	t.Run("写入失败为链路错误", func(t *testing.T) {
		rec := &frameRecorder{err: errors.New("gatt write failed")}
		ch := NewCommandChannel(p, p, rec.write, time.Second)

		_, err := ch.Exchange(context.Background(), hlk.WordEnableConfig, nil, true)
		assert.True(t, IsTransport(err))
		assert.False(t, ch.Pending())
	})

	t.Run("未连接不包装", func(t *testing.T) {
		ch := NewCommandChannel(p, p, func(context.Context, []byte) error { return ErrNotConnected }, time.Second)

		_, err := ch.Exchange(context.Background(), hlk.WordEnableConfig, nil, true)
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.False(t, IsTransport(err))
	})

	t.Run("取消当前命令", func(t *testing.T) {
		rec := &frameRecorder{}
		ch := NewCommandChannel(p, p, rec.write, time.Second)
		rec.onWrite = func([]byte) {
			go ch.Cancel(ErrConnectionLost)
		}

		_, err := ch.Exchange(context.Background(), hlk.WordReadParams, nil, true)
		assert.ErrorIs(t, err, ErrConnectionLost)
	})

	t.Run("不等待应答", func(t *testing.T) {
		rec := &frameRecorder{}
		ch := NewCommandChannel(p, p, rec.write, time.Second)

		resp, err := ch.Exchange(context.Background(), hlk.WordReboot, nil, false)
		require.NoError(t, err)
		assert.Nil(t, resp)
		assert.Equal(t, 1, rec.count())
		assert.False(t, ch.Pending())
	})

	t.Run("无待应答命令时的应答", func(t *testing.T) {
		ch := NewCommandChannel(p, p, (&frameRecorder{}).write, time.Second)
		assert.False(t, ch.Deliver(ackFrame(p, hlk.WordEnableConfig, 0x00, 0x00)))
	})
}

func TestCommandChannelSerializes(t *testing.T) {
	p := hlk.LD2412()
	writes := make(chan []byte, 4)
	rec := &frameRecorder{onWrite: func(frame []byte) { writes <- frame }}
	ch := NewCommandChannel(p, p, rec.write, time.Second)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, word := range []hlk.Word{hlk.WordReadFirmware, hlk.WordReadMAC} {
		wg.Add(1)
		go func(i int, word hlk.Word) {
			defer wg.Done()
			_, results[i] = ch.Exchange(context.Background(), word, nil, true)
		}(i, word)
	}

	first := <-writes
	select {
	case <-writes:
		t.Fatal("第二条命令在第一条应答前写出")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, ch.InFlight())

	firstWord := hlk.Word(p.WordOrder.Uint16(hlk.Unwrap(first, hlk.DownlinkHeader, hlk.DownlinkFooter)[:2]))
	require.True(t, ch.Deliver(ackFrame(p, firstWord, 0x00, 0x00)))

	second := <-writes
	secondWord := hlk.Word(p.WordOrder.Uint16(hlk.Unwrap(second, hlk.DownlinkHeader, hlk.DownlinkFooter)[:2]))
	assert.NotEqual(t, firstWord, secondWord)
	require.True(t, ch.Deliver(ackFrame(p, secondWord, 0x00, 0x00)))

	wg.Wait()
	assert.NoError(t, results[0])
	assert.NoError(t, results[1])
	assert.False(t, ch.InFlight())
}

func TestCommandChannelLockHonoursContext(t *testing.T) {
	p := hlk.LD2410()
	ch := NewCommandChannel(p, p, (&frameRecorder{}).write, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ch.Exchange(context.Background(), hlk.WordReadParams, nil, true)
	}()
	require.Eventually(t, ch.Pending, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Exchange(ctx, hlk.WordReadFirmware, nil, true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ch.Cancel(ErrDisconnecting)
	<-done
}
