package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/hlk-radar/internal/devicestate"
	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
	"github.com/taoyao-code/hlk-radar/internal/storage/pg"
)

type memSink struct {
	mu      sync.Mutex
	cmds    []pg.CommandLog
	links   []pg.LinkEvent
	touched map[string]time.Time
	infos   map[string][2]string
	err     error
}

func newMemSink() *memSink {
	return &memSink{touched: map[string]time.Time{}, infos: map[string][2]string{}}
}

func (s *memSink) InsertCommandLogs(_ context.Context, logs []pg.CommandLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, logs...)
	return nil
}

func (s *memSink) InsertLinkEvents(_ context.Context, events []pg.LinkEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, events...)
	return nil
}

func (s *memSink) TouchRadar(_ context.Context, address string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[address] = t
	return nil
}

func (s *memSink) UpdateRadarInfo(_ context.Context, address, firmware, mac string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[address] = [2]string{firmware, mac}
	return nil
}

func (s *memSink) commandCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cmds)
}

const addr = "AA:BB:CC:DD:EE:FF"

func TestRecorderFlushOnShutdown(t *testing.T) {
	sink := newMemSink()
	r := New(sink, nil)
	r.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	reqID := uuid.New()
	r.CommandDone(addr, hlk.ModelLD2410, hlk.OpReadFirmware, 30*time.Millisecond, nil)
	r.CommandDone(addr, hlk.ModelLD2410, hlk.OpReadMAC, time.Second, driver.ErrTimeout)
	r.Command(addr, reqID, "set_sensitivity", 80*time.Millisecond, nil)
	r.LinkStateChanged(addr, driver.StateConnecting, driver.StateConnected)
	r.Info(addr, "V2.04.23022511", "")

	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.cmds, 3)
	assert.Equal(t, "read_firmware", sink.cmds[0].Op)
	assert.Equal(t, "ok", sink.cmds[0].Result)
	assert.Equal(t, "timeout", sink.cmds[1].Result)
	assert.NotEmpty(t, sink.cmds[1].Error)
	assert.Equal(t, reqID, sink.cmds[2].RequestID)

	require.Len(t, sink.links, 1)
	assert.Equal(t, "connected", sink.links[0].To)
	assert.Contains(t, sink.touched, addr)
	assert.Equal(t, [2]string{"V2.04.23022511", ""}, sink.infos[addr])
}

func TestRecorderBatchSize(t *testing.T) {
	sink := newMemSink()
	r := New(sink, nil)
	r.Interval = time.Hour
	r.BatchSize = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Command(addr, uuid.Nil, "refresh", time.Millisecond, nil)
	r.Command(addr, uuid.Nil, "refresh", time.Millisecond, nil)
	require.Eventually(t, func() bool { return sink.commandCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	r := New(newMemSink(), nil)
	for i := 0; i < cap(r.commands)+3; i++ {
		r.Command(addr, uuid.Nil, "refresh", 0, nil)
	}
	assert.Equal(t, int64(3), r.Dropped())
}

func TestRecorderSinkErrorIsLogged(t *testing.T) {
	sink := newMemSink()
	sink.err = errors.New("db down")
	r := New(sink, nil)
	r.flush(context.Background(), []pg.CommandLog{{Address: addr, Op: "reboot"}}, nil)
	assert.Equal(t, 0, sink.commandCount())
}

type storeSource struct {
	state *devicestate.Store
}

func (s storeSource) Address() string            { return addr }
func (s storeSource) Subscribe(fn func()) func() { return s.state.Subscribe(fn) }
func (s storeSource) Snapshot() map[string]any   { return s.state.Snapshot() }

func TestRecorderWatch(t *testing.T) {
	r := New(newMemSink(), nil)
	src := storeSource{state: devicestate.New()}
	stop := r.Watch(src)
	defer stop()

	src.state.Merge(map[string]any{"moving_distance": 100})
	r.mu.Lock()
	assert.Empty(t, r.infos)
	r.mu.Unlock()

	src.state.Merge(map[string]any{"firmware_version": "V1.10.24041810", "mac_address": "11:22:33:44:55:66"})
	r.mu.Lock()
	assert.Equal(t, info{firmware: "V1.10.24041810", mac: "11:22:33:44:55:66"}, r.infos[addr])
	r.mu.Unlock()
}
