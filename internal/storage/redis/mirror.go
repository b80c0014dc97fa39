package redis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SnapshotSource 可镜像的设备
type SnapshotSource interface {
	Address() string
	Subscribe(fn func()) func()
	Snapshot() map[string]any
}

type watched struct {
	src   SnapshotSource
	model string
}

// snapshotWriter SnapshotStore 的写入能力
type snapshotWriter interface {
	Save(ctx context.Context, address, model string, snapshot map[string]any) error
}

// Mirror 把设备快照变更合并后定期写入 Redis
type Mirror struct {
	store    snapshotWriter
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	sources map[string]watched
	dirty   map[string]struct{}
	unsubs  []func()
	wake    chan struct{}
}

func NewMirror(store snapshotWriter, interval time.Duration, log *zap.Logger) *Mirror {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mirror{
		store:    store,
		interval: interval,
		log:      log,
		sources:  make(map[string]watched),
		dirty:    make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Watch 订阅设备快照变更；首次调用即标记为待写入
func (m *Mirror) Watch(src SnapshotSource, model string) {
	address := src.Address()
	m.mu.Lock()
	m.sources[address] = watched{src: src, model: model}
	m.mu.Unlock()

	unsub := src.Subscribe(func() { m.markDirty(address) })
	m.mu.Lock()
	m.unsubs = append(m.unsubs, unsub)
	m.mu.Unlock()
	m.markDirty(address)
}

func (m *Mirror) markDirty(address string) {
	m.mu.Lock()
	m.dirty[address] = struct{}{}
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run 写入循环，ctx 结束时最后刷新一次
func (m *Mirror) Run(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		unsubs := m.unsubs
		m.unsubs = nil
		m.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		fctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		m.Flush(fctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		}
		// 合并窗口内的连续变更
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
		m.Flush(ctx)
	}
}

// Flush 写入全部待写入设备
func (m *Mirror) Flush(ctx context.Context) {
	m.mu.Lock()
	batch := make([]watched, 0, len(m.dirty))
	for address := range m.dirty {
		if w, ok := m.sources[address]; ok {
			batch = append(batch, w)
		}
	}
	m.dirty = make(map[string]struct{})
	m.mu.Unlock()

	for _, w := range batch {
		address := w.src.Address()
		if err := m.store.Save(ctx, address, w.model, w.src.Snapshot()); err != nil {
			m.log.Warn("mirror snapshot failed", zap.String("device", address), zap.Error(err))
			m.mu.Lock()
			m.dirty[address] = struct{}{}
			m.mu.Unlock()
		}
	}
}
