// Package registry 进程内设备索引与监管协程管理
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/link"
)

var (
	ErrNotFound  = errors.New("registry: device not found")
	ErrDuplicate = errors.New("registry: device already registered")
)

// Registry 按地址索引设备；设备之间互不共享状态
type Registry struct {
	log *zap.Logger

	mu      sync.RWMutex
	devices map[string]*driver.Device
	cancel  map[string]context.CancelFunc
	wg      sync.WaitGroup
	ctx     context.Context
}

func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log, devices: make(map[string]*driver.Device), cancel: make(map[string]context.CancelFunc)}
}

// Add 登记设备；Start 之后加入的设备立即启动监管
func (r *Registry) Add(d *driver.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.Address()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, d.Address())
	}
	r.devices[d.Address()] = d
	if r.ctx != nil {
		r.startLocked(d)
	}
	return nil
}

// Remove 停止监管并移除设备
func (r *Registry) Remove(address string) error {
	address = link.NormalizeAddress(address)
	r.mu.Lock()
	_, ok := r.devices[address]
	cancel := r.cancel[address]
	delete(r.devices, address)
	delete(r.cancel, address)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Get 按地址查找，大小写不敏感
func (r *Registry) Get(address string) (*driver.Device, error) {
	address = link.NormalizeAddress(address)
	r.mu.RLock()
	d, ok := r.devices[address]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return d, nil
}

// List 按地址排序
func (r *Registry) List() []*driver.Device {
	r.mu.RLock()
	out := make([]*driver.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Start 为每台设备启动监管协程
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		return
	}
	r.ctx = ctx
	for _, d := range r.devices {
		r.startLocked(d)
	}
}

func (r *Registry) startLocked(d *driver.Device) {
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancel[d.Address()] = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("device supervisor panic", zap.String("device", d.Address()), zap.Any("panic", p), zap.Stack("stack"))
			}
		}()
		if err := d.Run(ctx); err != nil {
			r.log.Warn("device supervisor stopped", zap.String("device", d.Address()), zap.Error(err))
		}
	}()
}

// Stop 停止全部监管协程并等待设备断开
func (r *Registry) Stop() {
	r.mu.Lock()
	for _, cancel := range r.cancel {
		cancel()
	}
	r.cancel = make(map[string]context.CancelFunc)
	r.mu.Unlock()
	r.wg.Wait()
}

// ConnectedCount 当前已连接的设备数
func (r *Registry) ConnectedCount() int {
	n := 0
	for _, d := range r.List() {
		if d.State() == driver.StateConnected {
			n++
		}
	}
	return n
}
