// Package driver HLK 雷达设备驱动：连接监管、命令信道、通知分发与设备操作
package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/hlk-radar/internal/devicestate"
	"github.com/taoyao-code/hlk-radar/internal/link"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// State 连接状态
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

const (
	defaultIdleDisconnect         = 8500 * time.Millisecond
	defaultConnectInterval        = 30 * time.Second
	defaultCommandRetries         = 1
	defaultMaxConsecutiveTimeouts = 3
	defaultAvailabilityGrace      = 60 * time.Second
	ld2412PostConnectDelay        = 500 * time.Millisecond
)

// Config 单个设备的驱动参数，零值取默认
type Config struct {
	Address  string
	Name     string
	Password string
	// AutoReconnect 为 nil 时沿用型号默认
	AutoReconnect *bool

	CommandTimeout time.Duration
	// IdleDisconnect 空闲断开时长，负数关闭
	IdleDisconnect  time.Duration
	ReconnectBase   time.Duration
	ReconnectMax    time.Duration
	RetryCount      int
	Cooldown        time.Duration
	ConnectInterval time.Duration
	// CommandRetries 链路失败时换新连接重试的次数，负数不重试
	CommandRetries         int
	MaxConsecutiveTimeouts int
	AvailabilityGrace      time.Duration
	// PostConnectDelay 连接后等待设备就绪，负数不等待
	PostConnectDelay time.Duration
}

func (c Config) withDefaults(p *hlk.Profile) Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.IdleDisconnect == 0 {
		c.IdleDisconnect = defaultIdleDisconnect
	}
	if c.ConnectInterval <= 0 {
		c.ConnectInterval = defaultConnectInterval
	}
	if c.CommandRetries == 0 {
		c.CommandRetries = defaultCommandRetries
	}
	if c.CommandRetries < 0 {
		c.CommandRetries = 0
	}
	if c.MaxConsecutiveTimeouts <= 0 {
		c.MaxConsecutiveTimeouts = defaultMaxConsecutiveTimeouts
	}
	if c.AvailabilityGrace <= 0 {
		c.AvailabilityGrace = defaultAvailabilityGrace
	}
	if c.PostConnectDelay == 0 && p.Model == hlk.ModelLD2412 {
		c.PostConnectDelay = ld2412PostConnectDelay
	}
	if c.Name == "" {
		c.Name = p.DisplayName
	}
	return c
}

// Device 一台雷达。命令在调用方 goroutine 中执行，通知在链路 goroutine 中分发。
type Device struct {
	cfg           Config
	profile       *hlk.Profile
	link          link.Link
	log           *zap.Logger
	obs           Observer
	state         *devicestate.Store
	ch            *CommandChannel
	backoff       *Backoff
	handshake     Handshake
	autoReconnect bool

	connectMu sync.Mutex

	mu            sync.Mutex
	st            State
	conn          link.Conn
	gen           uint64
	expectedClose bool
	idle          *time.Timer
	idleGen       uint64
	lastActivity  time.Time
	password      string
	// life 当前监管周期，Run 返回时取消
	life          context.Context

	timeouts    atomic.Int32
	ops         atomic.Int32
	calibrating atomic.Bool
	kick        chan struct{}
	logLimiter  *rate.Limiter
}

type Option func(*Device)

func WithLogger(log *zap.Logger) Option {
	return func(d *Device) {
		if log != nil {
			d.log = log
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(d *Device) {
		if obs != nil {
			d.obs = obs
		}
	}
}

// WithHandshake 替换型号默认的连接初始化流程
func WithHandshake(h Handshake) Option {
	return func(d *Device) {
		if h != nil {
			d.handshake = h
		}
	}
}

// WithStore 使用已有快照（例如从持久化恢复）
func WithStore(s *devicestate.Store) Option {
	return func(d *Device) {
		if s != nil {
			d.state = s
		}
	}
}

func New(cfg Config, profile *hlk.Profile, l link.Link, opts ...Option) *Device {
	cfg.Address = link.NormalizeAddress(cfg.Address)
	cfg = cfg.withDefaults(profile)

	d := &Device{
		cfg:        cfg,
		profile:    profile,
		link:       l,
		log:        zap.NewNop(),
		obs:        NopObserver{},
		state:      devicestate.New(),
		backoff:    NewBackoff(cfg.ReconnectBase, cfg.ReconnectMax, cfg.Cooldown, cfg.RetryCount),
		handshake:  HandshakeFor(profile.Model),
		kick:       make(chan struct{}, 1),
		logLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		password:   cfg.Password,
	}
	d.autoReconnect = profile.AutoReconnect
	if cfg.AutoReconnect != nil {
		d.autoReconnect = *cfg.AutoReconnect
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(zap.String("device", cfg.Address), zap.String("model", string(profile.Model)))
	d.ch = NewCommandChannel(profile, profile, d.writeFrame, cfg.CommandTimeout)
	return d
}

func (d *Device) Address() string       { return d.cfg.Address }
func (d *Device) Name() string          { return d.cfg.Name }
func (d *Device) Model() hlk.Model      { return d.profile.Model }
func (d *Device) Profile() *hlk.Profile { return d.profile }

// Store 设备快照
func (d *Device) Store() *devicestate.Store { return d.state }

// Snapshot 快照副本
func (d *Device) Snapshot() map[string]any { return d.state.Snapshot() }

// Subscribe 快照变化回调，返回取消函数
func (d *Device) Subscribe(fn func()) func() { return d.state.Subscribe(fn) }

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st
}

// LastSeen 最近一次收到通知或命令成功的时间
func (d *Device) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActivity
}

// Available 已连接，或断开后仍在宽限期内
func (d *Device) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st == StateConnected {
		return true
	}
	return !d.lastActivity.IsZero() && time.Since(d.lastActivity) < d.cfg.AvailabilityGrace
}

func (d *Device) writeFrame(ctx context.Context, frame []byte) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, link.WriteCharacteristic, frame, true)
}

func (d *Device) changed(from, to State) {
	if from == to {
		return
	}
	d.log.Debug("link state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	d.obs.LinkStateChanged(d.cfg.Address, from, to)
}

// touch 记录活动并重置空闲计时
func (d *Device) touch() {
	d.mu.Lock()
	d.lastActivity = time.Now()
	d.mu.Unlock()
	d.resetIdle()
}

// busy 有命令在执行或排队，或复合操作未结束
func (d *Device) busy() bool {
	return d.ch.InFlight() || d.ops.Load() > 0
}
