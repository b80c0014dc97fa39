// Package bluez 通过 BlueZ D-Bus 接口实现 BLE GATT 链路
package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/link"
)

const (
	bluezBus       = "org.bluez"
	bluezDevice1   = "org.bluez.Device1"
	bluezGattChar  = "org.bluez.GattCharacteristic1"
	dbusProperties = "org.freedesktop.DBus.Properties"
	dbusObjManager = "org.freedesktop.DBus.ObjectManager"

	propertiesChanged = dbusProperties + ".PropertiesChanged"

	defaultConnectTimeout = 10 * time.Second
	defaultResolveTimeout = 15 * time.Second
	pollInterval          = 200 * time.Millisecond
)

// Link BlueZ 链路，多个设备共享系统总线
type Link struct {
	adapter        string
	log            *zap.Logger
	connectTimeout time.Duration
	resolveTimeout time.Duration
}

// Option 链路选项
type Option func(*Link)

// WithTimeouts 连接与服务解析超时
func WithTimeouts(connect, resolve time.Duration) Option {
	return func(l *Link) {
		if connect > 0 {
			l.connectTimeout = connect
		}
		if resolve > 0 {
			l.resolveTimeout = resolve
		}
	}
}

// New adapter 为空时使用 hci0
func New(adapter string, log *zap.Logger, opts ...Option) *Link {
	if adapter == "" {
		adapter = "hci0"
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Link{
		adapter:        adapter,
		log:            log,
		connectTimeout: defaultConnectTimeout,
		resolveTimeout: defaultResolveTimeout,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

var _ link.Link = (*Link)(nil)

func (l *Link) Connect(ctx context.Context, address string, onClose func(error)) (link.Conn, error) {
	if err := link.ValidateAddress(address); err != nil {
		return nil, err
	}
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	c := &Conn{
		bus:        bus,
		log:        l.log.With(zap.String("address", address)),
		address:    address,
		devicePath: devicePath(l.adapter, address),
		handlers:   make(map[dbus.ObjectPath]func([]byte)),
		sigCh:      make(chan *dbus.Signal, 64),
		stopCh:     make(chan struct{}),
		onClose:    onClose,
	}

	if err := c.connectDevice(ctx, l.connectTimeout); err != nil {
		return nil, err
	}
	if err := c.waitProperty(ctx, "ServicesResolved", l.resolveTimeout); err != nil {
		c.disconnectDevice()
		return nil, fmt.Errorf("service discovery: %w", err)
	}
	if err := c.discoverCharacteristics(); err != nil {
		c.disconnectDevice()
		return nil, err
	}
	if err := c.watch(); err != nil {
		c.disconnectDevice()
		return nil, err
	}
	c.log.Info("ble connected", zap.String("path", string(c.devicePath)))
	return c, nil
}

// Conn 单个 BlueZ 设备连接
type Conn struct {
	bus        *dbus.Conn
	log        *zap.Logger
	address    string
	devicePath dbus.ObjectPath

	mu        sync.Mutex
	chars     map[uuid.UUID]dbus.ObjectPath
	handlers  map[dbus.ObjectPath]func([]byte)
	matches   []string
	notifying []dbus.ObjectPath

	sigCh     chan *dbus.Signal
	stopCh    chan struct{}
	closeOnce sync.Once
	onClose   func(error)
}

var (
	_ link.Conn                   = (*Conn)(nil)
	_ link.ManufacturerDataReader = (*Conn)(nil)
)

func (c *Conn) connectDevice(ctx context.Context, timeout time.Duration) error {
	connected, err := property[bool](c.bus, c.devicePath, bluezDevice1, "Connected")
	if err == nil && connected {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	call := c.bus.Object(bluezBus, c.devicePath).CallWithContext(connectCtx, bluezDevice1+".Connect", 0)
	if call.Err != nil {
		return fmt.Errorf("bluez connect %s: %w", c.address, call.Err)
	}
	return c.waitProperty(ctx, "Connected", timeout)
}

func (c *Conn) disconnectDevice() {
	c.bus.Object(bluezBus, c.devicePath).Call(bluezDevice1+".Disconnect", 0)
}

// waitProperty 轮询 Device1 的布尔属性直到为 true
func (c *Conn) waitProperty(ctx context.Context, name string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if ok, err := property[bool](c.bus, c.devicePath, bluezDevice1, name); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%s not set after %v", name, timeout)
		case <-ticker.C:
		}
	}
}

func (c *Conn) discoverCharacteristics() error {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := c.bus.Object(bluezBus, "/").Call(dbusObjManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return fmt.Errorf("GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return fmt.Errorf("parse managed objects: %w", err)
	}

	prefix := string(c.devicePath) + "/"
	chars := make(map[uuid.UUID]dbus.ObjectPath)
	for path, ifaces := range objects {
		props, ok := ifaces[bluezGattChar]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		v, ok := props["UUID"]
		if !ok {
			continue
		}
		s, ok := v.Value().(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		chars[id] = path
	}
	for _, want := range []uuid.UUID{link.NotifyCharacteristic, link.WriteCharacteristic} {
		if _, ok := chars[want]; !ok {
			return fmt.Errorf("%w: %s not found on %s", link.ErrUnknownChar, want, c.address)
		}
	}

	c.mu.Lock()
	c.chars = chars
	c.mu.Unlock()
	return nil
}

func (c *Conn) addMatch(path dbus.ObjectPath) error {
	rule := fmt.Sprintf("type='signal',sender='%s',interface='%s',member='PropertiesChanged',path='%s'",
		bluezBus, dbusProperties, path)
	if call := c.bus.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return fmt.Errorf("add signal match: %w", call.Err)
	}
	c.mu.Lock()
	c.matches = append(c.matches, rule)
	c.mu.Unlock()
	return nil
}

// watch 监听设备断开与特征值通知
func (c *Conn) watch() error {
	if err := c.addMatch(c.devicePath); err != nil {
		return err
	}
	c.bus.Signal(c.sigCh)
	go c.loop()
	return nil
}

func (c *Conn) loop() {
	for {
		select {
		case <-c.stopCh:
			return
		case sig, ok := <-c.sigCh:
			if !ok {
				c.finish(link.ErrClosed)
				return
			}
			c.handleSignal(sig)
		}
	}
}

func (c *Conn) handleSignal(sig *dbus.Signal) {
	if sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	if sig.Path == c.devicePath && iface == bluezDevice1 {
		if v, ok := changed["Connected"]; ok {
			if connected, _ := v.Value().(bool); !connected {
				c.log.Info("ble link lost")
				go c.finish(link.ErrClosed)
			}
		}
		return
	}

	c.mu.Lock()
	fn := c.handlers[sig.Path]
	c.mu.Unlock()
	if fn == nil || iface != bluezGattChar {
		return
	}
	if v, ok := changed["Value"]; ok {
		if data, ok := v.Value().([]byte); ok {
			fn(data)
		}
	}
}

func (c *Conn) charPath(char uuid.UUID) (dbus.ObjectPath, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.chars[char]
	if !ok {
		return "", fmt.Errorf("%w: %s", link.ErrUnknownChar, char)
	}
	return p, nil
}

func (c *Conn) closed() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Conn) Write(ctx context.Context, char uuid.UUID, data []byte, withResponse bool) error {
	if c.closed() {
		return link.ErrClosed
	}
	path, err := c.charPath(char)
	if err != nil {
		return err
	}
	mode := "command"
	if withResponse {
		mode = "request"
	}
	call := c.bus.Object(bluezBus, path).CallWithContext(ctx, bluezGattChar+".WriteValue", 0, data,
		map[string]dbus.Variant{"type": dbus.MakeVariant(mode)})
	if call.Err != nil {
		return fmt.Errorf("gatt write %s: %w", char, call.Err)
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, char uuid.UUID, fn func([]byte)) error {
	if c.closed() {
		return link.ErrClosed
	}
	path, err := c.charPath(char)
	if err != nil {
		return err
	}
	if err := c.addMatch(path); err != nil {
		return err
	}
	c.mu.Lock()
	c.handlers[path] = fn
	c.mu.Unlock()

	if call := c.bus.Object(bluezBus, path).CallWithContext(ctx, bluezGattChar+".StartNotify", 0); call.Err != nil {
		return fmt.Errorf("StartNotify %s: %w", char, call.Err)
	}
	c.mu.Lock()
	c.notifying = append(c.notifying, path)
	c.mu.Unlock()
	return nil
}

func (c *Conn) Disconnect(ctx context.Context) error {
	if c.closed() {
		return nil
	}
	c.mu.Lock()
	notifying := append([]dbus.ObjectPath(nil), c.notifying...)
	c.mu.Unlock()
	for _, p := range notifying {
		c.bus.Object(bluezBus, p).CallWithContext(ctx, bluezGattChar+".StopNotify", 0)
	}
	var err error
	if call := c.bus.Object(bluezBus, c.devicePath).CallWithContext(ctx, bluezDevice1+".Disconnect", 0); call.Err != nil {
		err = fmt.Errorf("bluez disconnect %s: %w", c.address, call.Err)
	}
	c.finish(nil)
	return err
}

// finish 释放信号订阅；系统总线为进程共享，不关闭
func (c *Conn) finish(cause error) {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.bus.RemoveSignal(c.sigCh)

		c.mu.Lock()
		matches := c.matches
		c.matches = nil
		c.handlers = make(map[dbus.ObjectPath]func([]byte))
		c.mu.Unlock()
		for _, rule := range matches {
			c.bus.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, rule)
		}
		if c.onClose != nil {
			c.onClose(cause)
		}
	})
}

// ManufacturerData 读取 BlueZ 缓存的广播厂商数据
func (c *Conn) ManufacturerData(ctx context.Context) (map[uint16][]byte, error) {
	raw, err := property[map[uint16]dbus.Variant](c.bus, c.devicePath, bluezDevice1, "ManufacturerData")
	if err != nil {
		return nil, err
	}
	out := make(map[uint16][]byte, len(raw))
	for id, v := range raw {
		if b, ok := v.Value().([]byte); ok {
			out[id] = b
		}
	}
	return out, nil
}

func devicePath(adapter, address string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, strings.ReplaceAll(strings.ToUpper(address), ":", "_")))
}

func property[T any](bus *dbus.Conn, path dbus.ObjectPath, iface, name string) (T, error) {
	var zero T
	v, err := bus.Object(bluezBus, path).GetProperty(iface + "." + name)
	if err != nil {
		return zero, err
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s.%s has unexpected type %T", iface, name, v.Value())
	}
	return val, nil
}
