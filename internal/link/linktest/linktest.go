// Package linktest 内存中的 link 实现，供驱动与 API 测试使用
package linktest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/taoyao-code/hlk-radar/internal/link"
)

// ErrConnectFailed 模拟连接失败
var ErrConnectFailed = errors.New("linktest: connect failed")

// Responder 收到写入后的自动应答，返回 nil 表示不应答
type Responder func(frame []byte) [][]byte

// Link 可编程的假链路
type Link struct {
	mu        sync.Mutex
	connects  int
	failures  int
	responder Responder
	mfr       map[uint16][]byte
	conns     []*Conn
	connected chan *Conn
}

func New() *Link {
	return &Link{connected: make(chan *Conn, 16)}
}

// FailNext 让接下来 n 次连接失败
func (l *Link) FailNext(n int) {
	l.mu.Lock()
	l.failures = n
	l.mu.Unlock()
}

// SetResponder 设置后续连接的自动应答
func (l *Link) SetResponder(r Responder) {
	l.mu.Lock()
	l.responder = r
	for _, c := range l.conns {
		c.mu.Lock()
		c.responder = r
		c.mu.Unlock()
	}
	l.mu.Unlock()
}

// SetManufacturerData 广播厂商数据
func (l *Link) SetManufacturerData(m map[uint16][]byte) {
	l.mu.Lock()
	l.mfr = m
	l.mu.Unlock()
}

// Connects 连接尝试次数（包括失败）
func (l *Link) Connects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects
}

// Last 最近一次成功的连接
func (l *Link) Last() *Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.conns) == 0 {
		return nil
	}
	return l.conns[len(l.conns)-1]
}

// Connected 每次成功连接后推送
func (l *Link) Connected() <-chan *Conn { return l.connected }

func (l *Link) Connect(ctx context.Context, address string, onClose func(error)) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.connects++
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, ErrConnectFailed
	}
	c := &Conn{Address: address, responder: l.responder, mfr: l.mfr, onClose: onClose}
	l.conns = append(l.conns, c)
	l.mu.Unlock()

	select {
	case l.connected <- c:
	default:
	}
	return c, nil
}

// Conn 假连接，记录写入并可注入通知
type Conn struct {
	Address string

	mu        sync.Mutex
	writes    [][]byte
	notify    func([]byte)
	responder Responder
	writeErr  error
	mfr       map[uint16][]byte
	closed    bool
	closeOnce sync.Once
	onClose   func(error)
}

var (
	_ link.Conn                   = (*Conn)(nil)
	_ link.ManufacturerDataReader = (*Conn)(nil)
)

// FailWrites 之后的写入返回 err，nil 恢复
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *Conn) Write(ctx context.Context, char uuid.UUID, data []byte, withResponse bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return link.ErrClosed
	}
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	if char != link.WriteCharacteristic {
		c.mu.Unlock()
		return link.ErrUnknownChar
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	responder := c.responder
	c.mu.Unlock()

	if responder != nil {
		for _, reply := range responder(data) {
			c.Notify(reply)
		}
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, char uuid.UUID, fn func([]byte)) error {
	if char != link.NotifyCharacteristic {
		return link.ErrUnknownChar
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return link.ErrClosed
	}
	c.notify = fn
	return nil
}

func (c *Conn) Disconnect(ctx context.Context) error {
	c.close(nil)
	return nil
}

func (c *Conn) ManufacturerData(ctx context.Context) (map[uint16][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mfr, nil
}

// Notify 模拟设备发出一条通知
func (c *Conn) Notify(buf []byte) {
	c.mu.Lock()
	fn := c.notify
	closed := c.closed
	c.mu.Unlock()
	if fn != nil && !closed {
		fn(buf)
	}
}

// Drop 模拟链路意外断开
func (c *Conn) Drop(err error) {
	if err == nil {
		err = link.ErrClosed
	}
	c.close(err)
}

// Closed 连接是否已结束
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Writes 已写入的帧
func (c *Conn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *Conn) close(cause error) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose(cause)
		}
	})
}
