// Package serial 通过 UART 直连雷达模块，帧格式与 BLE 透传一致
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	goserial "github.com/albenik/go-serial/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/link"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// DefaultBaudRate 出厂波特率
const DefaultBaudRate = 256000

// Port 串口的最小读写接口，便于测试替换
type Port interface {
	io.ReadWriteCloser
}

// Opener 打开串口
type Opener func(name string, baud int) (Port, error)

// OpenPort 使用 go-serial 打开 8N1 串口
func OpenPort(name string, baud int) (Port, error) {
	p, err := goserial.Open(name,
		goserial.WithBaudrate(baud),
		goserial.WithDataBits(8),
		goserial.WithParity(goserial.NoParity),
		goserial.WithStopBits(goserial.OneStopBit),
	)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return p, nil
}

// Link 一个串口对应一个设备
type Link struct {
	port string
	baud int
	open Opener
	log  *zap.Logger
}

func New(port string, baud int, log *zap.Logger) *Link {
	return NewWithOpener(port, baud, OpenPort, log)
}

func NewWithOpener(port string, baud int, open Opener, log *zap.Logger) *Link {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{port: port, baud: baud, open: open, log: log}
}

var _ link.Link = (*Link)(nil)

func (l *Link) Connect(ctx context.Context, address string, onClose func(error)) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.open(l.port, l.baud)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		port:    p,
		dec:     hlk.NewStreamDecoder(),
		log:     l.log.With(zap.String("address", address), zap.String("port", l.port)),
		onClose: onClose,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	c.log.Info("serial connected", zap.Int("baud", l.baud))
	return c, nil
}

// Conn 串口连接
type Conn struct {
	port Port
	dec  *hlk.StreamDecoder
	log  *zap.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	fn      func([]byte)

	closing   atomic.Bool
	closeOnce sync.Once
	onClose   func(error)
	done      chan struct{}
}

var _ link.Conn = (*Conn)(nil)

func (c *Conn) readLoop() {
	defer close(c.done)
	buf := make([]byte, 512)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			for _, frame := range c.dec.Feed(buf[:n]) {
				c.mu.Lock()
				fn := c.fn
				c.mu.Unlock()
				if fn != nil {
					fn(frame)
				}
			}
		}
		if err != nil {
			if c.closing.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = link.ErrClosed
			}
			c.log.Warn("serial read failed", zap.Error(err))
			c.finish(err)
			return
		}
		if n == 0 {
			// 非阻塞或超时返回
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (c *Conn) Write(ctx context.Context, char uuid.UUID, data []byte, withResponse bool) error {
	if char != link.WriteCharacteristic {
		return fmt.Errorf("%w: %s", link.ErrUnknownChar, char)
	}
	if c.closing.Load() {
		return link.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.port.Write(data); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, char uuid.UUID, fn func([]byte)) error {
	if char != link.NotifyCharacteristic {
		return fmt.Errorf("%w: %s", link.ErrUnknownChar, char)
	}
	c.mu.Lock()
	c.fn = fn
	c.mu.Unlock()
	return nil
}

func (c *Conn) Disconnect(ctx context.Context) error {
	if c.closing.Swap(true) {
		return nil
	}
	err := c.port.Close()
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	c.finish(nil)
	return err
}

func (c *Conn) finish(cause error) {
	c.closing.Store(true)
	c.closeOnce.Do(func() {
		if cause != nil {
			_ = c.port.Close()
		}
		if c.onClose != nil {
			c.onClose(cause)
		}
	})
}
