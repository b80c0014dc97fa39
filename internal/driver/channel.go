package driver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// DefaultCommandTimeout 等待应答的默认时长
const DefaultCommandTimeout = 5 * time.Second

// Writer 把一帧写到当前连接
type Writer func(ctx context.Context, frame []byte) error

type result struct {
	resp []byte
	err  error
}

// pending 唯一的待应答槽位，只能被结算一次
type pending struct {
	word     hlk.Word
	done     chan result
	resolved atomic.Bool
}

func (p *pending) resolve(r result) bool {
	if !p.resolved.CompareAndSwap(false, true) {
		return false
	}
	p.done <- r
	return true
}

// CommandChannel 串行化命令：同一时间最多一个命令在等应答
type CommandChannel struct {
	codec     hlk.FrameCodec
	validator hlk.ResponseValidator
	write     Writer
	timeout   time.Duration

	lock     chan struct{}
	mu       sync.Mutex
	cur      *pending
	inflight atomic.Int32
}

func NewCommandChannel(codec hlk.FrameCodec, validator hlk.ResponseValidator, write Writer, timeout time.Duration) *CommandChannel {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &CommandChannel{
		codec:     codec,
		validator: validator,
		write:     write,
		timeout:   timeout,
		lock:      make(chan struct{}, 1),
	}
}

// Exchange 发送命令；wait 为 true 时等待应答并返回状态码起始的结果。
// 槽位在写入前登记，应答先于写入返回也不会丢失。
func (c *CommandChannel) Exchange(ctx context.Context, word hlk.Word, value []byte, wait bool) ([]byte, error) {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	select {
	case c.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.lock }()

	frame := c.codec.EncodeCommand(word, value)
	if !wait {
		return nil, c.writeFrame(ctx, frame)
	}

	p := &pending{word: word, done: make(chan result, 1)}
	c.mu.Lock()
	c.cur = p
	c.mu.Unlock()
	defer c.clear(p)

	if err := c.writeFrame(ctx, frame); err != nil {
		p.resolve(result{err: err})
		r := <-p.done
		return r.resp, r.err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-p.done:
		return r.resp, r.err
	case <-timer.C:
		p.resolve(result{err: ErrTimeout})
	case <-ctx.Done():
		p.resolve(result{err: ctx.Err()})
	}
	// 超时与应答竞争时以先结算者为准
	r := <-p.done
	return r.resp, r.err
}

func (c *CommandChannel) writeFrame(ctx context.Context, frame []byte) error {
	err := c.write(ctx, frame)
	if err == nil || errors.Is(err, ErrNotConnected) {
		return err
	}
	return &TransportError{Op: "write", Err: err}
}

// Deliver 投递一条下行应答，没有待应答命令时返回 false
func (c *CommandChannel) Deliver(buf []byte) bool {
	c.mu.Lock()
	p := c.cur
	c.cur = nil
	c.mu.Unlock()
	if p == nil {
		return false
	}
	resp, err := c.validator.ValidateResponse(p.word, buf)
	return p.resolve(result{resp: resp, err: err})
}

// Cancel 以 err 结束当前待应答命令
func (c *CommandChannel) Cancel(err error) {
	c.mu.Lock()
	p := c.cur
	c.cur = nil
	c.mu.Unlock()
	if p != nil {
		p.resolve(result{err: err})
	}
}

// InFlight 是否有命令在执行或排队
func (c *CommandChannel) InFlight() bool {
	return c.inflight.Load() > 0
}

// Pending 是否有命令在等应答
func (c *CommandChannel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

func (c *CommandChannel) clear(p *pending) {
	c.mu.Lock()
	if c.cur == p {
		c.cur = nil
	}
	c.mu.Unlock()
}
