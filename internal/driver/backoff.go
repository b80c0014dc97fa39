package driver

import (
	"sync"
	"time"
)

const (
	defaultReconnectBase = 1 * time.Second
	defaultReconnectMax  = 10 * time.Second
	defaultRetryCount    = 3
	defaultCooldown      = 30 * time.Second
)

// Backoff 重连等待：从 base 起翻倍到 max，连续失败超过 retries 次后
// 等待一次 cooldown 并重新开始快速重试
type Backoff struct {
	mu       sync.Mutex
	base     time.Duration
	max      time.Duration
	cooldown time.Duration
	retries  int

	next     time.Duration
	failures int
}

func NewBackoff(base, max, cooldown time.Duration, retries int) *Backoff {
	if base <= 0 {
		base = defaultReconnectBase
	}
	if max < base {
		max = defaultReconnectMax
		if max < base {
			max = base
		}
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if retries <= 0 {
		retries = defaultRetryCount
	}
	return &Backoff{base: base, max: max, cooldown: cooldown, retries: retries, next: base}
}

// Failure 记录一次失败，返回下次尝试前的等待时长
func (b *Backoff) Failure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures > b.retries {
		b.failures = 0
		b.next = b.base
		return b.cooldown
	}
	wait := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return wait
}

// Success 连接成功，重置退避
func (b *Backoff) Success() {
	b.mu.Lock()
	b.failures = 0
	b.next = b.base
	b.mu.Unlock()
}

// Failures 当前连续失败次数
func (b *Backoff) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
