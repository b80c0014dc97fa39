package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// deviceLimiter 按设备地址限制写命令频率，rate <= 0 时不限制
type deviceLimiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func newDeviceLimiter(perSecond float64, burst int) *deviceLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &deviceLimiter{limit: rate.Limit(perSecond), burst: burst, m: make(map[string]*rate.Limiter)}
}

func (l *deviceLimiter) Allow(address string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.m[address]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.m[address] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
