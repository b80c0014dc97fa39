package session

import (
	"sync"
	"time"
)

// Manager 内存会话管理：单实例部署时记录设备信号并判断是否在线
type Manager struct {
	mu       sync.RWMutex
	records  map[string]*record // address -> record
	timeout  time.Duration
	serverID string
}

func New(timeout time.Duration, serverID string) *Manager {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Manager{records: make(map[string]*record), timeout: timeout, serverID: serverID}
}

func (m *Manager) update(address string, fn func(r *record)) {
	m.mu.Lock()
	r, ok := m.records[address]
	if !ok {
		r = &record{Address: address}
		m.records[address] = r
	}
	fn(r)
	m.mu.Unlock()
}

// OnActivity 更新设备最近活动时间
func (m *Manager) OnActivity(address string, t time.Time) {
	m.update(address, func(r *record) { r.LastSeen = t })
}

// OnLinkUp 链路建立也视为一次活动
func (m *Manager) OnLinkUp(address string, t time.Time) {
	m.update(address, func(r *record) {
		r.LastLinkUp = t
		r.LastSeen = t
		r.ServerID = m.serverID
	})
}

// OnLinkDown 记录断链并释放持有
func (m *Manager) OnLinkDown(address string, t time.Time) {
	m.update(address, func(r *record) {
		r.LastLinkDown = t
		r.ServerID = ""
	})
}

// OnCommandTimeout 记录命令超时
func (m *Manager) OnCommandTimeout(address string, t time.Time) {
	m.update(address, func(r *record) { r.LastTimeout = t })
}

// Owner 返回持有链路的实例
func (m *Manager) Owner(address string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[address]
	if !ok || r.ServerID == "" {
		return "", false
	}
	return r.ServerID, true
}

// IsOnline 判断设备是否在线
func (m *Manager) IsOnline(address string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[address]
	return ok && r.online(now, m.timeout)
}

// IsOnlineWeighted 按加权策略判断设备是否在线
func (m *Manager) IsOnlineWeighted(address string, now time.Time, p WeightedPolicy) bool {
	if !p.Enabled {
		return m.IsOnline(address, now)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[address]
	return ok && r.score(now, p) >= p.Threshold
}

// OnlineCount 返回当前在线设备数量
func (m *Manager) OnlineCount(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.records {
		if r.online(now, m.timeout) {
			count++
		}
	}
	return count
}

// OnlineCountWeighted 返回按加权策略计算的在线设备数量
func (m *Manager) OnlineCountWeighted(now time.Time, p WeightedPolicy) int {
	if !p.Enabled {
		return m.OnlineCount(now)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.records {
		if r.score(now, p) >= p.Threshold {
			count++
		}
	}
	return count
}
