package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisManager Redis版本的会话管理器，多个网关实例共享设备在线状态
type RedisManager struct {
	client    *redis.Client
	serverID  string        // 当前服务器实例ID
	timeout   time.Duration // 活动超时时间
	opTimeout time.Duration
}

// Redis Key设计
const (
	// session:radar:{address} -> record JSON
	keyDevicePrefix = "session:radar:"

	// session:server:{serverID}:devices -> Set[address]
	keyServerDevicesPrefix = "session:server:"
)

// NewRedisManager 创建Redis会话管理器
func NewRedisManager(client *redis.Client, serverID string, timeout time.Duration) *RedisManager {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if serverID == "" {
		serverID = uuid.New().String()
	}
	return &RedisManager{
		client:    client,
		serverID:  serverID,
		timeout:   timeout,
		opTimeout: 500 * time.Millisecond,
	}
}

// ServerID 当前实例ID
func (m *RedisManager) ServerID() string { return m.serverID }

func (m *RedisManager) update(address string, fn func(r *record)) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	data, err := m.getRecord(ctx, address)
	if err != nil {
		data = &record{Address: address}
	}
	fn(data)
	_ = m.setRecord(ctx, address, data)
}

// OnActivity 更新设备最近活动时间
func (m *RedisManager) OnActivity(address string, t time.Time) {
	m.update(address, func(r *record) { r.LastSeen = t })
}

// OnLinkUp 记录链路建立，并加入本实例的设备集合
func (m *RedisManager) OnLinkUp(address string, t time.Time) {
	m.update(address, func(r *record) {
		r.LastLinkUp = t
		r.LastSeen = t
		r.ServerID = m.serverID
	})
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()
	m.client.SAdd(ctx, m.serverDevicesKey(), address)
}

// OnLinkDown 记录断链；只有持有者可以释放持有
func (m *RedisManager) OnLinkDown(address string, t time.Time) {
	m.update(address, func(r *record) {
		r.LastLinkDown = t
		if r.ServerID == m.serverID {
			r.ServerID = ""
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()
	m.client.SRem(ctx, m.serverDevicesKey(), address)
}

// OnCommandTimeout 记录命令超时
func (m *RedisManager) OnCommandTimeout(address string, t time.Time) {
	m.update(address, func(r *record) { r.LastTimeout = t })
}

// Owner 返回持有设备链路的实例
func (m *RedisManager) Owner(address string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()
	data, err := m.getRecord(ctx, address)
	if err != nil || data.ServerID == "" {
		return "", false
	}
	return data.ServerID, true
}

// IsOnline 判断设备是否在线（仅活动时间）
func (m *RedisManager) IsOnline(address string, now time.Time) bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()
	data, err := m.getRecord(ctx, address)
	if err != nil {
		return false
	}
	return data.online(now, m.timeout)
}

// IsOnlineWeighted 按加权策略判断设备是否在线
func (m *RedisManager) IsOnlineWeighted(address string, now time.Time, p WeightedPolicy) bool {
	if !p.Enabled {
		return m.IsOnline(address, now)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()
	data, err := m.getRecord(ctx, address)
	if err != nil {
		return false
	}
	return data.score(now, p) >= p.Threshold
}

// OnlineCount 返回当前在线设备数量（仅活动时间）
func (m *RedisManager) OnlineCount(now time.Time) int {
	return m.count(func(r *record) bool { return r.online(now, m.timeout) })
}

// OnlineCountWeighted 返回按加权策略计算的在线设备数量
func (m *RedisManager) OnlineCountWeighted(now time.Time, p WeightedPolicy) int {
	if !p.Enabled {
		return m.OnlineCount(now)
	}
	return m.count(func(r *record) bool { return r.score(now, p) >= p.Threshold })
}

// count 扫描所有设备会话
func (m *RedisManager) count(match func(r *record) bool) int {
	ctx := context.Background()
	var cursor uint64
	count := 0

	for {
		keys, nextCursor, err := m.client.Scan(ctx, cursor, keyDevicePrefix+"*", 100).Result()
		if err != nil {
			break
		}
		for _, key := range keys {
			data, err := m.getRecord(ctx, key[len(keyDevicePrefix):])
			if err == nil && match(data) {
				count++
			}
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return count
}

// --- 辅助方法 ---

func (m *RedisManager) getRecord(ctx context.Context, address string) (*record, error) {
	val, err := m.client.Get(ctx, keyDevicePrefix+address).Result()
	if err != nil {
		return nil, err
	}
	var data record
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (m *RedisManager) setRecord(ctx context.Context, address string, data *record) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	// 过期时间为活动超时的2倍
	return m.client.Set(ctx, keyDevicePrefix+address, jsonData, m.timeout*2).Err()
}

func (m *RedisManager) serverDevicesKey() string {
	return fmt.Sprintf("%s%s:devices", keyServerDevicesPrefix, m.serverID)
}

// Cleanup 释放本实例持有的全部设备（用于优雅关闭）
func (m *RedisManager) Cleanup() error {
	ctx := context.Background()

	addresses, err := m.client.SMembers(ctx, m.serverDevicesKey()).Result()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, address := range addresses {
		m.OnLinkDown(address, now)
	}
	return m.client.Del(ctx, m.serverDevicesKey()).Err()
}
