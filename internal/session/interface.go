package session

import "time"

// SessionManager 设备在线会话，支持内存和Redis两种实现
type SessionManager interface {
	// OnActivity 记录设备最近一次入站数据或成功命令
	OnActivity(address string, t time.Time)

	// OnLinkUp 记录链路建立，并登记当前网关实例为设备持有者
	OnLinkUp(address string, t time.Time)

	// OnLinkDown 记录链路断开
	OnLinkDown(address string, t time.Time)

	// OnCommandTimeout 记录命令超时
	OnCommandTimeout(address string, t time.Time)

	// Owner 返回持有设备链路的网关实例
	Owner(address string) (string, bool)

	// IsOnline 判断设备是否在线（仅活动时间）
	IsOnline(address string, now time.Time) bool

	// IsOnlineWeighted 按加权策略判断设备是否在线
	IsOnlineWeighted(address string, now time.Time, p WeightedPolicy) bool

	// OnlineCount 返回当前在线设备数量（仅活动时间）
	OnlineCount(now time.Time) int

	// OnlineCountWeighted 返回按加权策略计算的在线设备数量
	OnlineCountWeighted(now time.Time, p WeightedPolicy) int
}

// WeightedPolicy 在线加权策略：活动新鲜得 1 分，近期断链与超时扣分
type WeightedPolicy struct {
	Enabled         bool
	ActivityTimeout time.Duration
	LinkDownWindow  time.Duration
	TimeoutWindow   time.Duration
	LinkDownPenalty float64
	TimeoutPenalty  float64
	Threshold       float64
}

// record 单台设备的会话信号
type record struct {
	Address      string    `json:"address"`
	ServerID     string    `json:"server_id,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	LastLinkUp   time.Time `json:"last_link_up,omitempty"`
	LastLinkDown time.Time `json:"last_link_down,omitempty"`
	LastTimeout  time.Time `json:"last_timeout,omitempty"`
}

func (r *record) online(now time.Time, timeout time.Duration) bool {
	return !r.LastSeen.IsZero() && now.Sub(r.LastSeen) <= timeout
}

func (r *record) score(now time.Time, p WeightedPolicy) float64 {
	score := 0.0
	if r.online(now, p.ActivityTimeout) {
		score += 1.0
	}
	// 近期断链惩罚
	if !r.LastLinkDown.IsZero() && p.LinkDownWindow > 0 && now.Sub(r.LastLinkDown) <= p.LinkDownWindow {
		score -= p.LinkDownPenalty
	}
	// 近期超时惩罚
	if !r.LastTimeout.IsZero() && p.TimeoutWindow > 0 && now.Sub(r.LastTimeout) <= p.TimeoutWindow {
		score -= p.TimeoutPenalty
	}
	return score
}
