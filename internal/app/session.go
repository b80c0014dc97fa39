package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hlk-radar/internal/config"
	"github.com/taoyao-code/hlk-radar/internal/session"
	redisstorage "github.com/taoyao-code/hlk-radar/internal/storage/redis"
)

// NewSessionAndPolicy 构造会话管理器与加权策略
// 如果Redis客户端可用，则使用Redis会话管理器，否则使用内存会话管理器
func NewSessionAndPolicy(
	cfg cfgpkg.SessionConfig,
	redisClient *redisstorage.Client,
	serverID string,
	logger *zap.Logger,
) (session.SessionManager, session.WeightedPolicy) {
	timeout := cfg.ActivityTimeout

	var mgr session.SessionManager
	if redisClient != nil {
		mgr = session.NewRedisManager(redisClient.Client, serverID, timeout)
		logger.Info("using redis session manager",
			zap.String("server_id", serverID),
			zap.Duration("timeout", timeout))
	} else {
		mgr = session.New(timeout, serverID)
		logger.Info("using memory session manager", zap.Duration("timeout", timeout))
	}

	policy := session.WeightedPolicy{
		Enabled:         cfg.WeightedEnabled,
		ActivityTimeout: timeout,
		LinkDownWindow:  cfg.LinkDownWindow,
		TimeoutWindow:   cfg.TimeoutWindow,
		LinkDownPenalty: cfg.LinkDownPenalty,
		TimeoutPenalty:  cfg.TimeoutPenalty,
		Threshold:       cfg.Threshold,
	}
	return mgr, policy
}
