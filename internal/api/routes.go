package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/api/middleware"
	"github.com/taoyao-code/hlk-radar/internal/session"
)

// Deps 路由依赖，Session/Audit/Logs 可为 nil
type Deps struct {
	Registry DeviceRegistry
	Session  session.SessionManager
	Policy   session.WeightedPolicy
	Audit    CommandAuditor
	Logs     CommandLogStore
	Auth     middleware.AuthConfig
	// CommandRate 每台设备每秒允许的写命令数，<=0 不限制
	CommandRate  float64
	CommandBurst int
	Deadline     time.Duration
	Logger       *zap.Logger
}

// NewDeviceHandler 创建设备API处理器
func NewDeviceHandler(deps Deps) *DeviceHandler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Deadline <= 0 {
		deps.Deadline = DefaultCommandDeadline
	}
	return &DeviceHandler{
		reg:      deps.Registry,
		sess:     deps.Session,
		policy:   deps.Policy,
		audit:    deps.Audit,
		logs:     deps.Logs,
		limiter:  newDeviceLimiter(deps.CommandRate, deps.CommandBurst),
		deadline: deps.Deadline,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// RegisterRoutes 注册设备路由
func RegisterRoutes(r gin.IRouter, deps Deps) {
	if deps.Registry == nil {
		return
	}
	h := NewDeviceHandler(deps)

	api := r.Group("/api")
	api.Use(middleware.RequestTracing())
	if deps.Auth.Enabled {
		api.Use(middleware.APIKeyAuth(deps.Auth, h.logger))
		h.logger.Info("api authentication enabled", zap.Int("api_keys_count", len(deps.Auth.APIKeys)))
	} else {
		h.logger.Warn("api authentication disabled - only for development!")
	}

	api.GET("/devices", h.ListDevices)

	dev := api.Group("/devices/:address")
	dev.GET("", h.GetDevice)
	dev.GET("/commands", h.ListCommands)
	dev.GET("/auto-threshold", h.QueryAutoThreshold)

	dev.POST("/connect", h.Connect)
	dev.POST("/disconnect", h.Disconnect)
	dev.POST("/engineering", h.Engineering)
	dev.POST("/sensitivity", h.Sensitivity)
	dev.POST("/absence-delay", h.AbsenceDelay)
	dev.POST("/light", h.Light)
	dev.POST("/resolution", h.Resolution)
	dev.POST("/auto-threshold", h.StartAutoThreshold)
	dev.POST("/reboot", h.Reboot)
	dev.POST("/factory-reset", h.FactoryReset)
	dev.POST("/refresh", h.Refresh)
}
