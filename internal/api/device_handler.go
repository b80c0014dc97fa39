package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/api/middleware"
	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/session"
	pgstorage "github.com/taoyao-code/hlk-radar/internal/storage/pg"
)

// DefaultCommandDeadline 单个 HTTP 命令请求的总时限（含按需连接与重试）
const DefaultCommandDeadline = 45 * time.Second

// DeviceRegistry 设备索引，由 registry.Registry 实现
type DeviceRegistry interface {
	Get(address string) (*driver.Device, error)
	List() []*driver.Device
}

// CommandAuditor 记录 API 发起的命令，由 audit.Recorder 实现
type CommandAuditor interface {
	Command(address string, requestID uuid.UUID, op string, d time.Duration, err error)
}

// CommandLogStore 查询命令审计，由 pg.Repository 实现
type CommandLogStore interface {
	ListCommandLogs(ctx context.Context, address string, limit int) ([]pgstorage.CommandLog, error)
}

// DeviceHandler 雷达设备 API
type DeviceHandler struct {
	reg      DeviceRegistry
	sess     session.SessionManager
	policy   session.WeightedPolicy
	audit    CommandAuditor
	logs     CommandLogStore
	limiter  *deviceLimiter
	deadline time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// DeviceView 设备列表项
type DeviceView struct {
	Address     string         `json:"address"`
	Name        string         `json:"name"`
	Model       string         `json:"model"`
	State       string         `json:"state"`
	Available   bool           `json:"available"`
	Online      *bool          `json:"online,omitempty"`
	Owner       string         `json:"owner,omitempty"`
	Calibrating bool           `json:"calibrating"`
	LastSeen    *time.Time     `json:"last_seen,omitempty"`
	Snapshot    map[string]any `json:"snapshot,omitempty"`
}

func (h *DeviceHandler) view(d *driver.Device, withSnapshot bool) DeviceView {
	v := DeviceView{
		Address:     d.Address(),
		Name:        d.Name(),
		Model:       string(d.Model()),
		State:       d.State().String(),
		Available:   d.Available(),
		Calibrating: d.Calibrating(),
	}
	if t := d.LastSeen(); !t.IsZero() {
		v.LastSeen = &t
	}
	if h.sess != nil {
		now := h.now()
		var online bool
		if h.policy.Enabled {
			online = h.sess.IsOnlineWeighted(d.Address(), now, h.policy)
		} else {
			online = h.sess.IsOnline(d.Address(), now)
		}
		v.Online = &online
		if owner, ok := h.sess.Owner(d.Address()); ok {
			v.Owner = owner
		}
	}
	if withSnapshot {
		v.Snapshot = d.Snapshot()
	}
	return v
}

// ListDevices GET /api/devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices := h.reg.List()
	out := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, h.view(d, false))
	}
	respondOK(c, gin.H{"devices": out, "total": len(out)})
}

// GetDevice GET /api/devices/:address
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	d, err := h.reg.Get(c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h.view(d, true))
}

// ListCommands GET /api/devices/:address/commands
func (h *DeviceHandler) ListCommands(c *gin.Context) {
	d, err := h.reg.Get(c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	if h.logs == nil {
		respondStatus(c, http.StatusNotImplemented, "unsupported", "command audit is not enabled")
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	logs, err := h.logs.ListCommandLogs(c.Request.Context(), d.Address(), limit)
	if err != nil {
		h.logger.Error("list command logs failed", zap.String("device", d.Address()), zap.Error(err))
		respondStatus(c, http.StatusInternalServerError, "error", err.Error())
		return
	}
	respondOK(c, gin.H{"commands": logs})
}

// command 执行一次设备命令：限流、时限、审计、错误映射
func (h *DeviceHandler) command(c *gin.Context, op string, fn func(ctx context.Context, d *driver.Device) (any, error)) {
	d, err := h.reg.Get(c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !h.limiter.Allow(d.Address()) {
		respondStatus(c, http.StatusTooManyRequests, "rate_limited", "too many commands for this device")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadline)
	defer cancel()

	start := time.Now()
	data, err := fn(ctx, d)
	elapsed := time.Since(start)
	rid := middleware.RequestID(c)
	if h.audit != nil {
		h.audit.Command(d.Address(), rid, op, elapsed, err)
	}
	if err != nil {
		h.logger.Warn("device command failed",
			zap.String("device", d.Address()),
			zap.String("op", op),
			zap.String("request_id", rid.String()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}
	if data == nil {
		data = gin.H{"state": d.State().String()}
	}
	respondOK(c, data)
}

// bind 解析请求体，失败时直接返回 400
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondStatus(c, http.StatusBadRequest, "invalid", "无效的请求: "+err.Error())
		return false
	}
	return true
}

// Connect POST /connect
func (h *DeviceHandler) Connect(c *gin.Context) {
	h.command(c, "connect", func(ctx context.Context, d *driver.Device) (any, error) {
		return nil, d.EnsureConnected(ctx)
	})
}

// Disconnect POST /disconnect
func (h *DeviceHandler) Disconnect(c *gin.Context) {
	h.command(c, "disconnect", func(ctx context.Context, d *driver.Device) (any, error) {
		return nil, d.Disconnect(ctx)
	})
}

// EngineeringRequest 工程模式开关
type EngineeringRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// Engineering POST /engineering
func (h *DeviceHandler) Engineering(c *gin.Context) {
	var req EngineeringRequest
	if !bind(c, &req) {
		return
	}
	h.command(c, "engineering", func(ctx context.Context, d *driver.Device) (any, error) {
		return gin.H{"engineering_mode": *req.Enabled}, d.SetEngineeringMode(ctx, *req.Enabled)
	})
}

// SensitivityRequest 距离门灵敏度，gate 省略表示全部
type SensitivityRequest struct {
	Gate  *int `json:"gate" binding:"omitempty,min=0"`
	Move  *int `json:"move" binding:"required,min=0,max=100"`
	Still *int `json:"still" binding:"required,min=0,max=100"`
}

// Sensitivity POST /sensitivity
func (h *DeviceHandler) Sensitivity(c *gin.Context) {
	var req SensitivityRequest
	if !bind(c, &req) {
		return
	}
	gate := -1
	if req.Gate != nil {
		gate = *req.Gate
	}
	h.command(c, "sensitivity", func(ctx context.Context, d *driver.Device) (any, error) {
		return nil, d.SetGateSensitivity(ctx, gate, *req.Move, *req.Still)
	})
}

// AbsenceDelayRequest 无人持续时间
type AbsenceDelayRequest struct {
	Seconds *int `json:"seconds" binding:"required,min=0,max=65535"`
}

// AbsenceDelay POST /absence-delay
func (h *DeviceHandler) AbsenceDelay(c *gin.Context) {
	var req AbsenceDelayRequest
	if !bind(c, &req) {
		return
	}
	h.command(c, "absence_delay", func(ctx context.Context, d *driver.Device) (any, error) {
		return nil, d.SetAbsenceDelay(ctx, *req.Seconds)
	})
}

// Light POST /light，字段可部分提供
func (h *DeviceHandler) Light(c *gin.Context) {
	var req driver.LightUpdate
	if !bind(c, &req) {
		return
	}
	h.command(c, "light", func(ctx context.Context, d *driver.Device) (any, error) {
		return nil, d.SetLightConfig(ctx, req)
	})
}

// ResolutionRequest 距离分辨率档位
type ResolutionRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// Resolution POST /resolution
func (h *DeviceHandler) Resolution(c *gin.Context) {
	var req ResolutionRequest
	if !bind(c, &req) {
		return
	}
	h.command(c, "resolution", func(ctx context.Context, d *driver.Device) (any, error) {
		return nil, d.SetResolution(ctx, *req.Index)
	})
}

// AutoThresholdRequest 自动阈值标定时长（秒）
type AutoThresholdRequest struct {
	Duration int `json:"duration" binding:"min=0,max=65535"`
}

// StartAutoThreshold POST /auto-threshold
func (h *DeviceHandler) StartAutoThreshold(c *gin.Context) {
	var req AutoThresholdRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	h.command(c, "auto_threshold", func(ctx context.Context, d *driver.Device) (any, error) {
		if err := d.StartAutoThreshold(ctx, req.Duration); err != nil {
			return nil, err
		}
		return gin.H{"calibrating": d.Calibrating()}, nil
	})
}

// QueryAutoThreshold GET /auto-threshold
func (h *DeviceHandler) QueryAutoThreshold(c *gin.Context) {
	h.command(c, "query_auto_threshold", func(ctx context.Context, d *driver.Device) (any, error) {
		st, err := d.QueryAutoThreshold(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{"status": st.String(), "calibrating": d.Calibrating()}, nil
	})
}

// Reboot POST /reboot
func (h *DeviceHandler) Reboot(c *gin.Context) {
	h.command(c, "reboot", func(ctx context.Context, d *driver.Device) (any, error) {
		return nil, d.Reboot(ctx)
	})
}

// FactoryReset POST /factory-reset
func (h *DeviceHandler) FactoryReset(c *gin.Context) {
	h.command(c, "factory_reset", func(ctx context.Context, d *driver.Device) (any, error) {
		return nil, d.FactoryReset(ctx)
	})
}

// Refresh POST /refresh，重新读取设备配置并返回快照
func (h *DeviceHandler) Refresh(c *gin.Context) {
	h.command(c, "refresh", func(ctx context.Context, d *driver.Device) (any, error) {
		if err := d.Refresh(ctx); err != nil {
			return nil, err
		}
		return h.view(d, true), nil
	})
}
