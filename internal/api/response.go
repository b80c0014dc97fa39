package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/hlk-radar/internal/api/middleware"
	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/metrics"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
	"github.com/taoyao-code/hlk-radar/internal/registry"
)

// StandardResponse 统一响应格式
type StandardResponse struct {
	Code      int    `json:"code"`            // 0=成功, >0=HTTP 状态码
	Message   string `json:"message"`         // 消息
	Error     string `json:"error,omitempty"` // 错误分类
	Data      any    `json:"data,omitempty"`  // 业务数据
	RequestID string `json:"request_id"`      // 请求追踪ID
	Timestamp int64  `json:"timestamp"`       // 时间戳
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, StandardResponse{
		Code:      0,
		Message:   "success",
		Data:      data,
		RequestID: middleware.RequestID(c).String(),
		Timestamp: time.Now().Unix(),
	})
}

func respondStatus(c *gin.Context, status int, kind, message string) {
	c.JSON(status, StandardResponse{
		Code:      status,
		Message:   message,
		Error:     kind,
		RequestID: middleware.RequestID(c).String(),
		Timestamp: time.Now().Unix(),
	})
}

// respondError 按错误类型映射 HTTP 状态码
func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := metrics.Result(err)
	if errors.Is(err, registry.ErrNotFound) {
		kind = "not_found"
	}
	respondStatus(c, status, kind, err.Error())
}

// StatusFor 错误到 HTTP 状态码
func StatusFor(err error) int {
	var status *hlk.StatusError
	var mismatch *hlk.CommandMismatchError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, driver.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, hlk.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, driver.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &status), errors.As(err, &mismatch), errors.Is(err, hlk.ErrShortResponse), errors.Is(err, driver.ErrAuthFailed):
		return http.StatusBadGateway
	case driver.IsTransport(err), errors.Is(err, driver.ErrNotConnected), errors.Is(err, driver.ErrConnectionLost), errors.Is(err, driver.ErrDisconnecting):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
