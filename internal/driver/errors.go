package driver

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout        = errors.New("driver: command timeout")
	ErrNotConnected   = errors.New("driver: device not connected")
	ErrConnectionLost = errors.New("driver: connection lost")
	ErrDisconnecting  = errors.New("driver: device disconnecting")
	ErrUnsupported    = errors.New("driver: operation not supported by model")
	ErrAuthFailed     = errors.New("driver: bluetooth password rejected")
)

// TransportError 链路层失败（写入、订阅、连接），可重试并触发重连
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("driver: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport 错误链中是否有链路层失败
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// retryable 链路失败或中途断开，换一条连接可能成功
func retryable(err error) bool {
	return IsTransport(err) || errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrNotConnected)
}
