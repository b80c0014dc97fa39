package hlk

import (
	"errors"
	"fmt"
)

var (
	ErrNotTelemetry     = errors.New("hlk: not a telemetry frame")
	ErrUnknownFrameType = errors.New("hlk: unknown uplink frame type")
	ErrMissingEndMarker = errors.New("hlk: missing end marker")
	ErrShortPayload     = errors.New("hlk: payload too short")
	ErrShortResponse    = errors.New("hlk: response too short")
	ErrUnknownModel     = errors.New("hlk: unknown model")
	ErrInvalidArgument  = errors.New("hlk: invalid argument")
)

// CommandMismatchError 应答命令字与期望的 ack 不一致
type CommandMismatchError struct {
	Command Word
	Want    []byte
	Got     []byte
}

func (e *CommandMismatchError) Error() string {
	return fmt.Sprintf("hlk: unexpected response command %x for %04x (want %x)", e.Got, uint16(e.Command), e.Want)
}

// StatusError 设备返回非零状态码
type StatusError struct {
	Op     Op
	Status uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hlk: %s failed with status 0x%04x", e.Op, e.Status)
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
