package hlk

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// CheckStatus 校验应答状态码（前 2 字节，0 为成功）
func CheckStatus(op Op, resp []byte) error {
	if len(resp) < 2 {
		return fmt.Errorf("%s: %w", op, ErrShortResponse)
	}
	if st := binary.LittleEndian.Uint16(resp[:2]); st != 0 {
		return &StatusError{Op: op, Status: st}
	}
	return nil
}

// ConfigSession 进入配置模式的应答
type ConfigSession struct {
	ProtocolVersion uint16 `json:"protocol_version"`
	BufferSize      uint16 `json:"buffer_size"`
}

// ParseConfigSession 部分固件只返回状态码，此时版本与缓冲区大小为 0
func ParseConfigSession(resp []byte) (ConfigSession, error) {
	if err := CheckStatus(OpEnableConfig, resp); err != nil {
		return ConfigSession{}, err
	}
	var s ConfigSession
	if len(resp) >= 6 {
		s.ProtocolVersion = binary.LittleEndian.Uint16(resp[2:4])
		s.BufferSize = binary.LittleEndian.Uint16(resp[4:6])
	}
	return s, nil
}

// Firmware 固件版本
type Firmware struct {
	Type    uint16 `json:"type"`
	Version string `json:"version"`
}

// ParseFirmware 应答：status(2) + type(2) + [patch, major](2) + minor(4, 逆序)
//
// 例：10 01 / 10 18 04 24 -> V1.10.24041810
func ParseFirmware(resp []byte) (Firmware, error) {
	if err := CheckStatus(OpReadFirmware, resp); err != nil {
		return Firmware{}, err
	}
	if len(resp) < 10 {
		return Firmware{}, fmt.Errorf("%s: %w", OpReadFirmware, ErrShortResponse)
	}
	minor := make([]byte, 4)
	for i := 0; i < 4; i++ {
		minor[i] = resp[9-i]
	}
	return Firmware{
		Type:    binary.LittleEndian.Uint16(resp[2:4]),
		Version: fmt.Sprintf("V%d.%02x.%s", resp[5], resp[4], hex.EncodeToString(minor)),
	}, nil
}

// Params LD2410 读参数应答
type Params struct {
	MaxGate          int   `json:"max_gate"`
	MaxMoveGate      int   `json:"max_move_gate"`
	MaxStillGate     int   `json:"max_still_gate"`
	MoveSensitivity  []int `json:"move_gate_sensitivity"`
	StillSensitivity []int `json:"still_gate_sensitivity"`
	AbsenceDelay     int   `json:"absence_delay"`
}

// ParseParams 应答：status(2) + AA + N + max_move + max_still + move[N+1] + still[N+1] + absence(2)
func ParseParams(resp []byte) (Params, error) {
	if err := CheckStatus(OpReadParams, resp); err != nil {
		return Params{}, err
	}
	if len(resp) < 10 || resp[2] != typeMarker {
		return Params{}, fmt.Errorf("%s: %w", OpReadParams, ErrShortResponse)
	}
	p := resp[3:]
	n := int(p[0]) + 1
	if len(p) < 3+2*n+2 {
		return Params{}, fmt.Errorf("%s: %w", OpReadParams, ErrShortResponse)
	}
	out := Params{
		MaxGate:      int(p[0]),
		MaxMoveGate:  int(p[1]),
		MaxStillGate: int(p[2]),
	}
	idx := 3
	out.MoveSensitivity = bytesToInts(p[idx : idx+n])
	idx += n
	out.StillSensitivity = bytesToInts(p[idx : idx+n])
	idx += n
	out.AbsenceDelay = int(binary.LittleEndian.Uint16(p[idx : idx+2]))
	return out, nil
}

// Fields 转换为设备快照字段
func (p Params) Fields() map[string]any {
	return map[string]any{
		"max_gate":               p.MaxGate,
		"max_move_gate":          p.MaxMoveGate,
		"max_still_gate":         p.MaxStillGate,
		"move_gate_sensitivity":  p.MoveSensitivity,
		"still_gate_sensitivity": p.StillSensitivity,
		"absence_delay":          p.AbsenceDelay,
	}
}

// ParseU16 status(2) + u16 的应答（分辨率、自动阈值状态）
func ParseU16(op Op, resp []byte) (uint16, error) {
	if err := CheckStatus(op, resp); err != nil {
		return 0, err
	}
	switch {
	case len(resp) >= 4:
		return binary.LittleEndian.Uint16(resp[2:4]), nil
	case len(resp) == 3:
		return uint16(resp[2]), nil
	default:
		return 0, fmt.Errorf("%s: %w", op, ErrShortResponse)
	}
}

// AutoThresholdState 自动阈值（底噪标定）状态
type AutoThresholdState uint16

const (
	AutoThresholdIdle AutoThresholdState = iota
	AutoThresholdRunning
	AutoThresholdDone
)

func (s AutoThresholdState) String() string {
	switch s {
	case AutoThresholdIdle:
		return "idle"
	case AutoThresholdRunning:
		return "running"
	case AutoThresholdDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(s))
	}
}

// ParseLightConfig 应答：status(2) + mode + threshold + out_level + reserved
func ParseLightConfig(resp []byte) (LightConfig, error) {
	if err := CheckStatus(OpGetLightConfig, resp); err != nil {
		return LightConfig{}, err
	}
	if len(resp) < 5 {
		return LightConfig{}, fmt.Errorf("%s: %w", OpGetLightConfig, ErrShortResponse)
	}
	return LightConfig{Mode: int(resp[2]), Threshold: int(resp[3]), OutLevel: int(resp[4])}, nil
}

// Fields 转换为设备快照字段
func (c LightConfig) Fields() map[string]any {
	return map[string]any{
		"light_function":  c.Mode,
		"light_threshold": c.Threshold,
		"light_out_level": c.OutLevel,
	}
}

// ParseMAC offset 为 MAC 在应答中的起始位置
func ParseMAC(resp []byte, offset int) (string, error) {
	if err := CheckStatus(OpReadMAC, resp); err != nil {
		return "", err
	}
	if len(resp) < offset+6 {
		return "", fmt.Errorf("%s: %w", OpReadMAC, ErrShortResponse)
	}
	parts := make([]string, 6)
	for i, b := range resp[offset : offset+6] {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}

// ParseBasicParams LD2412 应答：status(2) + min + max + duration(2) [+ polarity]
func ParseBasicParams(resp []byte) (BasicParams, error) {
	if err := CheckStatus(OpReadBasicParams, resp); err != nil {
		return BasicParams{}, err
	}
	if len(resp) < 6 {
		return BasicParams{}, fmt.Errorf("%s: %w", OpReadBasicParams, ErrShortResponse)
	}
	p := BasicParams{
		MinGate:          int(resp[2]),
		MaxGate:          int(resp[3]),
		UnmannedDuration: int(binary.LittleEndian.Uint16(resp[4:6])),
	}
	if len(resp) >= 7 {
		p.OutPinPolarity = int(resp[6])
	}
	return p, nil
}

// Fields 转换为设备快照字段
func (p BasicParams) Fields() map[string]any {
	return map[string]any{
		"min_gate":          p.MinGate,
		"max_gate":          p.MaxGate,
		"unmanned_duration": p.UnmannedDuration,
		"out_pin_polarity":  p.OutPinPolarity,
	}
}

// ParseGateSensitivity status(2) + 每门 1 字节
func ParseGateSensitivity(op Op, resp []byte, gates int) ([]int, error) {
	if err := CheckStatus(op, resp); err != nil {
		return nil, err
	}
	if len(resp) < 2+gates {
		return nil, fmt.Errorf("%s: %w", op, ErrShortResponse)
	}
	return bytesToInts(resp[2 : 2+gates]), nil
}

func bytesToInts(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
