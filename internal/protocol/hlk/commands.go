package hlk

import (
	"encoding/binary"
	"fmt"
)

// Op 设备操作名，不同型号映射到不同命令字
type Op string

const (
	OpEnableConfig        Op = "enable_config"
	OpEndConfig           Op = "end_config"
	OpSetMaxGates         Op = "set_max_gates"
	OpReadParams          Op = "read_params"
	OpEnableEngineering   Op = "enable_engineering"
	OpDisableEngineering  Op = "disable_engineering"
	OpSetSensitivity      Op = "set_sensitivity"
	OpReadFirmware        Op = "read_firmware"
	OpSetBaudRate         Op = "set_baud_rate"
	OpFactoryReset        Op = "factory_reset"
	OpReboot              Op = "reboot"
	OpSetBluetooth        Op = "set_bluetooth"
	OpReadMAC             Op = "read_mac"
	OpSendPassword        Op = "send_password"
	OpSetPassword         Op = "set_password"
	OpSetResolution       Op = "set_resolution"
	OpGetResolution       Op = "get_resolution"
	OpSetLightConfig      Op = "set_light_config"
	OpGetLightConfig      Op = "get_light_config"
	OpStartAutoThreshold  Op = "start_auto_threshold"
	OpQueryAutoThreshold  Op = "query_auto_threshold"
	OpWriteBasicParams    Op = "write_basic_params"
	OpReadBasicParams     Op = "read_basic_params"
	OpWriteMotionSens     Op = "write_motion_sensitivity"
	OpReadMotionSens      Op = "read_motion_sensitivity"
	OpWriteMotionlessSens Op = "write_motionless_sensitivity"
	OpReadMotionlessSens  Op = "read_motionless_sensitivity"
)

// 通用命令字，两种型号一致
const (
	WordEnableConfig       Word = 0x00FF
	WordEndConfig          Word = 0x00FE
	WordEnableEngineering  Word = 0x0062
	WordDisableEngineering Word = 0x0063
	WordReadFirmware       Word = 0x00A0
	WordFactoryReset       Word = 0x00A2
	WordReboot             Word = 0x00A3
	WordReadMAC            Word = 0x00A5
	WordStartAutoThreshold Word = 0x000B
	WordQueryAutoThreshold Word = 0x001B

	// WordReadParams LD2410 读参数
	WordReadParams Word = 0x0061
)

var ld2410Words = map[Op]Word{
	OpEnableConfig:       WordEnableConfig,
	OpEndConfig:          WordEndConfig,
	OpSetMaxGates:        0x0060,
	OpReadParams:         WordReadParams,
	OpEnableEngineering:  WordEnableEngineering,
	OpDisableEngineering: WordDisableEngineering,
	OpSetSensitivity:     0x0064,
	OpReadFirmware:       WordReadFirmware,
	OpSetBaudRate:        0x00A1,
	OpFactoryReset:       WordFactoryReset,
	OpReboot:             WordReboot,
	OpSetBluetooth:       0x00A4,
	OpReadMAC:            WordReadMAC,
	OpSendPassword:       0x00A8,
	OpSetPassword:        0x00A9,
	OpSetResolution:      0x00AA,
	OpGetResolution:      0x00AB,
	OpSetLightConfig:     0x00AD,
	OpGetLightConfig:     0x00AE,
	OpStartAutoThreshold: WordStartAutoThreshold,
	OpQueryAutoThreshold: WordQueryAutoThreshold,
}

var ld2412Words = map[Op]Word{
	OpEnableConfig:        WordEnableConfig,
	OpEndConfig:           WordEndConfig,
	OpEnableEngineering:   WordEnableEngineering,
	OpDisableEngineering:  WordDisableEngineering,
	OpReadFirmware:        WordReadFirmware,
	OpFactoryReset:        WordFactoryReset,
	OpReboot:              WordReboot,
	OpReadMAC:             WordReadMAC,
	OpGetResolution:       0x0011,
	OpStartAutoThreshold:  WordStartAutoThreshold,
	OpQueryAutoThreshold:  WordQueryAutoThreshold,
	OpWriteBasicParams:    0x0002,
	OpReadBasicParams:     0x0012,
	OpWriteMotionSens:     0x0003,
	OpReadMotionSens:      0x0013,
	OpWriteMotionlessSens: 0x0004,
	OpReadMotionlessSens:  0x0014,
}

// 参数字（SetMaxGates / SetSensitivity 的 key，均为 u16 LE + u32 LE 值）
const (
	paramMaxMoveGate  uint16 = 0x0000
	paramMaxStillGate uint16 = 0x0001
	paramAbsence      uint16 = 0x0002

	paramGate  uint16 = 0x0000
	paramMove  uint16 = 0x0001
	paramStill uint16 = 0x0002

	// AllGates 一次设置全部距离门
	AllGates uint16 = 0xFFFF
)

// BaudRates 波特率序号（LD2410 SetBaudRate 参数）
var BaudRates = map[int]uint16{
	9600:   1,
	19200:  2,
	38400:  3,
	57600:  4,
	115200: 5,
	230400: 6,
	256000: 7,
	460800: 8,
}

func appendParam(buf []byte, key uint16, value uint32) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, key)
	return binary.LittleEndian.AppendUint32(buf, value)
}

// U16Value 小端 u16 参数
func U16Value(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// PasswordValue 蓝牙密码按 ASCII 编码，奇数长度补 0
func PasswordValue(password string) ([]byte, error) {
	if password == "" {
		return nil, invalidArg("password required")
	}
	buf := make([]byte, 0, len(password)+1)
	for i := 0; i < len(password); i++ {
		c := password[i]
		if c > 0x7F {
			return nil, invalidArg("password must be ASCII")
		}
		buf = append(buf, c)
	}
	if len(buf)%2 != 0 {
		buf = append(buf, 0x00)
	}
	return buf, nil
}

// NewPasswordValue 设置新密码，必须为 6 个 ASCII 字符
func NewPasswordValue(password string) ([]byte, error) {
	if len(password) != 6 {
		return nil, invalidArg("password must be 6 characters")
	}
	return PasswordValue(password)
}

// SensitivityValue gate 取 0..maxGate 或 AllGates，灵敏度 0..100
func SensitivityValue(gate uint16, maxGate int, move, still int) ([]byte, error) {
	if gate != AllGates && int(gate) > maxGate {
		return nil, invalidArg("gate must be 0..%d", maxGate)
	}
	if move < 0 || move > 100 {
		return nil, invalidArg("move must be 0..100")
	}
	if still < 0 || still > 100 {
		return nil, invalidArg("still must be 0..100")
	}
	buf := make([]byte, 0, 18)
	buf = appendParam(buf, paramGate, uint32(gate))
	buf = appendParam(buf, paramMove, uint32(move))
	buf = appendParam(buf, paramStill, uint32(still))
	return buf, nil
}

// MaxGatesValue 最大运动门、最大静止门与无人持续时间（秒）
func MaxGatesValue(moveGate, stillGate, absence int) ([]byte, error) {
	if absence < 0 || absence > 0xFFFF {
		return nil, invalidArg("absence delay must be 0..65535")
	}
	if moveGate < 0 || stillGate < 0 {
		return nil, invalidArg("gates must be non-negative")
	}
	buf := make([]byte, 0, 18)
	buf = appendParam(buf, paramMaxMoveGate, uint32(moveGate))
	buf = appendParam(buf, paramMaxStillGate, uint32(stillGate))
	buf = appendParam(buf, paramAbsence, uint32(absence))
	return buf, nil
}

// LightConfig 光敏辅助控制配置
type LightConfig struct {
	Mode      int `json:"mode"`
	Threshold int `json:"threshold"`
	OutLevel  int `json:"out_level"`
}

// DefaultLightConfig 未读到设备配置时使用
var DefaultLightConfig = LightConfig{Mode: 0, Threshold: 0x80, OutLevel: 0}

// Value 编码为 mode, threshold, out_level, 0
func (c LightConfig) Value() ([]byte, error) {
	if c.Mode < 0 || c.Mode > 2 {
		return nil, invalidArg("mode must be 0, 1, or 2")
	}
	if c.Threshold < 0 || c.Threshold > 255 {
		return nil, invalidArg("threshold must be 0..255")
	}
	if c.OutLevel != 0 && c.OutLevel != 1 {
		return nil, invalidArg("out_level must be 0 or 1")
	}
	return []byte{byte(c.Mode), byte(c.Threshold), byte(c.OutLevel), 0x00}, nil
}

// BasicParams LD2412 基础参数
type BasicParams struct {
	MinGate          int `json:"min_gate"`
	MaxGate          int `json:"max_gate"`
	UnmannedDuration int `json:"unmanned_duration"`
	OutPinPolarity   int `json:"out_pin_polarity"`
}

// Value 编码为 min(1) + max(1) + duration(2, LE) + polarity(1)
func (p BasicParams) Value(gates int) ([]byte, error) {
	if p.MinGate < 0 || p.MaxGate >= gates || p.MinGate > p.MaxGate {
		return nil, invalidArg("gates must satisfy 0 <= min <= max < %d", gates)
	}
	if p.UnmannedDuration < 0 || p.UnmannedDuration > 0xFFFF {
		return nil, invalidArg("unmanned duration must be 0..65535")
	}
	if p.OutPinPolarity != 0 && p.OutPinPolarity != 1 {
		return nil, invalidArg("out pin polarity must be 0 or 1")
	}
	buf := []byte{byte(p.MinGate), byte(p.MaxGate)}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(p.UnmannedDuration))
	return append(buf, byte(p.OutPinPolarity)), nil
}

// GateSensitivityValue 每个距离门一个字节，必须覆盖全部距离门
func GateSensitivityValue(values []int, gates int) ([]byte, error) {
	if len(values) != gates {
		return nil, invalidArg("need %d sensitivities, got %d", gates, len(values))
	}
	buf := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("%w: gate %d sensitivity must be 0..100", ErrInvalidArgument, i)
		}
		buf[i] = byte(v)
	}
	return buf, nil
}

// BaudRateValue 波特率转换为设备序号
func BaudRateValue(baud int) ([]byte, error) {
	idx, ok := BaudRates[baud]
	if !ok {
		return nil, invalidArg("unsupported baud rate %d", baud)
	}
	return U16Value(idx), nil
}
