package hlk

import "encoding/binary"

// FrameType 上行数据帧类型
type FrameType byte

const (
	FrameEngineering FrameType = 0x01
	FrameBasic       FrameType = 0x02
)

func (t FrameType) String() string {
	switch t {
	case FrameEngineering:
		return "engineering"
	case FrameBasic:
		return "basic"
	default:
		return "unknown"
	}
}

const (
	typeMarker = 0xAA
	endMarker  = 0x55

	minTelemetryLen = 10
	basicBlockLen   = 7
)

// TelemetryLayout 上行帧布局，随型号不同
type TelemetryLayout struct {
	// Checksum 结束标志 0x55 之后带 1 字节校验（不校验）
	Checksum bool
	// DetectDistance 基础块后附带 2 字节探测距离（LD2410）
	DetectDistance bool
}

func (l TelemetryLayout) trailerLen() int {
	if l.Checksum {
		return 2
	}
	return 1
}

// Reading 一帧上行数据；指针和切片为 nil 表示该帧未提供
type Reading struct {
	Type            FrameType
	Moving          bool
	Stationary      bool
	MoveDistanceCM  uint16
	MoveEnergy      uint8
	StillDistanceCM uint16
	StillEnergy     uint8

	DetectDistanceCM *uint16

	MaxMoveGate     *uint8
	MaxStillGate    *uint8
	MoveGateEnergy  []uint8
	StillGateEnergy []uint8
	LightLevel      *uint8
	OutPin          *bool

	// Truncated 工程模式数据不完整，仅保留基础字段
	Truncated bool
}

// Occupancy 运动或静止任一成立即有人
func (r *Reading) Occupancy() bool {
	return r.Moving || r.Stationary
}

// ParseTelemetry 解析去掉帧头帧尾后的上行内容
//
// 工程模式截断时采用宽松策略：返回基础字段，距离门能量标记为不可用。
func ParseTelemetry(data []byte, layout TelemetryLayout) (*Reading, error) {
	if len(data) < 2 || data[1] != typeMarker {
		return nil, ErrNotTelemetry
	}
	ft := FrameType(data[0])
	if ft != FrameEngineering && ft != FrameBasic {
		return nil, ErrUnknownFrameType
	}
	trailer := layout.trailerLen()
	if len(data) < minTelemetryLen {
		return nil, ErrShortPayload
	}
	if data[len(data)-trailer] != endMarker {
		return nil, ErrMissingEndMarker
	}
	content := data[2 : len(data)-trailer]

	need := basicBlockLen
	if layout.DetectDistance {
		need += 2
	}
	if len(content) < need {
		return nil, ErrShortPayload
	}

	status := content[0]
	r := &Reading{
		Type:            ft,
		Moving:          status&0x01 != 0,
		Stationary:      status&0x02 != 0,
		MoveDistanceCM:  binary.LittleEndian.Uint16(content[1:3]),
		MoveEnergy:      content[3],
		StillDistanceCM: binary.LittleEndian.Uint16(content[4:6]),
		StillEnergy:     content[6],
	}
	if layout.DetectDistance {
		d := binary.LittleEndian.Uint16(content[7:9])
		r.DetectDistanceCM = &d
	}
	if ft == FrameEngineering {
		r.Truncated = !parseEngineering(r, content[need:])
	}
	return r, nil
}

func parseEngineering(r *Reading, rest []byte) bool {
	if len(rest) < 2 {
		return false
	}
	maxMove, maxStill := rest[0], rest[1]
	idx := 2
	moveLen, stillLen := int(maxMove)+1, int(maxStill)+1
	if len(rest) < idx+moveLen+stillLen {
		return false
	}
	r.MaxMoveGate = &maxMove
	r.MaxStillGate = &maxStill
	r.MoveGateEnergy = append([]uint8(nil), rest[idx:idx+moveLen]...)
	idx += moveLen
	r.StillGateEnergy = append([]uint8(nil), rest[idx:idx+stillLen]...)
	idx += stillLen
	if len(rest) > idx {
		light := rest[idx]
		r.LightLevel = &light
		idx++
	}
	if len(rest) > idx {
		out := rest[idx] != 0
		r.OutPin = &out
	}
	return true
}

// Fields 转换为设备快照的键值；未提供的字段值为 nil
func (r *Reading) Fields() map[string]any {
	f := map[string]any{
		"data_type":          r.Type.String(),
		"engineering_mode":   r.Type == FrameEngineering,
		"moving":             r.Moving,
		"stationary":         r.Stationary,
		"occupancy":          r.Occupancy(),
		"move_distance_cm":   int(r.MoveDistanceCM),
		"move_energy":        int(r.MoveEnergy),
		"still_distance_cm":  int(r.StillDistanceCM),
		"still_energy":       int(r.StillEnergy),
		"max_move_gate":      optInt(r.MaxMoveGate),
		"max_still_gate":     optInt(r.MaxStillGate),
		"move_gate_energy":   optInts(r.MoveGateEnergy),
		"still_gate_energy":  optInts(r.StillGateEnergy),
		"light_level":        optInt(r.LightLevel),
		"out_pin":            nil,
		"detect_distance_cm": nil,
	}
	if r.OutPin != nil {
		f["out_pin"] = *r.OutPin
	}
	if r.DetectDistanceCM != nil {
		f["detect_distance_cm"] = int(*r.DetectDistanceCM)
	}
	if r.Truncated {
		f["engineering_truncated"] = true
	}
	return f
}

func optInt(v *uint8) any {
	if v == nil {
		return nil
	}
	return int(*v)
}

func optInts(v []uint8) any {
	if v == nil {
		return nil
	}
	out := make([]int, len(v))
	for i, b := range v {
		out[i] = int(b)
	}
	return out
}
