package hlk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Model 设备型号
type Model string

const (
	ModelLD2410 Model = "ld2410"
	ModelLD2412 Model = "ld2412"
)

// FrameCodec 下行命令编码
type FrameCodec interface {
	EncodeCommand(word Word, value []byte) []byte
}

// ResponseValidator 校验应答帧并去掉 ack 命令字
type ResponseValidator interface {
	ValidateResponse(word Word, buf []byte) ([]byte, error)
}

// NotificationRouter 按帧头判断通知类型
type NotificationRouter interface {
	Route(buf []byte) Route
}

// TelemetryDecoder 解析上行数据帧
type TelemetryDecoder interface {
	DecodeTelemetry(buf []byte) (*Reading, error)
}

// Route 通知分发目标
type Route int

const (
	RouteUnknown Route = iota
	RouteAck
	RouteTelemetry
)

func (r Route) String() string {
	switch r {
	case RouteAck:
		return "ack"
	case RouteTelemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// Profile 型号协议参数，构造设备时选定
type Profile struct {
	Model       Model
	DisplayName string

	// WordOrder 命令字落到线上的字节序
	WordOrder binary.ByteOrder
	// FlagOrder 开关类 u16 参数（进入配置、查询 MAC、蓝牙开关）的字节序
	FlagOrder binary.ByteOrder
	Ack       AckRule

	Layout TelemetryLayout

	// Gates 距离门数量
	Gates int
	// MACOffset MAC 在应答中的起始位置（包含 2 字节状态码）
	MACOffset int
	// Auth 型号支持蓝牙鉴权，配置了密码时连接后先发送密码
	Auth            bool
	DefaultPassword string
	AutoReconnect   bool

	// RebootAck 重启命令会先返回应答
	RebootAck bool
	// TimedCalibration 自动阈值带时长参数并在配置模式内执行（LD2410）；
	// 否则为动态底噪标定，直接下发后轮询状态（LD2412）
	TimedCalibration bool

	words map[Op]Word
}

var (
	_ FrameCodec         = (*Profile)(nil)
	_ ResponseValidator  = (*Profile)(nil)
	_ NotificationRouter = (*Profile)(nil)
	_ TelemetryDecoder   = (*Profile)(nil)
)

// LD2410 HLK-LD2410 系列
func LD2410() *Profile {
	return &Profile{
		Model:            ModelLD2410,
		DisplayName:      "HLK-LD2410",
		WordOrder:        binary.LittleEndian,
		FlagOrder:        binary.BigEndian,
		Ack:              XorBigEndian,
		Layout:           TelemetryLayout{Checksum: true, DetectDistance: true},
		Gates:            9,
		MACOffset:        3,
		Auth:             true,
		DefaultPassword:  "HiLink",
		AutoReconnect:    true,
		TimedCalibration: true,
		words:            ld2410Words,
	}
}

// LD2412 HLK-LD2412 系列
func LD2412() *Profile {
	return &Profile{
		Model:         ModelLD2412,
		DisplayName:   "HLK-LD2412",
		WordOrder:     binary.LittleEndian,
		FlagOrder:     binary.LittleEndian,
		Ack:           OrLittleEndian,
		Layout:        TelemetryLayout{Checksum: true},
		Gates:         14,
		MACOffset:     2,
		AutoReconnect: true,
		RebootAck:     true,
		words:         ld2412Words,
	}
}

// ProfileFor 按型号名返回协议参数
func ProfileFor(model string) (*Profile, error) {
	switch Model(strings.ToLower(strings.TrimSpace(model))) {
	case ModelLD2410, "ld2410b", "ld2410c", "hlk-ld2410":
		return LD2410(), nil
	case ModelLD2412, "hlk-ld2412", "hlk2412":
		return LD2412(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
}

// Overrides 配置中可覆盖的协议参数，空值表示沿用型号默认
type Overrides struct {
	AckRule        string
	WordOrder      string
	FlagOrder      string
	UplinkChecksum *bool
}

// Apply 返回应用覆盖后的副本
func (p *Profile) Apply(o Overrides) (*Profile, error) {
	cp := *p
	if o.AckRule != "" {
		rule, err := ParseAckRule(o.AckRule)
		if err != nil {
			return nil, err
		}
		cp.Ack = rule
	}
	if o.WordOrder != "" {
		order, err := ParseByteOrder(o.WordOrder)
		if err != nil {
			return nil, err
		}
		cp.WordOrder = order
	}
	if o.FlagOrder != "" {
		order, err := ParseByteOrder(o.FlagOrder)
		if err != nil {
			return nil, err
		}
		cp.FlagOrder = order
	}
	if o.UplinkChecksum != nil {
		cp.Layout.Checksum = *o.UplinkChecksum
	}
	return &cp, nil
}

// Word 返回操作对应的命令字
func (p *Profile) Word(op Op) (Word, bool) {
	w, ok := p.words[op]
	return w, ok
}

// Ops 型号支持的全部操作，按名称排序
func (p *Profile) Ops() []Op {
	ops := make([]Op, 0, len(p.words))
	for op := range p.words {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Supports 型号是否支持该操作
func (p *Profile) Supports(op Op) bool {
	_, ok := p.words[op]
	return ok
}

// Flag 按型号字节序编码开关参数
func (p *Profile) Flag(v uint16) []byte {
	out := make([]byte, 2)
	p.FlagOrder.PutUint16(out, v)
	return out
}

// WireWord 命令字的线上字节
func (p *Profile) WireWord(word Word) []byte {
	out := make([]byte, 2)
	p.WordOrder.PutUint16(out, uint16(word))
	return out
}

// ExpectedAck 命令对应的应答命令字（线上字节）
func (p *Profile) ExpectedAck(word Word) []byte {
	return p.Ack.Ack(p.WireWord(word))
}

func (p *Profile) EncodeCommand(word Word, value []byte) []byte {
	return encodeCommand(p.WordOrder, word, value)
}

// ValidateResponse 去掉下行帧封装，校验 ack 并返回以状态码开头的结果
func (p *Profile) ValidateResponse(word Word, buf []byte) ([]byte, error) {
	payload := Unwrap(buf, DownlinkHeader, DownlinkFooter)
	if len(payload) < 2 {
		return nil, ErrShortResponse
	}
	want := p.ExpectedAck(word)
	if !bytes.Equal(payload[:2], want) {
		return nil, &CommandMismatchError{Command: word, Want: want, Got: append([]byte(nil), payload[:2]...)}
	}
	return payload[2:], nil
}

func (p *Profile) Route(buf []byte) Route {
	switch {
	case bytes.HasPrefix(buf, DownlinkHeader):
		return RouteAck
	case bytes.HasPrefix(buf, UplinkHeader):
		return RouteTelemetry
	default:
		return RouteUnknown
	}
}

// DecodeTelemetry 去掉上行帧封装后按型号布局解析
func (p *Profile) DecodeTelemetry(buf []byte) (*Reading, error) {
	return ParseTelemetry(Unwrap(buf, UplinkHeader, UplinkFooter), p.Layout)
}
