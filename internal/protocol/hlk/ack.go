package hlk

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// AckRule 由命令字的线上字节推导应答命令字
type AckRule interface {
	Ack(wire []byte) []byte
	String() string
}

var (
	// XorBigEndian 按大端读取命令字后异或 0x0001（LD2410 固件）
	XorBigEndian AckRule = xorBigEndian{}
	// OrLittleEndian 按小端读取命令字后或上 0x0100（LD2412 固件）
	OrLittleEndian AckRule = orLittleEndian{}
)

type xorBigEndian struct{}

func (xorBigEndian) Ack(wire []byte) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, binary.BigEndian.Uint16(wire)^0x0001)
	return out
}

func (xorBigEndian) String() string { return "xor-be" }

type orLittleEndian struct{}

func (orLittleEndian) Ack(wire []byte) []byte {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, binary.LittleEndian.Uint16(wire)|0x0100)
	return out
}

func (orLittleEndian) String() string { return "or-le" }

// ParseAckRule 解析配置中的 ack 规则名
func ParseAckRule(name string) (AckRule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "xor-be", "xor":
		return XorBigEndian, nil
	case "or-le", "or":
		return OrLittleEndian, nil
	default:
		return nil, fmt.Errorf("hlk: unknown ack rule %q", name)
	}
}

// ParseByteOrder 解析配置中的字节序名
func ParseByteOrder(name string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "le", "little", "little-endian":
		return binary.LittleEndian, nil
	case "be", "big", "big-endian":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("hlk: unknown byte order %q", name)
	}
}
