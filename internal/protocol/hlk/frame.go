package hlk

import (
	"bytes"
	"encoding/binary"
)

// 帧格式：header(4) + len(2, LE) + content(len) + footer(4)
var (
	DownlinkHeader = []byte{0xFD, 0xFC, 0xFB, 0xFA}
	DownlinkFooter = []byte{0x04, 0x03, 0x02, 0x01}
	UplinkHeader   = []byte{0xF4, 0xF3, 0xF2, 0xF1}
	UplinkFooter   = []byte{0xF8, 0xF7, 0xF6, 0xF5}
)

const (
	headerLen     = 4
	lengthLen     = 2
	footerLen     = 4
	frameOverhead = headerLen + lengthLen + footerLen
)

// Word 逻辑命令字（数值），落到线上的字节序由设备型号决定
type Word uint16

// EncodeFrame 用给定的帧头帧尾包装内容
func EncodeFrame(header, footer, content []byte) []byte {
	buf := make([]byte, 0, len(header)+lengthLen+len(content)+len(footer))
	buf = append(buf, header...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(content)))
	buf = append(buf, content...)
	buf = append(buf, footer...)
	return buf
}

// EncodeCommand 构造下行命令帧，命令字按小端写入
func EncodeCommand(word Word, value []byte) []byte {
	return encodeCommand(binary.LittleEndian, word, value)
}

func encodeCommand(order binary.ByteOrder, word Word, value []byte) []byte {
	content := make([]byte, 2, 2+len(value))
	order.PutUint16(content, uint16(word))
	content = append(content, value...)
	return EncodeFrame(DownlinkHeader, DownlinkFooter, content)
}

// IsFramed 判断 buf 是否为该帧族的完整帧（帧头、帧尾、长度字段均一致）
func IsFramed(buf, header, footer []byte) bool {
	if len(buf) < len(header)+lengthLen+len(footer) {
		return false
	}
	if !bytes.HasPrefix(buf, header) || !bytes.HasSuffix(buf, footer) {
		return false
	}
	declared := int(binary.LittleEndian.Uint16(buf[len(header):]))
	return declared == len(buf)-len(header)-lengthLen-len(footer)
}

// Unwrap 去掉帧头帧尾返回内容；不是该帧族的完整帧时原样返回 buf
func Unwrap(buf, header, footer []byte) []byte {
	if !IsFramed(buf, header, footer) {
		return buf
	}
	start := len(header) + lengthLen
	return buf[start : len(buf)-len(footer)]
}
