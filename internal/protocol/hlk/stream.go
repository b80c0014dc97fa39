package hlk

import (
	"bytes"
	"encoding/binary"
)

// maxStreamBuffer 串口流缓冲上限，超出后丢弃旧数据
const maxStreamBuffer = 4096

// StreamDecoder 从串口字节流中切分完整帧（上行与下行两种帧族）
type StreamDecoder struct{ buf []byte }

func NewStreamDecoder() *StreamDecoder { return &StreamDecoder{} }

// Feed 追加数据并返回已完整到达的帧，帧保持原始封装
func (d *StreamDecoder) Feed(p []byte) [][]byte {
	d.buf = append(d.buf, p...)
	if len(d.buf) > maxStreamBuffer {
		d.buf = d.buf[len(d.buf)-maxStreamBuffer:]
	}
	var out [][]byte
	for {
		start, footer := d.sync()
		if start < 0 {
			// 保留可能是帧头前缀的尾部字节
			if keep := headerLen - 1; len(d.buf) > keep {
				d.buf = d.buf[len(d.buf)-keep:]
			}
			return out
		}
		d.buf = d.buf[start:]
		if len(d.buf) < headerLen+lengthLen {
			return out
		}
		total := frameOverhead + int(binary.LittleEndian.Uint16(d.buf[headerLen:]))
		if total > maxStreamBuffer {
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < total {
			return out
		}
		if !bytes.Equal(d.buf[total-footerLen:total], footer) {
			d.buf = d.buf[1:]
			continue
		}
		out = append(out, append([]byte(nil), d.buf[:total]...))
		d.buf = d.buf[total:]
	}
}

// sync 定位最早出现的帧头，返回位置与对应帧尾
func (d *StreamDecoder) sync() (int, []byte) {
	down := bytes.Index(d.buf, DownlinkHeader)
	up := bytes.Index(d.buf, UplinkHeader)
	switch {
	case down < 0 && up < 0:
		return -1, nil
	case up < 0 || (down >= 0 && down < up):
		return down, DownlinkFooter
	default:
		return up, UplinkFooter
	}
}

// Buffered 当前缓存的未成帧字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }
