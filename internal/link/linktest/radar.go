package linktest

import (
	"sync"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// Radar 按型号应答命令的模拟设备
//
// 未预设应答的命令返回状态 0；Silence 的命令和重启（LD2410）不应答。
type Radar struct {
	Profile *hlk.Profile

	mu       sync.Mutex
	replies  map[hlk.Word][]byte
	silent   map[hlk.Word]bool
	received []hlk.Word
}

func NewRadar(p *hlk.Profile) *Radar {
	return &Radar{
		Profile: p,
		replies: make(map[hlk.Word][]byte),
		silent:  make(map[hlk.Word]bool),
	}
}

// Reply 设置命令的应答内容（状态码起始，不含 ack 字）
func (r *Radar) Reply(word hlk.Word, resp []byte) *Radar {
	r.mu.Lock()
	r.replies[word] = resp
	delete(r.silent, word)
	r.mu.Unlock()
	return r
}

// Silence 命令不应答，用于超时测试
func (r *Radar) Silence(word hlk.Word) *Radar {
	r.mu.Lock()
	r.silent[word] = true
	r.mu.Unlock()
	return r
}

// Received 收到的命令字，按顺序
func (r *Radar) Received() []hlk.Word {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]hlk.Word, len(r.received))
	copy(out, r.received)
	return out
}

// Respond 可直接作为 Responder
func (r *Radar) Respond(frame []byte) [][]byte {
	content := hlk.Unwrap(frame, hlk.DownlinkHeader, hlk.DownlinkFooter)
	if len(content) < 2 {
		return nil
	}
	word := hlk.Word(r.Profile.WordOrder.Uint16(content[:2]))

	r.mu.Lock()
	r.received = append(r.received, word)
	silent := r.silent[word] || (word == hlk.WordReboot && !r.Profile.RebootAck)
	resp, ok := r.replies[word]
	r.mu.Unlock()

	if silent {
		return nil
	}
	if !ok {
		resp = []byte{0x00, 0x00}
	}
	ack := r.Profile.ExpectedAck(word)
	body := append(append([]byte(nil), ack...), resp...)
	return [][]byte{hlk.EncodeFrame(hlk.DownlinkHeader, hlk.DownlinkFooter, body)}
}

// Seed 预设型号连接初始化需要的典型应答
func (r *Radar) Seed() *Radar {
	word := func(op hlk.Op) hlk.Word {
		w, _ := r.Profile.Word(op)
		return w
	}
	switch r.Profile.Model {
	case hlk.ModelLD2410:
		r.Reply(hlk.WordEnableConfig, []byte{0x00, 0x00, 0x01, 0x00, 0x40, 0x00})
		r.Reply(word(hlk.OpReadParams), []byte{
			0x00, 0x00, 0xAA, 0x08, 0x08, 0x08,
			50, 50, 40, 30, 20, 15, 15, 15, 15,
			0, 0, 40, 40, 30, 30, 20, 20, 20,
			0x05, 0x00,
		})
		r.Reply(word(hlk.OpGetResolution), []byte{0x00, 0x00, 0x01, 0x00})
		r.Reply(word(hlk.OpGetLightConfig), []byte{0x00, 0x00, 0x01, 0x50, 0x01, 0x00})
	case hlk.ModelLD2412:
		r.Reply(hlk.WordReadFirmware, []byte{0x00, 0x00, 0x24, 0x00, 0x10, 0x01, 0x10, 0x18, 0x04, 0x24})
		r.Reply(word(hlk.OpReadBasicParams), []byte{0x00, 0x00, 0x01, 0x0D, 0x0A, 0x00, 0x01})
		r.Reply(word(hlk.OpReadMotionSens), []byte{0x00, 0x00, 50, 50, 50, 40, 40, 40, 30, 30, 30, 30, 20, 20, 20, 20})
		r.Reply(word(hlk.OpReadMotionlessSens), []byte{0x00, 0x00, 25, 25, 25, 25, 25, 25, 25, 25, 25, 25, 25, 25, 25, 25})
	}
	return r
}
