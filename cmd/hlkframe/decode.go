package main

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

// Decoded 单帧解析结果
type Decoded struct {
	Raw     string         `json:"raw"`
	Route   string         `json:"route"`
	Op      hlk.Op         `json:"op,omitempty"`
	Kind    string         `json:"kind,omitempty"` // ack / command
	Status  *uint16        `json:"status,omitempty"`
	Payload string         `json:"payload,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Error   string         `json:"error,omitempty"`
}

var errUnknownWord = errors.New("unknown command word")

// parseHex 接受空格、冒号、逗号分隔或带 0x 前缀的十六进制
func parseHex(s string) ([]byte, error) {
	r := strings.NewReplacer(" ", "", ":", "", ",", "", "\n", "", "\r", "", "\t", "", "0x", "", "0X", "")
	return hex.DecodeString(r.Replace(s))
}

// decodeStream 切分字节流后逐帧解析
func decodeStream(p *hlk.Profile, data []byte) []Decoded {
	sd := hlk.NewStreamDecoder()
	var out []Decoded
	for _, frame := range sd.Feed(data) {
		out = append(out, decodeFrame(p, frame))
	}
	return out
}

func decodeFrame(p *hlk.Profile, frame []byte) Decoded {
	route := p.Route(frame)
	d := Decoded{Raw: hex.EncodeToString(frame), Route: route.String()}
	switch route {
	case hlk.RouteTelemetry:
		reading, err := p.DecodeTelemetry(frame)
		if err != nil {
			d.Error = err.Error()
			return d
		}
		d.Fields = reading.Fields()
	case hlk.RouteAck:
		if err := decodeDownlink(p, frame, &d); err != nil {
			d.Error = err.Error()
		}
	default:
		d.Error = "unknown frame header"
	}
	return d
}

// decodeDownlink 先按应答匹配，匹配不到再按主机命令匹配
func decodeDownlink(p *hlk.Profile, frame []byte, d *Decoded) error {
	content := hlk.Unwrap(frame, hlk.DownlinkHeader, hlk.DownlinkFooter)
	if len(content) < 2 {
		return hlk.ErrShortResponse
	}
	for _, op := range p.Ops() {
		word, _ := p.Word(op)
		if !bytes.Equal(content[:2], p.ExpectedAck(word)) {
			continue
		}
		d.Op, d.Kind = op, "ack"
		resp, err := p.ValidateResponse(word, frame)
		if err != nil {
			return err
		}
		if len(resp) >= 2 {
			st := binary.LittleEndian.Uint16(resp)
			d.Status = &st
		}
		if len(resp) > 2 {
			d.Payload = hex.EncodeToString(resp[2:])
		}
		if err := hlk.CheckStatus(op, resp); err != nil {
			return err
		}
		d.Fields = ackFields(op, resp)
		return nil
	}
	for _, op := range p.Ops() {
		word, _ := p.Word(op)
		if bytes.Equal(content[:2], p.WireWord(word)) {
			d.Op, d.Kind = op, "command"
			if len(content) > 2 {
				d.Payload = hex.EncodeToString(content[2:])
			}
			return nil
		}
	}
	return errUnknownWord
}

// ackFields 解析常见查询应答的内容
func ackFields(op hlk.Op, resp []byte) map[string]any {
	switch op {
	case hlk.OpReadParams:
		if params, err := hlk.ParseParams(resp); err == nil {
			return params.Fields()
		}
	case hlk.OpReadFirmware:
		if fw, err := hlk.ParseFirmware(resp); err == nil {
			return map[string]any{"firmware_type": fw.Type, "firmware": fw.Version}
		}
	case hlk.OpEnableConfig:
		if cs, err := hlk.ParseConfigSession(resp); err == nil {
			return map[string]any{"protocol_version": cs.ProtocolVersion, "buffer_size": cs.BufferSize}
		}
	case hlk.OpQueryAutoThreshold:
		if v, err := hlk.ParseU16(op, resp); err == nil {
			return map[string]any{"auto_threshold": hlk.AutoThresholdState(v).String()}
		}
	}
	return nil
}
