// hlkframe 离线解析 HLK 雷达帧（十六进制），用于抓包排查
//
//	hlkframe -model ld2412 f4f3f2f10b0002aa016400...
//	cat capture.hex | hlkframe -model ld2410
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
)

func main() {
	model := flag.String("model", "ld2410", "radar model (ld2410 / ld2412)")
	compact := flag.Bool("compact", false, "one JSON object per line")
	flag.Parse()

	if err := run(*model, *compact, flag.Args(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "hlkframe: %v\n", err)
		os.Exit(1)
	}
}

func run(model string, compact bool, args []string, in io.Reader, out io.Writer) error {
	p, err := hlk.ProfileFor(model)
	if err != nil {
		return err
	}
	input := strings.Join(args, " ")
	if input == "" {
		data, err := readAll(in)
		if err != nil {
			return err
		}
		input = data
	}
	raw, err := parseHex(input)
	if err != nil {
		return fmt.Errorf("parse hex: %w", err)
	}
	frames := decodeStream(p, raw)
	if len(frames) == 0 {
		return fmt.Errorf("no complete frame in %d bytes", len(raw))
	}

	enc := json.NewEncoder(out)
	if !compact {
		enc.SetIndent("", "  ")
	}
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// readAll 读取标准输入，忽略 # 开头的注释行
func readAll(in io.Reader) (string, error) {
	var sb strings.Builder
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sb.WriteString(line)
	}
	return sb.String(), sc.Err()
}
