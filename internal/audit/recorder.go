// Package audit 把命令结果与链路变化异步批量写入 PostgreSQL
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/metrics"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
	"github.com/taoyao-code/hlk-radar/internal/storage/pg"
)

// Sink 审计存储
type Sink interface {
	InsertCommandLogs(ctx context.Context, logs []pg.CommandLog) error
	InsertLinkEvents(ctx context.Context, events []pg.LinkEvent) error
	TouchRadar(ctx context.Context, address string, t time.Time) error
	UpdateRadarInfo(ctx context.Context, address, firmware, mac string) error
}

type info struct {
	firmware string
	mac      string
}

// Recorder 实现 driver.Observer；回调只入队，不阻塞驱动
type Recorder struct {
	driver.NopObserver

	sink      Sink
	log       *zap.Logger
	Interval  time.Duration
	BatchSize int

	commands chan pg.CommandLog
	links    chan pg.LinkEvent
	dropped  atomic.Int64

	mu    sync.Mutex
	seen  map[string]time.Time
	infos map[string]info

	now func() time.Time
}

var _ driver.Observer = (*Recorder)(nil)

func New(sink Sink, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		sink:      sink,
		log:       log,
		Interval:  2 * time.Second,
		BatchSize: 100,
		commands:  make(chan pg.CommandLog, 1024),
		links:     make(chan pg.LinkEvent, 256),
		seen:      make(map[string]time.Time),
		infos:     make(map[string]info),
		now:       time.Now,
	}
}

// Dropped 队列满时丢弃的记录数
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) CommandDone(address string, _ hlk.Model, op hlk.Op, d time.Duration, err error) {
	r.Command(address, uuid.Nil, string(op), d, err)
	if err == nil {
		r.markSeen(address)
	}
}

// Command 记录一条命令；API 层调用时带请求ID
func (r *Recorder) Command(address string, requestID uuid.UUID, op string, d time.Duration, err error) {
	l := pg.CommandLog{
		Address:   address,
		RequestID: requestID,
		Op:        op,
		Result:    metrics.Result(err),
		Duration:  d,
		CreatedAt: r.now(),
	}
	if err != nil {
		l.Error = err.Error()
	}
	select {
	case r.commands <- l:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) LinkStateChanged(address string, from, to driver.State) {
	select {
	case r.links <- pg.LinkEvent{Address: address, From: from.String(), To: to.String(), CreatedAt: r.now()}:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) TelemetryDecoded(address string, _ string, err error) {
	if err == nil {
		r.markSeen(address)
	}
}

func (r *Recorder) markSeen(address string) {
	r.mu.Lock()
	r.seen[address] = r.now()
	r.mu.Unlock()
}

// Info 记录设备固件与 MAC，空值忽略
func (r *Recorder) Info(address, firmware, mac string) {
	if firmware == "" && mac == "" {
		return
	}
	r.mu.Lock()
	cur := r.infos[address]
	if firmware != "" {
		cur.firmware = firmware
	}
	if mac != "" {
		cur.mac = mac
	}
	r.infos[address] = cur
	r.mu.Unlock()
}

// Run 批量写入循环；ctx 结束时写完剩余记录
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	var cmds []pg.CommandLog
	var links []pg.LinkEvent
	flush := func(ctx context.Context) {
		r.flush(ctx, cmds, links)
		cmds, links = cmds[:0], links[:0]
	}

	for {
		select {
		case <-ctx.Done():
			cmds, links = r.drain(cmds, links)
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(fctx)
			cancel()
			return
		case l := <-r.commands:
			cmds = append(cmds, l)
			if len(cmds) >= r.BatchSize {
				flush(ctx)
			}
		case e := <-r.links:
			links = append(links, e)
			if len(links) >= r.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (r *Recorder) drain(cmds []pg.CommandLog, links []pg.LinkEvent) ([]pg.CommandLog, []pg.LinkEvent) {
	for {
		select {
		case l := <-r.commands:
			cmds = append(cmds, l)
		case e := <-r.links:
			links = append(links, e)
		default:
			return cmds, links
		}
	}
}

// flush 链路事件先于命令写入
func (r *Recorder) flush(ctx context.Context, cmds []pg.CommandLog, links []pg.LinkEvent) {
	if err := r.sink.InsertLinkEvents(ctx, links); err != nil {
		r.log.Warn("audit link events failed", zap.Int("count", len(links)), zap.Error(err))
	}
	if err := r.sink.InsertCommandLogs(ctx, cmds); err != nil {
		r.log.Warn("audit commands failed", zap.Int("count", len(cmds)), zap.Error(err))
	}

	r.mu.Lock()
	seen, infos := r.seen, r.infos
	r.seen = make(map[string]time.Time)
	r.infos = make(map[string]info)
	r.mu.Unlock()

	for address, t := range seen {
		if err := r.sink.TouchRadar(ctx, address, t); err != nil {
			r.log.Debug("audit touch failed", zap.String("device", address), zap.Error(err))
		}
	}
	for address, in := range infos {
		if err := r.sink.UpdateRadarInfo(ctx, address, in.firmware, in.mac); err != nil {
			r.log.Warn("audit radar info failed", zap.String("device", address), zap.Error(err))
		}
	}
}

// InfoSource 提供快照的设备
type InfoSource interface {
	Address() string
	Subscribe(fn func()) func()
	Snapshot() map[string]any
}

// Watch 快照中固件或 MAC 变化时登记，返回取消函数
func (r *Recorder) Watch(src InfoSource) func() {
	address := src.Address()
	var last info
	var mu sync.Mutex
	return src.Subscribe(func() {
		snap := src.Snapshot()
		fw, _ := snap["firmware_version"].(string)
		mac, _ := snap["mac_address"].(string)
		mu.Lock()
		changed := fw != last.firmware || mac != last.mac
		last = info{firmware: fw, mac: mac}
		mu.Unlock()
		if changed {
			r.Info(address, fw, mac)
		}
	})
}
