package pg

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Radar 设备记录
type Radar struct {
	ID         int64
	Address    string
	Model      string
	Name       string
	Firmware   *string
	MAC        *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastSeenAt *time.Time
}

// CommandLog 命令审计记录
type CommandLog struct {
	ID        int64
	Address   string
	RequestID uuid.UUID
	Op        string
	Result    string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// LinkEvent 链路状态变化
type LinkEvent struct {
	Address   string
	From      string
	To        string
	CreatedAt time.Time
}

// Repository 雷达审计持久化
type Repository struct {
	Pool *pgxpool.Pool

	mu  sync.RWMutex
	ids map[string]int64 // address -> radar id
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool, ids: make(map[string]int64)}
}

// EnsureRadar 返回设备ID，若不存在则插入
func (r *Repository) EnsureRadar(ctx context.Context, address, model, name string) (int64, error) {
	const q = `INSERT INTO radars (address, model, name)
               VALUES ($1, $2, $3)
               ON CONFLICT (address) DO UPDATE SET model = EXCLUDED.model, name = EXCLUDED.name, updated_at = NOW()
               RETURNING id`
	var id int64
	if err := r.Pool.QueryRow(ctx, q, address, model, name).Scan(&id); err != nil {
		return 0, err
	}
	r.mu.Lock()
	if r.ids == nil {
		r.ids = make(map[string]int64)
	}
	r.ids[address] = id
	r.mu.Unlock()
	return id, nil
}

// radarID 优先取缓存；未登记的地址按未知型号插入
func (r *Repository) radarID(ctx context.Context, address string) (int64, error) {
	r.mu.RLock()
	id, ok := r.ids[address]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}
	const q = `SELECT id FROM radars WHERE address = $1`
	err := r.Pool.QueryRow(ctx, q, address).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.EnsureRadar(ctx, address, "unknown", "")
	}
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.ids[address] = id
	r.mu.Unlock()
	return id, nil
}

// GetRadar 按地址查询
func (r *Repository) GetRadar(ctx context.Context, address string) (*Radar, error) {
	const q = `SELECT id, address, model, name, firmware, mac, created_at, updated_at, last_seen_at
               FROM radars WHERE address = $1`
	var d Radar
	err := r.Pool.QueryRow(ctx, q, address).Scan(&d.ID, &d.Address, &d.Model, &d.Name,
		&d.Firmware, &d.MAC, &d.CreatedAt, &d.UpdatedAt, &d.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateRadarInfo 更新固件版本与 MAC，空值不覆盖
func (r *Repository) UpdateRadarInfo(ctx context.Context, address, firmware, mac string) error {
	const q = `UPDATE radars SET
                   firmware = COALESCE(NULLIF($2, ''), firmware),
                   mac = COALESCE(NULLIF($3, ''), mac),
                   updated_at = NOW()
               WHERE address = $1`
	_, err := r.Pool.Exec(ctx, q, address, firmware, mac)
	return err
}

// TouchRadar 更新最近活动时间
func (r *Repository) TouchRadar(ctx context.Context, address string, t time.Time) error {
	const q = `UPDATE radars SET last_seen_at = GREATEST(COALESCE(last_seen_at, $2), $2) WHERE address = $1`
	_, err := r.Pool.Exec(ctx, q, address, t)
	return err
}

// InsertCommandLogs 批量插入命令审计
func (r *Repository) InsertCommandLogs(ctx context.Context, logs []CommandLog) error {
	if len(logs) == 0 {
		return nil
	}
	const q = `INSERT INTO radar_commands (radar_id, request_id, op, result, error, duration_ms, created_at)
               VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`
	batch := &pgx.Batch{}
	for _, l := range logs {
		id, err := r.radarID(ctx, l.Address)
		if err != nil {
			return err
		}
		var reqID *uuid.UUID
		if l.RequestID != uuid.Nil {
			v := l.RequestID
			reqID = &v
		}
		batch.Queue(q, id, reqID, l.Op, l.Result, l.Error, int(l.Duration.Milliseconds()), l.CreatedAt)
	}
	return r.Pool.SendBatch(ctx, batch).Close()
}

// InsertLinkEvents 批量插入链路状态变化
func (r *Repository) InsertLinkEvents(ctx context.Context, events []LinkEvent) error {
	if len(events) == 0 {
		return nil
	}
	const q = `INSERT INTO radar_link_events (radar_id, from_state, to_state, created_at) VALUES ($1, $2, $3, $4)`
	batch := &pgx.Batch{}
	for _, e := range events {
		id, err := r.radarID(ctx, e.Address)
		if err != nil {
			return err
		}
		batch.Queue(q, id, e.From, e.To, e.CreatedAt)
	}
	return r.Pool.SendBatch(ctx, batch).Close()
}

// ListCommandLogs 最近的命令审计，按时间倒序
func (r *Repository) ListCommandLogs(ctx context.Context, address string, limit int) ([]CommandLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const q = `SELECT c.id, d.address, c.request_id, c.op, c.result, COALESCE(c.error, ''), c.duration_ms, c.created_at
               FROM radar_commands c JOIN radars d ON d.id = c.radar_id
               WHERE d.address = $1
               ORDER BY c.created_at DESC, c.id DESC
               LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandLog
	for rows.Next() {
		var l CommandLog
		var reqID *uuid.UUID
		var ms int
		if err := rows.Scan(&l.ID, &l.Address, &reqID, &l.Op, &l.Result, &l.Error, &ms, &l.CreatedAt); err != nil {
			return nil, err
		}
		if reqID != nil {
			l.RequestID = *reqID
		}
		l.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, l)
	}
	return out, rows.Err()
}
