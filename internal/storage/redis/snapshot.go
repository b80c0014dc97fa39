package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const updatedAtField = "_updated_at"

// SnapshotEvent 快照变更广播
type SnapshotEvent struct {
	Address   string         `json:"address"`
	Model     string         `json:"model"`
	Snapshot  map[string]any `json:"snapshot"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SnapshotStore 设备快照镜像：每台设备一个 Hash，字段值为 JSON；变更同时 PUBLISH
type SnapshotStore struct {
	client  redis.UniversalClient
	prefix  string
	channel string
}

func NewSnapshotStore(client redis.UniversalClient, prefix, channel string) *SnapshotStore {
	if prefix == "" {
		prefix = "radar:"
	}
	if channel == "" {
		channel = prefix + "snapshots"
	}
	return &SnapshotStore{client: client, prefix: prefix, channel: channel}
}

func (s *SnapshotStore) key(address string) string {
	return s.prefix + "snapshot:" + address
}

// Channel 广播频道
func (s *SnapshotStore) Channel() string { return s.channel }

// Save 覆盖写入快照并广播
func (s *SnapshotStore) Save(ctx context.Context, address, model string, snapshot map[string]any) error {
	now := time.Now().UTC()
	values := make(map[string]any, len(snapshot)+1)
	for k, v := range snapshot {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", k, err)
		}
		values[k] = data
	}
	values[updatedAtField] = now.Format(time.RFC3339Nano)

	event, err := json.Marshal(SnapshotEvent{Address: address, Model: model, Snapshot: snapshot, UpdatedAt: now})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := s.key(address)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values)
	pipe.Publish(ctx, s.channel, event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot %s: %w", address, err)
	}
	return nil
}

// Load 读取快照，不存在时返回空 map
func (s *SnapshotStore) Load(ctx context.Context, address string) (map[string]any, time.Time, error) {
	raw, err := s.client.HGetAll(ctx, s.key(address)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load snapshot %s: %w", address, err)
	}
	out := make(map[string]any, len(raw))
	var updated time.Time
	for k, v := range raw {
		if k == updatedAtField {
			updated, _ = time.Parse(time.RFC3339Nano, v)
			continue
		}
		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			continue
		}
		out[k] = val
	}
	return out, updated, nil
}

// Delete 删除快照
func (s *SnapshotStore) Delete(ctx context.Context, address string) error {
	return s.client.Del(ctx, s.key(address)).Err()
}

// Subscribe 订阅快照广播，ctx 结束时退出
func (s *SnapshotStore) Subscribe(ctx context.Context, fn func(SnapshotEvent)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev SnapshotEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			fn(ev)
		}
	}
}
