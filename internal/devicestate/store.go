// Package devicestate 设备快照：遥测与命令结果按键合并，变更时通知订阅者
package devicestate

import (
	"reflect"
	"sync"
)

// Store 单个设备的快照，只通过 Merge 修改
type Store struct {
	mu   sync.RWMutex
	data map[string]any

	subMu sync.Mutex
	subs  map[uint64]func()
	next  uint64
}

func New() *Store {
	return &Store{data: make(map[string]any), subs: make(map[uint64]func())}
}

// Merge 逐键合并，nil 不覆盖已知值；嵌套 map 递归一层。
// 数据实际变化时同步回调全部订阅者一次，返回是否变化。
func (s *Store) Merge(fields map[string]any) bool {
	s.mu.Lock()
	changed := mergeInto(s.data, fields, true)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

func mergeInto(dst, src map[string]any, recurse bool) bool {
	changed := false
	for k, v := range src {
		old, exists := dst[k]
		if nested, ok := v.(map[string]any); ok && recurse {
			cur, isMap := old.(map[string]any)
			if !isMap {
				cur = make(map[string]any, len(nested))
			} else {
				cur = cloneMap(cur)
			}
			if mergeInto(cur, nested, false) || !isMap {
				dst[k] = cur
				changed = true
			}
			continue
		}
		if v == nil {
			if !exists {
				dst[k] = nil
				changed = true
			}
			continue
		}
		if !exists || !reflect.DeepEqual(old, v) {
			dst[k] = cloneValue(v)
			changed = true
		}
	}
	return changed
}

// Get 读取单个字段
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return cloneValue(v), ok
}

// Snapshot 返回一份拷贝（含嵌套 map 与切片），调用方可自由修改
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.data)
}

// Len 已知字段数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Subscribe 注册变更回调，返回的取消函数可重复调用
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue 复制 map 与切片，其余值原样返回
func cloneValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.IsNil() {
		return v
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(out, rv)
	return out.Interface()
}
