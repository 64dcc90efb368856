package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dispatchbot/kv"
)

// memStore is a single-process fake of kv.Store for exercising the
// session machine without a live Redis instance.
type memStore struct {
	mu    sync.Mutex
	kv    map[string]string
	lists map[string][]string
}

var _ kv.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{kv: make(map[string]string), lists: make(map[string][]string)}
}

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return v, nil
}

func (m *memStore) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *memStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value
	return true, nil
}

func (m *memStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
		delete(m.lists, k)
	}
	return nil
}

func (m *memStore) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (m *memStore) RPush(ctx context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], values...)
	return nil
}

func (m *memStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	if stop < 0 || stop >= int64(len(l)) {
		stop = int64(len(l)) - 1
	}
	if start > stop || len(l) == 0 {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

func (m *memStore) LRem(ctx context.Context, key string, count int64, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	out := l[:0:0]
	for _, v := range l {
		if v != value {
			out = append(out, v)
		}
	}
	m.lists[key] = out
	return nil
}

func (m *memStore) LPop(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	if len(l) == 0 {
		return "", kv.ErrNotFound
	}
	v := l[0]
	m.lists[key] = l[1:]
	return v, nil
}

func (m *memStore) LLen(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

func (m *memStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	n := int64(len(l))
	if n == 0 {
		return nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		m.lists[key] = nil
		return nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	m.lists[key] = out
	return nil
}

func (m *memStore) Scan(ctx context.Context, pattern string) ([]string, error) { return nil, nil }

func (m *memStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = fmt.Sprintf("%d", 1)
	return 1, nil
}
