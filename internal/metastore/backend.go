package metastore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound 表示键不存在。
var ErrNotFound = errors.New("metadata entry not found")

// Backend 是同步的键值存储，按单键粒度整体覆盖写入。
type Backend interface {
	// Get 返回键对应的原始字节；不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) ([]byte, error)

	// Put 覆盖或插入键值，调用方不可观察到部分写入。
	Put(ctx context.Context, key string, value []byte) error

	// Delete 删除键；不存在时为 no-op。
	Delete(ctx context.Context, key string) error
}

// MemoryBackend 是进程内实现，主要用于测试与 Backend = "memory"。
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryBackend 创建空的内存后端。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len 返回当前条目数。
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
