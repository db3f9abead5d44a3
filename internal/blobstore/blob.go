package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound 表示 id 对应的图片不存在。
var ErrNotFound = errors.New("blob not found")

// Blob 是原始图片字节及其 MIME 类型。
type Blob struct {
	MIME string
	Data []byte
}

// Backend 是事务性的二进制对象存储，同一 id 以最后一次写入为准。
type Backend interface {
	Put(ctx context.Context, id string, blob Blob) error
	// Get 返回 id 对应的图片；不存在时返回 ErrNotFound。
	Get(ctx context.Context, id string) (Blob, error)
	Delete(ctx context.Context, id string) error
}

// GetError 是读取失败的类型化错误，Err 可能是 ErrNotFound 或后端错误。
type GetError struct {
	ID  string
	Err error
}

func (e *GetError) Error() string {
	return fmt.Sprintf("get blob %s: %v", e.ID, e.Err)
}

func (e *GetError) Unwrap() error {
	return e.Err
}

// NotFound 报告失败是否只是缺失。
func (e *GetError) NotFound() bool {
	return errors.Is(e.Err, ErrNotFound)
}

// Location 决定物理存储位置：数据库名与其中的对象仓库名。
type Location struct {
	Database    string
	ObjectStore string
}

// DefaultLocation 与浏览器端 IndexedDB 的命名保持一致。
var DefaultLocation = Location{Database: "images", ObjectStore: "imageStore"}

func (l Location) normalized() Location {
	if strings.TrimSpace(l.Database) == "" {
		l.Database = DefaultLocation.Database
	}
	if strings.TrimSpace(l.ObjectStore) == "" {
		l.ObjectStore = DefaultLocation.ObjectStore
	}
	return l
}

// MemoryBackend 是进程内实现，供测试与 Backend = "memory" 使用。
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewMemoryBackend 创建空的内存后端。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string]Blob)}
}

func (m *MemoryBackend) Put(_ context.Context, id string, blob Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = Blob{MIME: blob.MIME, Data: append([]byte(nil), blob.Data...)}
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, id string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[id]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return Blob{MIME: blob.MIME, Data: append([]byte(nil), blob.Data...)}, nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
	return nil
}

// Len 返回当前图片数量。
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
