package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrCorrupt 表示存储的字节无法解析为信封，调用方应按缺失处理。
var ErrCorrupt = errors.New("metadata entry corrupt")

// Store 在 Backend 之上提供信封编解码与命名空间隔离。
type Store struct {
	backend   Backend
	namespace string
}

// NewStore 绑定后端与命名空间；两者均为必填。
func NewStore(backend Backend, namespace string) (*Store, error) {
	if backend == nil {
		return nil, errors.New("metadata backend required")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, errors.New("metadata namespace required")
	}
	return &Store{backend: backend, namespace: namespace}, nil
}

// Namespace 返回键前缀。
func (s *Store) Namespace() string {
	return s.namespace
}

// Get 读取信封。缺失返回 ErrNotFound，无法解析返回包装了 ErrCorrupt 的错误，
// 其余为后端错误；三者对缓存语义都等价于“不存在”。
func (s *Store) Get(ctx context.Context, key string) (Envelope, error) {
	raw, err := s.backend.Get(ctx, s.qualify(key))
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return env, nil
}

// Put 整体覆盖写入信封。
func (s *Store) Put(ctx context.Context, key string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return s.backend.Put(ctx, s.qualify(key), raw)
}

// Delete 幂等删除。
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.qualify(key))
}

func (s *Store) qualify(key string) string {
	return s.namespace + ":" + key
}
