package blobstore

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// FailureHook 在写入或读取失败时被调用，op 为 "put" 或 "get"。
type FailureHook func(op, id string, err error)

// Store 包装 Backend：写入尽力而为，读取失败统一为 *GetError。
type Store struct {
	backend   Backend
	logger    *logrus.Logger
	onFailure FailureHook
}

// NewStore 创建 Store；backend 为 nil 时所有写入被丢弃、读取返回 ErrNotFound，
// 对应“后端无法打开”的降级场景。
func NewStore(backend Backend, logger *logrus.Logger, hook FailureHook) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{backend: backend, logger: logger, onFailure: hook}
}

// Available 返回是否存在可用后端。
func (s *Store) Available() bool {
	return s.backend != nil
}

// Put 写入失败只记录日志，不向调用方传播：缺图只会导致下次重新拉取。
func (s *Store) Put(ctx context.Context, id string, blob Blob) bool {
	var err error
	switch {
	case strings.TrimSpace(id) == "":
		err = errors.New("blob id required")
	case s.backend == nil:
		err = errors.New("blob backend unavailable")
	default:
		err = s.backend.Put(ctx, id, blob)
	}
	if err != nil {
		s.fail("put", id, err)
		return false
	}
	return true
}

// Get 读取图片，任何失败都以 *GetError 返回。
func (s *Store) Get(ctx context.Context, id string) (Blob, error) {
	if s.backend == nil {
		err := &GetError{ID: id, Err: ErrNotFound}
		s.fail("get", id, err.Err)
		return Blob{}, err
	}
	blob, err := s.backend.Get(ctx, id)
	if err != nil {
		s.fail("get", id, err)
		return Blob{}, &GetError{ID: id, Err: err}
	}
	return blob, nil
}

func (s *Store) fail(op, id string, err error) {
	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"action":  "blob_" + op,
		"blob_id": id,
	})
	if errors.Is(err, ErrNotFound) {
		entry.Debug("blob_missing")
	} else {
		entry.Warn("blob_" + op + "_failed")
	}
	if s.onFailure != nil {
		s.onFailure(op, id, err)
	}
}
