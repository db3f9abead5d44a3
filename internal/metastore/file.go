package metastore

import (
	"context"
	"errors"

	"github.com/helseflora/floracache/internal/diskstore"
)

// FileBackend 每个键对应 <Path>/<escaped key>.json 一个文件。
type FileBackend struct {
	dir *diskstore.Dir
}

// NewFileBackend 在 basePath 下打开（或创建）元数据目录。
func NewFileBackend(basePath string) (*FileBackend, error) {
	dir, err := diskstore.Open(basePath, ".json")
	if err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := f.dir.Read(ctx, key)
	if errors.Is(err, diskstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (f *FileBackend) Put(ctx context.Context, key string, value []byte) error {
	return f.dir.Write(ctx, key, value)
}

func (f *FileBackend) Delete(ctx context.Context, key string) error {
	return f.dir.Remove(ctx, key)
}
