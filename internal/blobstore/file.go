package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/helseflora/floracache/internal/diskstore"
)

// FileBackend 将图片写入 <Path>/<Database>/<ObjectStore>/<id>.blob，
// 文件首行为 MIME 类型，其后为原始字节。
type FileBackend struct {
	dir *diskstore.Dir
}

// NewFileBackend 在 basePath 下按 loc 创建目录。
func NewFileBackend(basePath string, loc Location) (*FileBackend, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	loc = loc.normalized()
	dir, err := diskstore.Open(filepath.Join(basePath, loc.Database, loc.ObjectStore), ".blob")
	if err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) Put(ctx context.Context, id string, blob Blob) error {
	buf := make([]byte, 0, len(blob.MIME)+1+len(blob.Data))
	buf = append(buf, blob.MIME...)
	buf = append(buf, '\n')
	buf = append(buf, blob.Data...)
	return f.dir.Write(ctx, id, buf)
}

func (f *FileBackend) Get(ctx context.Context, id string) (Blob, error) {
	raw, err := f.dir.Read(ctx, id)
	if errors.Is(err, diskstore.ErrNotFound) {
		return Blob{}, ErrNotFound
	}
	if err != nil {
		return Blob{}, err
	}
	idx := bytes.IndexByte(raw, '\n')
	if idx < 0 {
		return Blob{}, fmt.Errorf("blob %s: missing mime header", id)
	}
	return Blob{MIME: string(raw[:idx]), Data: raw[idx+1:]}, nil
}

func (f *FileBackend) Delete(ctx context.Context, id string) error {
	return f.dir.Remove(ctx, id)
}
