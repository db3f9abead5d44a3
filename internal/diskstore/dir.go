package diskstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound 表示条目不存在（或路径指向目录）。
var ErrNotFound = errors.New("disk entry not found")

// Dir 以 basePath 为根目录管理条目文件，同一实例可被多个 goroutine 复用。
type Dir struct {
	basePath string
	ext      string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// Open 创建（必要时）目录并返回 Dir；ext 为条目文件后缀，例如 ".json"。
func Open(basePath, ext string) (*Dir, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &Dir{
		basePath: abs,
		ext:      ext,
		locks:    make(map[string]*entryLock),
	}, nil
}

// Path 返回目录的绝对路径。
func (d *Dir) Path() string {
	return d.basePath
}

// Read 读取整个条目。
func (d *Dir) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := d.entryPath(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Write 通过临时文件 + rename 原子替换条目内容，失败时清理临时文件。
func (d *Dir) Write(ctx context.Context, name string, data []byte) error {
	unlock := d.lockEntry(name)
	defer unlock()

	filePath, err := d.entryPath(name)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".entry-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, bytes.NewReader(data))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// Remove 删除条目，不存在时视为成功。
func (d *Dir) Remove(ctx context.Context, name string) error {
	unlock := d.lockEntry(name)
	defer unlock()

	filePath, err := d.entryPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Dir) lockEntry(name string) func() {
	d.mu.Lock()
	lock := d.locks[name]
	if lock == nil {
		lock = &entryLock{}
		d.locks[name] = lock
	}
	lock.refs++
	d.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		d.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(d.locks, name)
		}
		d.mu.Unlock()
	}
}

// entryPath 把任意键转义为单层文件名，避免路径穿越。
func (d *Dir) entryPath(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("entry name required")
	}
	escaped := url.PathEscape(name)
	if escaped == "." || escaped == ".." {
		return "", errors.New("invalid entry name")
	}
	filePath := filepath.Join(d.basePath, escaped+d.ext)
	if filepath.Dir(filePath) != d.basePath {
		return "", errors.New("invalid entry path")
	}
	return filePath, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
