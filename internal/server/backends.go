package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/helseflora/floracache/internal/blobstore"
	"github.com/helseflora/floracache/internal/config"
	"github.com/helseflora/floracache/internal/metastore"
)

const metadataDBName = "metadata.db"

// Backends 持有根据配置打开的存储后端；Blobs 为 nil 表示图片存储不可用。
type Backends struct {
	Metadata metastore.Backend
	Blobs    blobstore.Backend
	closers  []io.Closer
}

// OpenBackends 按配置打开元数据与图片后端。元数据后端失败直接返回错误；
// 图片后端失败只记录告警，缓存退化为“图片缺失”模式继续运行。
func OpenBackends(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Backends, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	b := &Backends{}
	meta, err := b.openMetadata(ctx, cfg.Metadata)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open metadata backend %s: %w", cfg.Metadata.Backend, err)
	}
	b.Metadata = meta

	blobs, err := b.openBlobs(ctx, cfg.Blob)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action":  "blob_backend_open",
			"backend": string(cfg.Blob.Backend),
		}).Warn("blob_backend_unavailable")
	} else {
		b.Blobs = blobs
	}
	return b, nil
}

func (b *Backends) openMetadata(ctx context.Context, cfg config.MetadataConfig) (metastore.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return metastore.NewMemoryBackend(), nil
	case config.BackendFile, "":
		return metastore.NewFileBackend(cfg.Path)
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, err
		}
		backend, err := metastore.OpenSQLite(filepath.Join(cfg.Path, metadataDBName))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, backend)
		return backend, nil
	case config.BackendRedis:
		backend := metastore.NewRedisBackend(metastore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b.closers = append(b.closers, backend)
		if err := backend.Ping(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported metadata backend %q", cfg.Backend)
	}
}

func (b *Backends) openBlobs(ctx context.Context, cfg config.BlobConfig) (blobstore.Backend, error) {
	loc := blobstore.Location{Database: cfg.Database, ObjectStore: cfg.ObjectStore}
	switch cfg.Backend {
	case config.BackendMemory:
		return blobstore.NewMemoryBackend(), nil
	case config.BackendFile, "":
		return blobstore.NewFileBackend(cfg.Path, loc)
	case config.BackendSQLite:
		backend, err := blobstore.OpenSQLite(cfg.Path, loc)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, backend)
		return backend, nil
	case config.BackendMinio:
		return blobstore.NewMinioBackend(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Location:  loc,
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.Backend)
	}
}

// Close 关闭持有连接的后端（sqlite、redis）。
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
