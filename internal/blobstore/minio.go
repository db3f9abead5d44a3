package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig 描述 S3 兼容存储的连接参数；Bucket 取 Location.Database，
// 对象键前缀取 Location.ObjectStore。
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Location  Location

	// Client 可选，测试或复用连接时注入。
	Client *minio.Client
}

func (c MinioConfig) validate() error {
	if c.Client == nil && strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("minio endpoint required")
	}
	return nil
}

// MinioBackend 每张图片对应一个对象，Content-Type 保存 MIME。
type MinioBackend struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioBackend 创建客户端并确保 bucket 存在。
func NewMinioBackend(ctx context.Context, cfg MinioConfig) (*MinioBackend, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc := cfg.Location.normalized()

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}

	backend := &MinioBackend{
		client: client,
		bucket: strings.ToLower(loc.Database),
		prefix: strings.Trim(loc.ObjectStore, "/") + "/",
	}
	if err := backend.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func (m *MinioBackend) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *MinioBackend) objectKey(id string) string {
	return m.prefix + id
}

func (m *MinioBackend) Put(ctx context.Context, id string, blob Blob) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.objectKey(id),
		bytes.NewReader(blob.Data), int64(len(blob.Data)),
		minio.PutObjectOptions{ContentType: blob.MIME},
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", id, err)
	}
	return nil
}

func (m *MinioBackend) Get(ctx context.Context, id string) (Blob, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return Blob{}, translateMinioError(id, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return Blob{}, translateMinioError(id, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return Blob{}, translateMinioError(id, err)
	}
	return Blob{MIME: info.ContentType, Data: data}, nil
}

func (m *MinioBackend) Delete(ctx context.Context, id string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, m.objectKey(id), minio.RemoveObjectOptions{}); err != nil {
		return translateMinioError(id, err)
	}
	return nil
}

func translateMinioError(id string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("object %s: %w", id, err)
}
