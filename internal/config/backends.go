package config

import (
	"fmt"
	"strings"
)

// BackendKind 标识存储后端类型。
//   - memory：进程内存，重启即丢失，适合测试与演示。
//   - file：Path 目录下的单文件存储。
//   - sqlite：Path 下的 SQLite 数据库（modernc 纯 Go 驱动）。
//   - redis：仅元数据可用，RedisAddr 指定实例。
//   - minio：仅图片可用，对象仓库映射为 bucket 前缀。
type BackendKind string

const (
	BackendMemory BackendKind = "memory"
	BackendFile   BackendKind = "file"
	BackendSQLite BackendKind = "sqlite"
	BackendRedis  BackendKind = "redis"
	BackendMinio  BackendKind = "minio"
)

var (
	metadataBackends = []BackendKind{BackendMemory, BackendFile, BackendSQLite, BackendRedis}
	blobBackends     = []BackendKind{BackendMemory, BackendFile, BackendSQLite, BackendMinio}
)

// parseBackend 将配置中的后端名称标准化，空值回退到 fallback。
func parseBackend(raw string, allowed []BackendKind, fallback BackendKind) (BackendKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return fallback, nil
	}
	for _, kind := range allowed {
		if string(kind) == normalized {
			return kind, nil
		}
	}
	return "", fmt.Errorf("不支持的后端: %s（可选 %s）", raw, joinBackends(allowed))
}

// NeedsPath 表示后端是否依赖本地目录。
func (k BackendKind) NeedsPath() bool {
	return k == BackendFile || k == BackendSQLite
}

func joinBackends(kinds []BackendKind) string {
	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = string(kind)
	}
	return strings.Join(names, "|")
}
