package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"1h" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：监听端口、日志、TTL 与上游 API。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	Namespace       string   `mapstructure:"Namespace"`
	DefaultTTL      Duration `mapstructure:"DefaultTTL"`
	UserTTL         Duration `mapstructure:"UserTTL"`
	UpstreamBaseURL string   `mapstructure:"UpstreamBaseURL"`
	UpstreamKey     string   `mapstructure:"UpstreamKey"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	BlobConcurrency int      `mapstructure:"BlobConcurrency"`
	ImageField      string   `mapstructure:"ImageField"`
	MarkerField     string   `mapstructure:"MarkerField"`
}

// MetadataConfig 选择信封存储后端。
type MetadataConfig struct {
	Backend       BackendKind `mapstructure:"Backend"`
	Path          string      `mapstructure:"Path"`
	RedisAddr     string      `mapstructure:"RedisAddr"`
	RedisPassword string      `mapstructure:"RedisPassword"`
	RedisDB       int         `mapstructure:"RedisDB"`
}

// BlobConfig 选择图片存储后端及其数据库/对象仓库命名。
type BlobConfig struct {
	Backend        BackendKind `mapstructure:"Backend"`
	Path           string      `mapstructure:"Path"`
	Database       string      `mapstructure:"Database"`
	ObjectStore    string      `mapstructure:"ObjectStore"`
	MinioEndpoint  string      `mapstructure:"MinioEndpoint"`
	MinioAccessKey string      `mapstructure:"MinioAccessKey"`
	MinioSecretKey string      `mapstructure:"MinioSecretKey"`
	MinioUseSSL    bool        `mapstructure:"MinioUseSSL"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Metadata MetadataConfig `mapstructure:"Metadata"`
	Blob     BlobConfig     `mapstructure:"Blob"`
}

// HasUpstream 表示是否配置了上游 API，未配置时 /api 路由不注册。
func (g GlobalConfig) HasUpstream() bool {
	return strings.TrimSpace(g.UpstreamBaseURL) != ""
}

// BackendSummary 返回形如 metadata:sqlite blob:minio 的摘要，供启动日志使用。
func (c *Config) BackendSummary() []string {
	return []string{
		fmt.Sprintf("metadata:%s", c.Metadata.Backend),
		fmt.Sprintf("blob:%s", c.Blob.Backend),
	}
}
