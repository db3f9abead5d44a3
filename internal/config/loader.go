package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyStorageDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, target := range []*string{&cfg.Metadata.Path, &cfg.Blob.Path} {
		if *target == "" {
			continue
		}
		abs, err := filepath.Abs(*target)
		if err != nil {
			return nil, fmt.Errorf("无法解析存储目录: %w", err)
		}
		*target = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Namespace", "floracache")
	v.SetDefault("DefaultTTL", "1h")
	v.SetDefault("UserTTL", "12h")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("BlobConcurrency", 8)
	v.SetDefault("ImageField", "thumb")
	v.SetDefault("MarkerField", "discount")
	v.SetDefault("Metadata.Backend", string(BackendFile))
	v.SetDefault("Metadata.Path", "./storage/metadata")
	v.SetDefault("Blob.Backend", string(BackendFile))
	v.SetDefault("Blob.Path", "./storage/blobs")
	v.SetDefault("Blob.Database", "images")
	v.SetDefault("Blob.ObjectStore", "imageStore")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	g.Namespace = strings.TrimSpace(g.Namespace)
	if g.DefaultTTL.DurationValue() == 0 {
		g.DefaultTTL = Duration(time.Hour)
	}
	if g.UserTTL.DurationValue() == 0 {
		g.UserTTL = Duration(12 * time.Hour)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.BlobConcurrency == 0 {
		g.BlobConcurrency = 8
	}
	g.UpstreamBaseURL = strings.TrimRight(strings.TrimSpace(g.UpstreamBaseURL), "/")
}

func applyStorageDefaults(cfg *Config) {
	cfg.Metadata.Backend = BackendKind(strings.ToLower(strings.TrimSpace(string(cfg.Metadata.Backend))))
	cfg.Blob.Backend = BackendKind(strings.ToLower(strings.TrimSpace(string(cfg.Blob.Backend))))
	if cfg.Blob.Database == "" {
		cfg.Blob.Database = "images"
	}
	if cfg.Blob.ObjectStore == "" {
		cfg.Blob.ObjectStore = "imageStore"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
