package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var objectStorePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.Namespace) == "" {
		return newFieldError("Global.Namespace", "不能为空")
	}
	if strings.ContainsAny(g.Namespace, ": /") {
		return newFieldError("Global.Namespace", "不允许包含冒号、空格或斜杠")
	}
	if g.DefaultTTL.DurationValue() <= 0 {
		return newFieldError("Global.DefaultTTL", "必须大于 0")
	}
	if g.UserTTL.DurationValue() <= 0 {
		return newFieldError("Global.UserTTL", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.BlobConcurrency <= 0 {
		return newFieldError("Global.BlobConcurrency", "必须大于 0")
	}
	if strings.TrimSpace(g.ImageField) == "" {
		return newFieldError("Global.ImageField", "不能为空")
	}
	if g.HasUpstream() {
		if err := validateUpstream(g.UpstreamBaseURL); err != nil {
			return fmt.Errorf("%s: %w", sectionField("", "UpstreamBaseURL"), err)
		}
	}

	if err := c.validateMetadata(); err != nil {
		return err
	}
	return c.validateBlob()
}

func (c *Config) validateMetadata() error {
	m := &c.Metadata
	kind, err := parseBackend(string(m.Backend), metadataBackends, BackendFile)
	if err != nil {
		return newFieldError(sectionField("Metadata", "Backend"), err.Error())
	}
	m.Backend = kind
	if kind.NeedsPath() && strings.TrimSpace(m.Path) == "" {
		return newFieldError(sectionField("Metadata", "Path"), "不能为空")
	}
	if kind == BackendRedis {
		if strings.TrimSpace(m.RedisAddr) == "" {
			return newFieldError(sectionField("Metadata", "RedisAddr"), "使用 redis 时必须提供")
		}
		if m.RedisDB < 0 {
			return newFieldError(sectionField("Metadata", "RedisDB"), "不能为负数")
		}
	}
	return nil
}

func (c *Config) validateBlob() error {
	b := &c.Blob
	kind, err := parseBackend(string(b.Backend), blobBackends, BackendFile)
	if err != nil {
		return newFieldError(sectionField("Blob", "Backend"), err.Error())
	}
	b.Backend = kind
	if kind.NeedsPath() && strings.TrimSpace(b.Path) == "" {
		return newFieldError(sectionField("Blob", "Path"), "不能为空")
	}
	if strings.TrimSpace(b.Database) == "" {
		return newFieldError(sectionField("Blob", "Database"), "不能为空")
	}
	if !objectStorePattern.MatchString(b.ObjectStore) {
		return newFieldError(sectionField("Blob", "ObjectStore"), "仅允许字母、数字与下划线")
	}
	if kind == BackendMinio {
		if strings.TrimSpace(b.MinioEndpoint) == "" {
			return newFieldError(sectionField("Blob", "MinioEndpoint"), "使用 minio 时必须提供")
		}
		if (b.MinioAccessKey == "") != (b.MinioSecretKey == "") {
			return newFieldError(sectionField("Blob", "MinioAccessKey/MinioSecretKey"), "必须同时提供或同时留空")
		}
	}
	return nil
}

func validateUpstream(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
