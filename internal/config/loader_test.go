package config

import (
	"testing"
	"time"
)

func TestLoadFailsWithMissingFile(t *testing.T) {
	if _, err := Load(testConfigPath(t, "absent.toml")); err == nil {
		t.Fatalf("不存在的配置文件应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
Namespace = "shop"
DefaultTTL = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsMinimalConfig(t *testing.T) {
	cfg := `
Namespace = "shop"

[Metadata]
Backend = "memory"

[Blob]
Backend = "memory"
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("最小配置应通过: %v", err)
	}
	if loaded.Global.ListenPort != 5000 || loaded.Global.BlobConcurrency != 8 {
		t.Fatalf("默认值未生效: %+v", loaded.Global)
	}
	if loaded.Global.HasUpstream() {
		t.Fatalf("未配置上游时 HasUpstream 应为 false")
	}
	if loaded.Global.UpstreamTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("UpstreamTimeout 默认值不符")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90")); err != nil || d.DurationValue() != 90*time.Second {
		t.Fatalf("整数秒解析失败: %v %s", err, d.DurationValue())
	}
	if err := d.UnmarshalText([]byte("2h")); err != nil || d.DurationValue() != 2*time.Hour {
		t.Fatalf("Duration 字符串解析失败: %v", err)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("非法值应报错")
	}
}
