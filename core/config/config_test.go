package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("默认配置应合法: %v", err)
	}
	if cfg.RetryLimit != 2 || cfg.RefreshTimeout != 30*time.Second || cfg.Store != StoreMemory {
		t.Fatalf("默认值不符: %+v", cfg)
	}
	if cfg.CredentialHeader != "Access-Token" {
		t.Fatalf("默认凭证头不符: %q", cfg.CredentialHeader)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TOKENRETRY_STORE", "redis")
	t.Setenv("TOKENRETRY_RETRY_LIMIT", "3")
	t.Setenv("TOKENRETRY_REFRESH_TIMEOUT", "5s")
	t.Setenv("TOKENRETRY_EMAIL", "a@b.c")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Store != StoreRedis || cfg.RetryLimit != 3 || cfg.RefreshTimeout != 5*time.Second || cfg.Email != "a@b.c" {
		t.Fatalf("环境变量未生效: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		t.Setenv("TOKENRETRY_STORE", "etcd")
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "etcd") {
			t.Fatalf("未知存储后端应报错，实际 %v", err)
		}
	})
	t.Run("parse", func(t *testing.T) {
		t.Setenv("TOKENRETRY_RETRY_LIMIT", "two")
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse env:") {
			t.Fatalf("非法数字应报解析错误，实际 %v", err)
		}
	})
	t.Run("limit", func(t *testing.T) {
		t.Setenv("TOKENRETRY_RETRY_LIMIT", "0")
		if _, err := Load(); err == nil {
			t.Fatal("重试上限为 0 应报错")
		}
	})
}
