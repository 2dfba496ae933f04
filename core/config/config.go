// Package config 从环境变量加载客户端配置。
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// 凭证存储后端。
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config 客户端配置。
type Config struct {
	BaseURL  string `env:"TOKENRETRY_BASE_URL" envDefault:"https://api.example.com"`
	LoginURL string `env:"TOKENRETRY_LOGIN_URL" envDefault:"https://api.example.com/v1/login"`

	Email        string `env:"TOKENRETRY_EMAIL"`
	Password     string `env:"TOKENRETRY_PASSWORD"`
	MembershipID string `env:"TOKENRETRY_MEMBERSHIP_ID"`

	RetryLimit       int           `env:"TOKENRETRY_RETRY_LIMIT" envDefault:"2"`
	MaxRetries       int           `env:"TOKENRETRY_MAX_RETRIES" envDefault:"3"`
	RefreshTimeout   time.Duration `env:"TOKENRETRY_REFRESH_TIMEOUT" envDefault:"30s"`
	CredentialHeader string        `env:"TOKENRETRY_CREDENTIAL_HEADER" envDefault:"Access-Token"`
	CredentialPrefix string        `env:"TOKENRETRY_CREDENTIAL_PREFIX"`

	Store      string        `env:"TOKENRETRY_STORE" envDefault:"memory"`
	RedisAddr  string        `env:"TOKENRETRY_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisKey   string        `env:"TOKENRETRY_REDIS_KEY" envDefault:"tokenretry:session"`
	RedisTTL   time.Duration `env:"TOKENRETRY_REDIS_TTL"`
	SQLitePath string        `env:"TOKENRETRY_SQLITE_PATH" envDefault:"tokenretry.db"`

	RateQPS   float64 `env:"TOKENRETRY_RATE_QPS"`
	RateBurst int     `env:"TOKENRETRY_RATE_BURST" envDefault:"1"`

	Concurrency int  `env:"TOKENRETRY_CONCURRENCY" envDefault:"8"`
	Debug       bool `env:"TOKENRETRY_DEBUG"`
}

// Load 读取环境变量并校验。
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查取值范围。
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("config: 不支持的存储后端 %q", c.Store)
	}
	if c.RetryLimit <= 0 {
		return fmt.Errorf("config: TOKENRETRY_RETRY_LIMIT 必须大于 0")
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("config: TOKENRETRY_REFRESH_TIMEOUT 必须大于 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("config: TOKENRETRY_CONCURRENCY 必须大于 0")
	}
	return nil
}
