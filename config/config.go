package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 进程级配置，全部来自环境变量（带默认值）
type Config struct {
	Addr     string `env:"PLAYERSYNC_ADDR" envDefault:":8080"`
	ServerID string `env:"PLAYERSYNC_SERVER_ID" envDefault:"server-1"`

	// Store 取值 redis | memory；memory 只适合单进程调试
	Store         string `env:"PLAYERSYNC_STORE" envDefault:"redis"`
	RedisAddr     string `env:"PLAYERSYNC_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"PLAYERSYNC_REDIS_PASSWORD"`
	RedisDB       int    `env:"PLAYERSYNC_REDIS_DB" envDefault:"0"`
	Channel       string `env:"PLAYERSYNC_CHANNEL" envDefault:"playersync"`

	CacheWriteTTL  time.Duration `env:"PLAYERSYNC_CACHE_WRITE_TTL" envDefault:"60s"`
	CacheAccessTTL time.Duration `env:"PLAYERSYNC_CACHE_ACCESS_TTL" envDefault:"15s"`
	DurableTTL     time.Duration `env:"PLAYERSYNC_DURABLE_TTL" envDefault:"120s"`
	OpTimeout      time.Duration `env:"PLAYERSYNC_OP_TIMEOUT" envDefault:"3s"`
	WriteRetries   uint          `env:"PLAYERSYNC_WRITE_RETRIES" envDefault:"3"`
	// RetryInterval 持久写入重试的初始退避间隔
	RetryInterval time.Duration `env:"PLAYERSYNC_RETRY_INTERVAL" envDefault:"200ms"`

	LogFile  string `env:"PLAYERSYNC_LOG_FILE" envDefault:"app.log"`
	LogLevel string `env:"PLAYERSYNC_LOG_LEVEL" envDefault:"info"`

	OTLPEndpoint string `env:"PLAYERSYNC_OTEL_ENDPOINT"`
}

// Load 解析环境变量并校验
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

// Validate 检查时长与后端取值
func (c Config) Validate() error {
	if c.CacheWriteTTL <= 0 || c.CacheAccessTTL <= 0 || c.DurableTTL <= 0 || c.OpTimeout <= 0 || c.RetryInterval <= 0 {
		return errors.New("config: durations must be positive")
	}
	if c.CacheAccessTTL > c.CacheWriteTTL {
		return fmt.Errorf("config: cache access ttl %s exceeds write ttl %s", c.CacheAccessTTL, c.CacheWriteTTL)
	}
	// 持久层必须比缓存活得久，否则兜底路径会和缓存赛跑
	if c.DurableTTL <= c.CacheWriteTTL {
		return fmt.Errorf("config: durable ttl %s must exceed cache write ttl %s", c.DurableTTL, c.CacheWriteTTL)
	}
	switch c.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.ServerID == "" {
		return errors.New("config: server id is required")
	}
	return nil
}
