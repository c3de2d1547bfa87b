package main

import (
	"fmt"
	"os"
	"time"

	"intervue/internal/common/cache"
	"intervue/internal/common/db"
	"intervue/internal/common/mq"
	"intervue/internal/common/storage"
	"intervue/internal/judge/judgeclient"
	"intervue/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	Duration         time.Duration `yaml:"duration"`
	CreationTokenTTL time.Duration `yaml:"creationTokenTTL"`
	EventTopic       string        `yaml:"eventTopic"`
	QuestionCacheTTL time.Duration `yaml:"questionCacheTTL"`
	QuestionEmptyTTL time.Duration `yaml:"questionEmptyTTL"`
}

// JudgeConfig holds judge endpoint and polling settings.
type JudgeConfig struct {
	BaseURL         string        `yaml:"baseURL"`
	APIKeyHeader    string        `yaml:"apiKeyHeader"`
	APIKey          string        `yaml:"apiKey"`
	Timeout         time.Duration `yaml:"timeout"`
	CPUTimeLimit    float64       `yaml:"cpuTimeLimit"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
}

// EvaluationConfig holds scorecard model settings.
type EvaluationConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// ArchiveConfig holds report archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
}

// AppConfig holds session-service configuration.
type AppConfig struct {
	Server     ServerConfig        `yaml:"server"`
	Logger     logger.Config       `yaml:"logger"`
	Database   db.MySQLConfig      `yaml:"database"`
	Redis      cache.RedisConfig   `yaml:"redis"`
	Kafka      mq.KafkaConfig      `yaml:"kafka"`
	MinIO      storage.MinIOConfig `yaml:"minio"`
	Auth       AuthConfig          `yaml:"auth"`
	Session    SessionConfig       `yaml:"session"`
	Judge      JudgeConfig         `yaml:"judge"`
	Evaluation EvaluationConfig    `yaml:"evaluation"`
	Archive    ArchiveConfig       `yaml:"archive"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth jwtSecret is required")
	}
	if cfg.Judge.BaseURL == "" {
		return nil, fmt.Errorf("judge baseURL is required")
	}
	if cfg.Evaluation.APIKey == "" {
		return nil, fmt.Errorf("evaluation apiKey is required")
	}

	if cfg.Session.Duration == 0 {
		cfg.Session.Duration = 30 * time.Minute
	}
	if cfg.Session.CreationTokenTTL == 0 {
		cfg.Session.CreationTokenTTL = 5 * time.Minute
	}
	if cfg.Session.EventTopic == "" {
		cfg.Session.EventTopic = "session.lifecycle"
	}
	if cfg.Evaluation.Model == "" {
		cfg.Evaluation.Model = "gpt-4o"
	}
	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = cfg.MinIO.Bucket
	}

	return &cfg, nil
}

func (c JudgeConfig) clientConfig() judgeclient.Config {
	return judgeclient.Config{
		BaseURL:      c.BaseURL,
		APIKeyHeader: c.APIKeyHeader,
		APIKey:       c.APIKey,
		Timeout:      c.Timeout,
		CPUTimeLimit: c.CPUTimeLimit,
	}
}
