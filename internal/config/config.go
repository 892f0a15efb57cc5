package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port         int           `yaml:"port"`          // public API + webhook
	AdminPort    int           `yaml:"admin_port"`    // admin API
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // per-request
	WriteTimeout time.Duration `yaml:"write_timeout"` //
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaymentConfig struct {
	Provider      string `yaml:"provider"`       // atlaspay | noop
	MerchantID    string `yaml:"merchant_id"`    //
	APIBase       string `yaml:"api_base"`       //
	CallbackURL   string `yaml:"callback_url"`   // where the gateway sends the user back
	WebhookSecret string `yaml:"webhook_secret"` // HMAC key for notification signatures
}

type SweepConfig struct {
	ResetInterval  time.Duration `yaml:"reset_interval"`  // usage-reset sweep cadence
	ExpiryInterval time.Duration `yaml:"expiry_interval"` // entitlement expiry sweep cadence
}

type AuthConfig struct {
	AccountTokenSecret string `yaml:"account_token_secret"` // HMAC for account JWTs
	AdminAPIKey        string `yaml:"admin_api_key"`
	InternalAPIKey     string `yaml:"internal_api_key"` // admission/report callers
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Payment  PaymentConfig  `yaml:"payment"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Auth     AuthConfig     `yaml:"auth"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AdminPort == 0 {
		cfg.Server.AdminPort = 8081
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "atlaspay"
	}
	if cfg.Sweep.ResetInterval <= 0 {
		cfg.Sweep.ResetInterval = time.Hour
	}
	if cfg.Sweep.ExpiryInterval <= 0 {
		cfg.Sweep.ExpiryInterval = 15 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Payment.Provider != "noop" {
		if cfg.Payment.MerchantID == "" {
			return nil, errors.New("payment.merchant_id is required")
		}
		if cfg.Payment.WebhookSecret == "" {
			return nil, errors.New("payment.webhook_secret is required")
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
