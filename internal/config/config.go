package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the whole runtime configuration. Everything the engine treats as
// a tunable (lockout thresholds, TTLs, token entropy, session window) lives
// here; the invariants hold for any chosen values.
type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		Postgres struct {
			DSN          string `yaml:"dsn"`
			MaxOpenConns int    `yaml:"max_open_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Driver string `yaml:"driver"`
		Redis  struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Session struct {
		// Window is the staleness limit on login validity.
		Window time.Duration `yaml:"window"`
	} `yaml:"session"`

	OAuth struct {
		Issuer string `yaml:"issuer"`
		// AuthorizeTTL bounds how long an authorize request may sit between
		// creation and completion before it is treated as expired.
		AuthorizeTTL time.Duration `yaml:"authorize_ttl"`
		CodeTTL      time.Duration `yaml:"code_ttl"`
		AccessTTL    time.Duration `yaml:"access_ttl"`
		// TokenBytes is the entropy of opaque access/refresh tokens.
		TokenBytes int `yaml:"token_bytes"`
	} `yaml:"oauth"`

	Security struct {
		LockoutThreshold int           `yaml:"lockout_threshold"`
		LockoutDuration  time.Duration `yaml:"lockout_duration"`
		CodeTTL          time.Duration `yaml:"code_ttl"`
		CodeMaxAttempts  int           `yaml:"code_max_attempts"`
		SignupTTL        time.Duration `yaml:"signup_ttl"`
		SignupMaxAttempts int          `yaml:"signup_max_attempts"`
		TotpWindowSteps  int           `yaml:"totp_window_steps"`
	} `yaml:"security"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Upstream struct {
		TokenURL     string `yaml:"token_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"upstream"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the YAML file at path (optional), layers .env, then applies
// environment overrides for secrets, and fills defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JANUS_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("JANUS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("JANUS_PG_DSN"); v != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("JANUS_REDIS_ADDR"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("JANUS_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("JANUS_UPSTREAM_CLIENT_SECRET"); v != "" {
		cfg.Upstream.ClientSecret = v
	}
	if v := os.Getenv("JANUS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("JANUS_LOCKOUT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.LockoutThreshold = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Session.Window <= 0 {
		cfg.Session.Window = 30 * 24 * time.Hour
	}
	if cfg.OAuth.Issuer == "" {
		cfg.OAuth.Issuer = "http://localhost:8080"
	}
	if cfg.OAuth.AuthorizeTTL <= 0 {
		cfg.OAuth.AuthorizeTTL = 10 * time.Minute
	}
	if cfg.OAuth.CodeTTL <= 0 {
		cfg.OAuth.CodeTTL = 2 * time.Minute
	}
	if cfg.OAuth.AccessTTL <= 0 {
		cfg.OAuth.AccessTTL = 15 * time.Minute
	}
	if cfg.OAuth.TokenBytes <= 0 {
		cfg.OAuth.TokenBytes = 32
	}
	if cfg.Security.LockoutThreshold <= 0 {
		cfg.Security.LockoutThreshold = 5
	}
	if cfg.Security.LockoutDuration <= 0 {
		cfg.Security.LockoutDuration = 15 * time.Minute
	}
	if cfg.Security.CodeTTL <= 0 {
		cfg.Security.CodeTTL = 10 * time.Minute
	}
	if cfg.Security.CodeMaxAttempts <= 0 {
		cfg.Security.CodeMaxAttempts = 5
	}
	if cfg.Security.SignupTTL <= 0 {
		cfg.Security.SignupTTL = 24 * time.Hour
	}
	if cfg.Security.SignupMaxAttempts <= 0 {
		cfg.Security.SignupMaxAttempts = 5
	}
	if cfg.Security.TotpWindowSteps <= 0 {
		cfg.Security.TotpWindowSteps = 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
