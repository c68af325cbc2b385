// Package cache holds short-lived one-shot material: authorization codes and
// consent challenges. Two backends: in-process memory (dev, tests) and redis
// (multi-node deployments).
package cache

import "time"

// Cache is a byte-value cache with TTLs. Get returns false when the key is
// missing or expired.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// Config selects and configures a backend.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	DB         int
	DefaultTTL time.Duration
}

// New builds a cache from config, defaulting to memory.
func New(cfg Config) Cache {
	if cfg.Driver == "redis" {
		return NewRedis(cfg.Addr, cfg.DB)
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return NewMemory(ttl)
}
