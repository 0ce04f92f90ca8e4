package engine

import (
	"log"
	"time"
)

// StorageType selects the session/store backend an Engine is wired to.
type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageRedis  StorageType = "redis"
)

// RedisConfig is only read when Config.StorageType == StorageRedis.
type RedisConfig struct {
	Addr             string
	Prefix           string
	ExpirationEvents bool
	DB               int
}

// Config holds the Engine's defaulted, clamped runtime knobs (spec.md
// §6.3), built with functional options the way the teacher's ClientOptions
// are.
type Config struct {
	DefaultTimeout time.Duration
	MaxSessions    int
	PruneInterval  time.Duration
	GraceDelay     time.Duration
	StorageType    StorageType
	Redis          RedisConfig
	Logger         *log.Logger
}

// Option mutates a Config under construction.
type Option func(*Config)

func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Config) { c.DefaultTimeout = d }
}

func WithMaxSessions(n int) Option {
	return func(c *Config) { c.MaxSessions = n }
}

func WithPruneInterval(d time.Duration) Option {
	return func(c *Config) { c.PruneInterval = d }
}

func WithGraceDelay(d time.Duration) Option {
	return func(c *Config) { c.GraceDelay = d }
}

func WithStorageType(t StorageType) Option {
	return func(c *Config) { c.StorageType = t }
}

func WithRedis(r RedisConfig) Option {
	return func(c *Config) {
		c.StorageType = StorageRedis
		c.Redis = r
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// NewConfig applies opts over the engine's defaults and clamps the
// result into the bounds spec.md §6.3 specifies.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		DefaultTimeout: 300 * time.Second,
		MaxSessions:    1000,
		PruneInterval:  60 * time.Second,
		GraceDelay:     5 * time.Second,
		StorageType:    StorageMemory,
		Logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.DefaultTimeout < time.Second {
		c.DefaultTimeout = time.Second
	}
	if c.DefaultTimeout > time.Hour {
		c.DefaultTimeout = time.Hour
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 1000
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = 60 * time.Second
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}
