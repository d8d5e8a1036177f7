// Package config loads the espalier binary configuration from ESPALIER_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/aretw0/espalier/internal/logging"
)

// Storage backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds every setting of the espalier binary. Command-line flags override it.
type Config struct {
	// Dir is the working directory for the file and SQLite stores.
	Dir string `env:"ESPALIER_DIR" envDefault:".espalier"`

	// Specs is a directory of YAML specifications.
	Specs string `env:"ESPALIER_SPECS" envDefault:"specs"`

	Store    string `env:"ESPALIER_STORE" envDefault:"file"`
	LogLevel string `env:"ESPALIER_LOG_LEVEL" envDefault:"warn"`

	SQLitePath string `env:"ESPALIER_SQLITE_PATH"`

	RedisAddr     string        `env:"ESPALIER_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"ESPALIER_REDIS_PASSWORD"`
	RedisDB       int           `env:"ESPALIER_REDIS_DB" envDefault:"0"`
	RedisPrefix   string        `env:"ESPALIER_REDIS_PREFIX" envDefault:"espalier:"`
	RedisTTL      time.Duration `env:"ESPALIER_REDIS_TTL"`

	Addr        string `env:"ESPALIER_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"ESPALIER_METRICS_ADDR" envDefault:":9090"`
	Policy      string `env:"ESPALIER_POLICY"`

	// EncryptionKey is a base64 AES-256 key. When set, entity contexts and
	// audit data are encrypted at rest.
	EncryptionKey   string   `env:"ESPALIER_ENCRYPTION_KEY"`
	FallbackKeys    []string `env:"ESPALIER_ENCRYPTION_FALLBACK_KEYS"`
	MaskAuditFields []string `env:"ESPALIER_MASK_AUDIT_FIELDS"`

	EntityLock bool          `env:"ESPALIER_ENTITY_LOCK"`
	LockTTL    time.Duration `env:"ESPALIER_LOCK_TTL" envDefault:"30s"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that cannot be checked by type alone.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q (want memory, file, sqlite or redis)", c.Store)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// EntitiesDir is where the file store keeps entities.
func (c Config) EntitiesDir() string {
	return filepath.Join(c.Dir, "entities")
}

// DatabasePath is the SQLite database file.
func (c Config) DatabasePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.Dir, "espalier.db")
}
