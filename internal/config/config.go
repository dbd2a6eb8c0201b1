package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	DefaultListenAddr   = ":12345"
	DefaultAdminAddr    = ":9090"
	DefaultStorage      = StorageFile
	DefaultDataDir      = "data"
	DefaultIdleTimeout  = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultEnvFile      = ".env"
)

// Storage backends.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	ListenAddr   string        `env:"LISTEN_ADDR"`
	AdminAddr    string        `env:"ADMIN_ADDR"`
	Storage      string        `env:"STORAGE"`
	DataDir      string        `env:"DATA_DIR"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT"`
	MaxSessions  int           `env:"MAX_SESSIONS"`
	LogLevel     string        `env:"LOG_LEVEL"`
	LogFormat    string        `env:"LOG_FORMAT"`
}

// Load builds the configuration from flags, an optional .env file and the
// environment, in increasing order of precedence. A missing .env file is
// not an error.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	flags := flag.NewFlagSet("bankd", flag.ContinueOnError)
	envFile := flags.String("env", DefaultEnvFile, "path to .env file")
	flags.StringVar(&cfg.ListenAddr, "a", DefaultListenAddr, "protocol listen address")
	flags.StringVar(&cfg.AdminAddr, "admin", DefaultAdminAddr, "admin HTTP address (empty disables)")
	flags.StringVar(&cfg.Storage, "storage", DefaultStorage, "storage backend: file|postgres|memory")
	flags.StringVar(&cfg.DataDir, "data", DefaultDataDir, "data directory for the file backend")
	flags.StringVar(&cfg.DatabaseURL, "d", "", "postgres connection string")
	flags.DurationVar(&cfg.IdleTimeout, "idle-timeout", DefaultIdleTimeout, "per-request read deadline")
	flags.DurationVar(&cfg.WriteTimeout, "write-timeout", DefaultWriteTimeout, "per-response write deadline")
	flags.IntVar(&cfg.MaxSessions, "max-sessions", 0, "concurrent session cap (0 = unlimited)")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	flags.StringVar(&cfg.LogFormat, "log-format", "json", "log format: json|text")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := loadEnvFile(*envFile); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageFile:
		if c.DataDir == "" {
			return errors.New("DATA_DIR is required for file storage")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.MaxSessions < 0 {
		return errors.New("MAX_SESSIONS must not be negative")
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}
