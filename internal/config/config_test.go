package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"-env", filepath.Join(t.TempDir(), "missing.env")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr || cfg.Storage != StorageFile || cfg.IdleTimeout != DefaultIdleTimeout || cfg.MaxSessions != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestEnvOverridesFlags(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:7000")
	t.Setenv("IDLE_TIMEOUT", "5s")
	t.Setenv("MAX_SESSIONS", "8")
	cfg, err := Load([]string{"-env", "", "-a", ":1", "-storage", "memory"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" || cfg.IdleTimeout != 5*time.Second || cfg.MaxSessions != 8 || cfg.Storage != StorageMemory {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.env")
	if err := os.WriteFile(path, []byte("STORAGE=postgres\nDATABASE_URL=postgres://u:p@localhost/bank\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("STORAGE")
		os.Unsetenv("DATABASE_URL")
	})
	cfg, err := Load([]string{"-env", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage != StoragePostgres || cfg.DatabaseURL == "" {
		t.Fatalf("env file not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	bad := []Config{
		{ListenAddr: ":1", Storage: "s3"},
		{ListenAddr: ":1", Storage: StoragePostgres},
		{ListenAddr: ":1", Storage: StorageMemory, MaxSessions: -1},
		{Storage: StorageMemory},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", c)
		}
	}
}
