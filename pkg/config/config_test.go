package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("Retrieval.TopK = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Corpus.Source != "file" {
		t.Errorf("Corpus.Source = %q, want file", cfg.Corpus.Source)
	}
	if cfg.FGA.Mode != "roles" {
		t.Errorf("FGA.Mode = %q, want roles", cfg.FGA.Mode)
	}
	if cfg.RateLimit.RequestsPerMinute != 120 {
		t.Errorf("RateLimit.RequestsPerMinute = %d, want 120", cfg.RateLimit.RequestsPerMinute)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
retrieval:
  topK: 7
fga:
  mode: fga
  apiUrl: https://fga.example.com
  storeId: store-123
  checkTimeout: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("Retrieval.TopK = %d, want 7", cfg.Retrieval.TopK)
	}
	if cfg.FGA.CheckTimeout != 500*time.Millisecond {
		t.Errorf("FGA.CheckTimeout = %s, want 500ms", cfg.FGA.CheckTimeout)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default", cfg.Redis.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AG_SERVER_PORT", "7070")
	t.Setenv("AG_RETRIEVAL_TOPK", "9")
	t.Setenv("AG_FGA_MODE", "fga")
	t.Setenv("AG_FGA_API_URL", "https://fga.example.com")
	t.Setenv("AG_FGA_STORE_ID", "store-env")
	t.Setenv("AG_KAFKA_ENABLED", "true")
	t.Setenv("AG_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 9 {
		t.Errorf("Retrieval.TopK = %d, want 9", cfg.Retrieval.TopK)
	}
	if cfg.FGA.StoreID != "store-env" {
		t.Errorf("FGA.StoreID = %q, want store-env", cfg.FGA.StoreID)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka = %+v, want enabled with 2 brokers", cfg.Kafka)
	}
}

func TestValidationRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad corpus source", yaml: "corpus:\n  source: s3\n"},
		{name: "bad fga mode", yaml: "fga:\n  mode: maybe\n"},
		{name: "fga mode without store", yaml: "fga:\n  mode: fga\n"},
		{name: "non-positive topK", yaml: "retrieval:\n  topK: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want wrapped fs.ErrNotExist", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresConfig{
		Host: "db", Port: 5433, User: "u", Password: "p",
		Database: "answers", SSLMode: "disable",
	}.DSN()
	want := "host=db port=5433 user=u password=p dbname=answers sslmode=disable"
	if dsn != want {
		t.Errorf("DSN() = %q, want %q", dsn, want)
	}
}
