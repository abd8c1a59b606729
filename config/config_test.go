package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8090" || cfg.Backend.URL != "http://localhost:8000" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Backend.Timeout.Duration != 10*time.Second || cfg.Push.ReconnectDelay.Duration != 3*time.Second {
		t.Fatalf("unexpected duration defaults %+v", cfg)
	}
	if cfg.Push.Transport != TransportWebSocket || cfg.Session.Store != SessionStoreFile {
		t.Fatalf("unexpected transport/store defaults %+v", cfg)
	}
	if cfg.Sync.RefreshInterval.Duration != time.Minute || cfg.Sync.Retention.Duration != 720*time.Hour {
		t.Fatalf("unexpected sync defaults %+v", cfg.Sync)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{
		"server": {"port": "9000"},
		"backend": {"url": "http://api.veritas.test", "timeout": "4s"},
		"push": {"transport": "rabbitmq", "rabbitmq": {"host": "mq"}},
		"sync": {"refresh_interval": "30s",
		         "initial_bounds": {"min_lat": 4.5, "min_lon": -74.2, "max_lat": 4.8, "max_lon": -74.0}}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("VERITAS_PORT", "9100")
	t.Setenv("VERITAS_RECONNECT_DELAY", "7s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Fatalf("env override ignored, port %q", cfg.Server.Port)
	}
	if cfg.Backend.Timeout.Duration != 4*time.Second || cfg.Sync.RefreshInterval.Duration != 30*time.Second {
		t.Fatalf("file durations ignored %+v", cfg)
	}
	if cfg.Push.ReconnectDelay.Duration != 7*time.Second {
		t.Fatalf("env duration ignored %v", cfg.Push.ReconnectDelay)
	}
	if cfg.Push.Transport != TransportRabbitMQ || cfg.Push.RabbitMQ.Host != "mq" || cfg.Push.RabbitMQ.Port != "5672" {
		t.Fatalf("unexpected rabbitmq config %+v", cfg.Push)
	}
	if cfg.Sync.InitialBounds == nil || cfg.Sync.InitialBounds.MaxLat != 4.8 {
		t.Fatalf("initial bounds not loaded %+v", cfg.Sync.InitialBounds)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("VERITAS_PUSH_TRANSPORT", "carrier-pigeon")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected unknown transport to fail")
	}

	t.Setenv("VERITAS_PUSH_TRANSPORT", "")
	t.Setenv("VERITAS_REFRESH_INTERVAL", "soon")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected bad duration to fail")
	}

	t.Setenv("VERITAS_REFRESH_INTERVAL", "")
	t.Setenv("VERITAS_SESSION_STORE", "postgres")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected postgres store without dbname to fail")
	}
}

func TestLoadConfigKeepsExplicitZeroSyncDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{"sync": {"refresh_interval": "0s"}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("VERITAS_RETENTION", "0s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sync.RefreshInterval.Duration != 0 {
		t.Fatalf("refresh interval replaced by default: %v", cfg.Sync.RefreshInterval)
	}
	if cfg.Sync.Retention.Duration != 0 {
		t.Fatalf("retention replaced by default: %v", cfg.Sync.Retention)
	}
}

func TestLoadConfigRejectsNonPositiveReconnectDelay(t *testing.T) {
	t.Setenv("VERITAS_RECONNECT_DELAY", "0s")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected zero reconnect delay to fail")
	}

	t.Setenv("VERITAS_RECONNECT_DELAY", "")
	t.Setenv("VERITAS_REFRESH_INTERVAL", "-1m")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected negative refresh interval to fail")
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "veritas", Password: "pw", DBName: "veritas"}
	want := "host=db port=5432 user=veritas password=pw dbname=veritas sslmode=disable"
	if d.DSN() != want {
		t.Fatalf("unexpected dsn %q", d.DSN())
	}
}
