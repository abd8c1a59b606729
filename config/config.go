package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ACBRI/veritas.ia/internal/model"
)

const (
	TransportWebSocket = "websocket"
	TransportRabbitMQ  = "rabbitmq"
	TransportNone      = "none"

	SessionStoreFile     = "file"
	SessionStorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Backend  BackendConfig  `json:"backend"`
	Push     PushConfig     `json:"push"`
	Session  SessionConfig  `json:"session"`
	Database DatabaseConfig `json:"database"`
	Sync     SyncConfig     `json:"sync"`
	Stream   StreamConfig   `json:"stream"`
}

type ServerConfig struct {
	Port string `json:"port"`
}

type BackendConfig struct {
	URL     string   `json:"url"`
	Timeout Duration `json:"timeout"`
}

type PushConfig struct {
	Transport      string         `json:"transport"`
	URL            string         `json:"url"`
	ReconnectDelay Duration       `json:"reconnect_delay"`
	RabbitMQ       RabbitMQConfig `json:"rabbitmq"`
}

type RabbitMQConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type SessionConfig struct {
	Store     string `json:"store"`
	Path      string `json:"path"`
	ClientKey string `json:"client_key"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.DBName)
}

type SyncConfig struct {
	RefreshInterval Duration          `json:"refresh_interval"`
	Retention       Duration          `json:"retention"`
	InitialBounds   *model.ViewBounds `json:"initial_bounds,omitempty"`
}

type StreamConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// Duration reads "3s"-style strings from JSON. An explicit "0s" is kept
// and is distinct from an absent value.
type Duration struct {
	time.Duration
	set bool
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	d.set = true
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// LoadConfig reads the JSON file at path, applies VERITAS_* environment
// overrides and fills defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	var config Config

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "VERITAS_PORT")
	setString(&c.Backend.URL, "VERITAS_BACKEND_URL")
	setString(&c.Push.Transport, "VERITAS_PUSH_TRANSPORT")
	setString(&c.Push.URL, "VERITAS_PUSH_URL")
	setString(&c.Push.RabbitMQ.Host, "VERITAS_RABBITMQ_HOST")
	setString(&c.Push.RabbitMQ.Port, "VERITAS_RABBITMQ_PORT")
	setString(&c.Push.RabbitMQ.User, "VERITAS_RABBITMQ_USER")
	setString(&c.Push.RabbitMQ.Password, "VERITAS_RABBITMQ_PASSWORD")
	setString(&c.Session.Store, "VERITAS_SESSION_STORE")
	setString(&c.Session.Path, "VERITAS_SESSION_PATH")
	setString(&c.Session.ClientKey, "VERITAS_SESSION_CLIENT_KEY")
	setString(&c.Database.Host, "VERITAS_DB_HOST")
	setString(&c.Database.Port, "VERITAS_DB_PORT")
	setString(&c.Database.User, "VERITAS_DB_USER")
	setString(&c.Database.Password, "VERITAS_DB_PASSWORD")
	setString(&c.Database.DBName, "VERITAS_DB_NAME")
	setString(&c.Stream.JWTSecret, "VERITAS_JWT_SECRET")

	durations := []struct {
		dst *Duration
		key string
	}{
		{&c.Backend.Timeout, "VERITAS_BACKEND_TIMEOUT"},
		{&c.Push.ReconnectDelay, "VERITAS_RECONNECT_DELAY"},
		{&c.Sync.RefreshInterval, "VERITAS_REFRESH_INTERVAL"},
		{&c.Sync.Retention, "VERITAS_RETENTION"},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	defaultString(&c.Server.Port, "8090")
	defaultString(&c.Backend.URL, "http://localhost:8000")
	defaultDuration(&c.Backend.Timeout, 10*time.Second)
	defaultString(&c.Push.Transport, TransportWebSocket)
	defaultString(&c.Push.URL, "ws://localhost:8000/ws")
	defaultDuration(&c.Push.ReconnectDelay, 3*time.Second)
	defaultString(&c.Push.RabbitMQ.Host, "localhost")
	defaultString(&c.Push.RabbitMQ.Port, "5672")
	defaultString(&c.Push.RabbitMQ.User, "guest")
	defaultString(&c.Push.RabbitMQ.Password, "guest")
	defaultString(&c.Session.Store, SessionStoreFile)
	defaultString(&c.Session.Path, ".veritas/session.json")
	defaultString(&c.Session.ClientKey, "default")
	defaultString(&c.Database.Host, "localhost")
	defaultString(&c.Database.Port, "5432")
	defaultDuration(&c.Sync.RefreshInterval, time.Minute)
	defaultDuration(&c.Sync.Retention, 30*24*time.Hour)
}

func (c *Config) Validate() error {
	switch c.Push.Transport {
	case TransportWebSocket, TransportRabbitMQ, TransportNone:
	default:
		return fmt.Errorf("unknown push transport %q", c.Push.Transport)
	}
	switch c.Session.Store {
	case SessionStoreFile, SessionStorePostgres:
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	if c.Backend.Timeout.Duration <= 0 {
		return errors.New("backend.timeout must be positive")
	}
	if c.Push.ReconnectDelay.Duration <= 0 {
		return errors.New("push.reconnect_delay must be positive")
	}
	// Zero disables the scheduled job.
	if c.Sync.RefreshInterval.Duration < 0 || c.Sync.Retention.Duration < 0 {
		return errors.New("sync durations must not be negative")
	}
	if c.Session.Store == SessionStorePostgres && c.Database.DBName == "" {
		return errors.New("session store postgres requires database.dbname")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	dst.Duration = d
	dst.set = true
	return nil
}

func defaultString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func defaultDuration(dst *Duration, v time.Duration) {
	if !dst.set {
		dst.Duration = v
	}
}
