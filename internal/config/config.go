package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries system-wide settings. Values come from defaults, an
// optional config file and SLIDECAST_* environment variables, in that
// order of increasing precedence.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	WebSocket WebSocketConfig
	Session   SessionConfig
	Auth      AuthConfig
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Path           string
	MaxConnections int
	Timeout        time.Duration
}

type WebSocketConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

type SessionConfig struct {
	// IdleTTL reaps sessions with no commands and no connections.
	IdleTTL      time.Duration
	ReapInterval time.Duration
}

type AuthConfig struct {
	// Secret signs and verifies identity tokens (HMAC).
	Secret string
}

// Load reads configuration. A .env file in the working directory is loaded
// first so local development matches deployed environments; a missing .env
// is not an error. path may be empty to skip the config file entirely.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SLIDECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Host:         v.GetString("http.host"),
			Port:         v.GetInt("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		Database: DatabaseConfig{
			Path:           v.GetString("database.path"),
			MaxConnections: v.GetInt("database.max_connections"),
			Timeout:        v.GetDuration("database.timeout"),
		},
		WebSocket: WebSocketConfig{
			PingInterval: v.GetDuration("websocket.ping_interval"),
			ReadTimeout:  v.GetDuration("websocket.read_timeout"),
			WriteTimeout: v.GetDuration("websocket.write_timeout"),
			BufferSize:   v.GetInt("websocket.buffer_size"),
		},
		Session: SessionConfig{
			IdleTTL:      v.GetDuration("session.idle_ttl"),
			ReapInterval: v.GetDuration("session.reap_interval"),
		},
		Auth: AuthConfig{
			Secret: v.GetString("auth.secret"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)

	v.SetDefault("database.path", "./slidecast.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.timeout", 30*time.Second)

	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.read_timeout", 60*time.Second)
	v.SetDefault("websocket.write_timeout", 5*time.Second)
	v.SetDefault("websocket.buffer_size", 100)

	v.SetDefault("session.idle_ttl", 2*time.Hour)
	v.SetDefault("session.reap_interval", 5*time.Minute)

	v.SetDefault("auth.secret", "")
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("websocket intervals must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read_timeout must exceed ping_interval")
	}
	if c.WebSocket.BufferSize < 1 {
		return fmt.Errorf("websocket buffer_size must be at least 1")
	}
	if c.Session.IdleTTL <= 0 || c.Session.ReapInterval <= 0 {
		return fmt.Errorf("session idle_ttl and reap_interval must be positive")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (set SLIDECAST_AUTH_SECRET)")
	}
	return nil
}
