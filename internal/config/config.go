// Package config loads server configuration from defaults, an optional
// .env file, an optional YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// Config is the complete server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
	CORS     CORSConfig     `yaml:"cors"`
	Game     GameConfig     `yaml:"game"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects and tunes the repository backend
type StorageConfig struct {
	Type          string        `yaml:"type"`
	RedisURL      string        `yaml:"redis_url"`
	PoolSize      int           `yaml:"pool_size"`
	MinIdleConns  int           `yaml:"min_idle_conns"`
	GameTTL       time.Duration `yaml:"game_ttl"`
	ConnectionTTL time.Duration `yaml:"connection_ttl"`
	MaxMoves      int64         `yaml:"max_moves"`
}

// RealtimeConfig tunes the socket and polling transports
type RealtimeConfig struct {
	PollTimeout          time.Duration `yaml:"poll_timeout"`
	PollingConnectionTTL time.Duration `yaml:"polling_connection_ttl"`
	ReapInterval         time.Duration `yaml:"reap_interval"`
	MailboxSize          int           `yaml:"mailbox_size"`
	PingPeriod           time.Duration `yaml:"ping_period"`
	PongWait             time.Duration `yaml:"pong_wait"`
	BroadcastConcurrency int           `yaml:"broadcast_concurrency"`
}

// EventsConfig configures the NATS event publisher. An empty URL disables it.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig selects the log level and output format (json or text)
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CORSConfig lists origins allowed to call the server from a browser
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GameConfig holds game rule settings
type GameConfig struct {
	MoveHistoryLimit int `yaml:"move_history_limit"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type:          StorageTypeMemory,
			PoolSize:      10,
			MinIdleConns:  2,
			GameTTL:       24 * time.Hour,
			ConnectionTTL: 24 * time.Hour,
			MaxMoves:      1000,
		},
		Realtime: RealtimeConfig{
			PollTimeout:          25 * time.Second,
			PollingConnectionTTL: 60 * time.Second,
			ReapInterval:         15 * time.Second,
			MailboxSize:          256,
			PingPeriod:           54 * time.Second,
			PongWait:             60 * time.Second,
			BroadcastConcurrency: 16,
		},
		Events: EventsConfig{
			SubjectPrefix: "snl.events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Game: GameConfig{
			MoveHistoryLimit: 50,
		},
	}
}

// Load builds the configuration. The YAML path falls back to SNL_CONFIG;
// with neither set only defaults, .env and the environment apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("SNL_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Server.Host = getEnv("SNL_HOST", c.Server.Host)
	c.Storage.Type = getEnv("STORAGE_TYPE", c.Storage.Type)
	c.Storage.RedisURL = getEnv("REDIS_URL", c.Storage.RedisURL)
	c.Events.NATSURL = getEnv("NATS_URL", c.Events.NATSURL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}

	var errs []error
	var err error
	if c.Server.Port, err = getEnvAsInt("SNL_PORT", c.Server.Port); err != nil {
		errs = append(errs, err)
	}
	if c.Realtime.PollTimeout, err = getEnvAsDuration("POLL_TIMEOUT", c.Realtime.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Realtime.PollingConnectionTTL, err = getEnvAsDuration("POLL_CONNECTION_TTL", c.Realtime.PollingConnectionTTL); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case StorageTypeMemory:
	case StorageTypeRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required when storage.type is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage.type %q: must be %q or %q", c.Storage.Type, StorageTypeMemory, StorageTypeRedis))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port %d", c.Server.Port))
	}

	positive := map[string]time.Duration{
		"server.read_timeout":             c.Server.ReadTimeout,
		"server.write_timeout":            c.Server.WriteTimeout,
		"server.shutdown_timeout":         c.Server.ShutdownTimeout,
		"realtime.poll_timeout":           c.Realtime.PollTimeout,
		"realtime.polling_connection_ttl": c.Realtime.PollingConnectionTTL,
		"realtime.reap_interval":          c.Realtime.ReapInterval,
		"realtime.ping_period":            c.Realtime.PingPeriod,
		"realtime.pong_wait":              c.Realtime.PongWait,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Realtime.PollTimeout >= c.Realtime.PollingConnectionTTL {
		errs = append(errs, errors.New("realtime.poll_timeout must be shorter than realtime.polling_connection_ttl"))
	}
	if c.Realtime.PingPeriod >= c.Realtime.PongWait {
		errs = append(errs, errors.New("realtime.ping_period must be shorter than realtime.pong_wait"))
	}
	if c.Server.WriteTimeout <= c.Realtime.PollTimeout {
		errs = append(errs, errors.New("server.write_timeout must be longer than realtime.poll_timeout"))
	}
	if c.Game.MoveHistoryLimit <= 0 {
		errs = append(errs, errors.New("game.move_history_limit must be positive"))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("invalid log.format %q: must be json or text", c.Log.Format))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger described by the log section
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", s)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
