package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration.
type Config struct {
	Server      ServerConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	Bus         BusConfig
	Gateway     GatewayConfig
	Workers     WorkerConfig
	Restart     RestartConfig
	WindowState WindowStateConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// ShutdownTimeout bounds CloseAll plus HTTP drain on exit.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds control API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// BusConfig holds message bus configuration.
type BusConfig struct {
	RequestTimeout time.Duration `envconfig:"BUS_REQUEST_TIMEOUT" default:"30s"`
	// WorkerSendRate caps sends per second per worker; zero disables it.
	WorkerSendRate  float64 `envconfig:"BUS_WORKER_SEND_RATE" default:"0"`
	WorkerSendBurst int     `envconfig:"BUS_WORKER_SEND_BURST" default:"50"`
}

// GatewayConfig holds capability gateway configuration.
type GatewayConfig struct {
	ManifestPath string `envconfig:"GATEWAY_MANIFEST" default:""`
	// Strict rejects schema violations on every channel.
	Strict bool `envconfig:"GATEWAY_STRICT" default:"false"`
}

// WorkerConfig holds worker lifecycle configuration.
type WorkerConfig struct {
	LoadTimeout      time.Duration `envconfig:"WORKER_LOAD_TIMEOUT" default:"10s"`
	ForceKillTimeout time.Duration `envconfig:"WORKER_FORCE_KILL_TIMEOUT" default:"5s"`
	// BaseDir resolves relative worker sources.
	BaseDir string `envconfig:"WORKER_BASE_DIR" default:""`
	// Manifest lists workers created at startup.
	Manifest string `envconfig:"WORKER_MANIFEST" default:""`
}

// RestartConfig holds the essential worker restart policy.
type RestartConfig struct {
	InitialDelay time.Duration `envconfig:"RESTART_INITIAL_DELAY" default:"1s"`
	MaxDelay     time.Duration `envconfig:"RESTART_MAX_DELAY" default:"30s"`
	ResetAfter   time.Duration `envconfig:"RESTART_RESET_AFTER" default:"60s"`
	MaxAttempts  int           `envconfig:"RESTART_MAX_ATTEMPTS" default:"5"`
}

// WindowStateConfig holds window persistence configuration.
type WindowStateConfig struct {
	Path     string        `envconfig:"WINDOW_STATE_PATH" default:"window-state.toml"`
	Debounce time.Duration `envconfig:"WINDOW_STATE_DEBOUNCE" default:"500ms"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the supervisor cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Bus.RequestTimeout <= 0:
		return fmt.Errorf("invalid config: BUS_REQUEST_TIMEOUT must be positive")
	case c.Workers.LoadTimeout <= 0:
		return fmt.Errorf("invalid config: WORKER_LOAD_TIMEOUT must be positive")
	case c.Workers.ForceKillTimeout <= 0:
		return fmt.Errorf("invalid config: WORKER_FORCE_KILL_TIMEOUT must be positive")
	case c.Restart.InitialDelay <= 0 || c.Restart.MaxDelay < c.Restart.InitialDelay:
		return fmt.Errorf("invalid config: restart delays must satisfy 0 < initial <= max")
	case c.Restart.MaxAttempts <= 0:
		return fmt.Errorf("invalid config: RESTART_MAX_ATTEMPTS must be positive")
	case c.WindowState.Debounce < 0:
		return fmt.Errorf("invalid config: WINDOW_STATE_DEBOUNCE must not be negative")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Bus: BusConfig{
			RequestTimeout:  30 * time.Second,
			WorkerSendBurst: 50,
		},
		Workers: WorkerConfig{
			LoadTimeout:      10 * time.Second,
			ForceKillTimeout: 5 * time.Second,
		},
		Restart: RestartConfig{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			ResetAfter:   60 * time.Second,
			MaxAttempts:  5,
		},
		WindowState: WindowStateConfig{
			Path:     "window-state.toml",
			Debounce: 500 * time.Millisecond,
		},
	}
}
