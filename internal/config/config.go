package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Storage   StorageConfig   `yaml:"storage"`
	Handoff   HandoffConfig   `yaml:"handoff"`
	Directory DirectoryConfig `yaml:"directory"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"CARDIOLIVE_PORT"`
	Host           string   `yaml:"host" env:"CARDIOLIVE_HOST"`
	AuthToken      string   `yaml:"auth_token" env:"CARDIOLIVE_AUTH_TOKEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"CARDIOLIVE_ALLOWED_ORIGINS" envSeparator:","`
	MaxConns       int      `yaml:"max_conns" env:"CARDIOLIVE_MAX_CONNS"`
}

type MonitorConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" env:"CARDIOLIVE_TICK_INTERVAL"`
	// StaleAfter evicts participants whose last sample is older than this.
	// Zero keeps a participant until its device disconnects.
	StaleAfter time.Duration `yaml:"stale_after" env:"CARDIOLIVE_STALE_AFTER"`
	QueueSize  int           `yaml:"queue_size" env:"CARDIOLIVE_QUEUE_SIZE"`
	DefaultAge int           `yaml:"default_age" env:"CARDIOLIVE_DEFAULT_AGE"`
	AlertHigh  int           `yaml:"alert_high" env:"CARDIOLIVE_ALERT_HIGH"`
	AlertLow   int           `yaml:"alert_low" env:"CARDIOLIVE_ALERT_LOW"`
}

type StorageConfig struct {
	// Path is the SQLite database file. Empty keeps sessions in memory.
	Path string `yaml:"path" env:"CARDIOLIVE_DB_PATH"`
}

const (
	HandoffFile   = "file"
	HandoffSQLite = "sqlite"
)

type HandoffConfig struct {
	Backend string `yaml:"backend" env:"CARDIOLIVE_HANDOFF_BACKEND"`
	Dir     string `yaml:"dir" env:"CARDIOLIVE_HANDOFF_DIR"`
}

type DirectoryConfig struct {
	File          string        `yaml:"file" env:"CARDIOLIVE_DIRECTORY_FILE"`
	URL           string        `yaml:"url" env:"CARDIOLIVE_DIRECTORY_URL"`
	Token         string        `yaml:"token" env:"CARDIOLIVE_DIRECTORY_TOKEN"`
	LookupTimeout time.Duration `yaml:"lookup_timeout" env:"CARDIOLIVE_DIRECTORY_TIMEOUT"`
	RetryAfter    time.Duration `yaml:"retry_after" env:"CARDIOLIVE_DIRECTORY_RETRY"`
}

type SimulatorConfig struct {
	Enabled      bool          `yaml:"enabled" env:"CARDIOLIVE_SIMULATOR"`
	Participants int           `yaml:"participants" env:"CARDIOLIVE_SIMULATOR_PARTICIPANTS"`
	Interval     time.Duration `yaml:"interval" env:"CARDIOLIVE_SIMULATOR_INTERVAL"`
	Seed         int64         `yaml:"seed" env:"CARDIOLIVE_SIMULATOR_SEED"`
}

type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP collector address. Empty disables tracing.
	Endpoint    string `yaml:"endpoint" env:"CARDIOLIVE_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"CARDIOLIVE_SERVICE_NAME"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Monitor: MonitorConfig{
			TickInterval: 2 * time.Second,
			QueueSize:    256,
			DefaultAge:   30,
			AlertHigh:    180,
			AlertLow:     40,
		},
		Handoff: HandoffConfig{
			Backend: HandoffFile,
		},
		Directory: DirectoryConfig{
			LookupTimeout: 3 * time.Second,
			RetryAfter:    time.Minute,
		},
		Simulator: SimulatorConfig{
			Participants: 12,
			Interval:     time.Second,
			Seed:         1,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "cardiolive",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// CARDIOLIVE_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Monitor.TickInterval <= 0 {
		return fmt.Errorf("monitor.tick_interval must be positive")
	}
	if c.Monitor.StaleAfter < 0 {
		return fmt.Errorf("monitor.stale_after must not be negative")
	}
	if c.Monitor.DefaultAge <= 0 {
		return fmt.Errorf("monitor.default_age must be positive")
	}
	if c.Monitor.AlertLow >= c.Monitor.AlertHigh {
		return fmt.Errorf("monitor.alert_low %d must be below alert_high %d", c.Monitor.AlertLow, c.Monitor.AlertHigh)
	}
	switch c.Handoff.Backend {
	case HandoffFile:
	case HandoffSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("handoff.backend sqlite needs storage.path")
		}
	default:
		return fmt.Errorf("unknown handoff.backend %q", c.Handoff.Backend)
	}
	if c.Simulator.Enabled && c.Simulator.Participants <= 0 {
		return fmt.Errorf("simulator.participants must be positive")
	}
	return nil
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
