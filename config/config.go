package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "ESCROWD_"

type Config struct {
	Service     string `toml:"Service" yaml:"service" env:"SERVICE"`
	Environment string `toml:"Environment" yaml:"environment" env:"ENV"`
	// Database selects the ledger backend: "leveldb" or "memory".
	Database    string            `toml:"Database" yaml:"database" env:"DATABASE"`
	DataDir     string            `toml:"DataDir" yaml:"dataDir" env:"DATA_DIR"`
	GenesisFile string            `toml:"GenesisFile" yaml:"genesisFile" env:"GENESIS_FILE"`
	Genesis     map[string]string `toml:"Genesis" yaml:"genesis"`

	Escrow    Escrow    `toml:"Escrow" yaml:"escrow" envPrefix:"ESCROW_"`
	API       API       `toml:"API" yaml:"api" envPrefix:"API_"`
	Logging   Logging   `toml:"Logging" yaml:"logging" envPrefix:"LOG_"`
	Telemetry Telemetry `toml:"Telemetry" yaml:"telemetry" envPrefix:"OTEL_"`
	Journal   Journal   `toml:"Journal" yaml:"journal" envPrefix:"JOURNAL_"`
	Webhooks  Webhooks  `toml:"Webhooks" yaml:"webhooks" envPrefix:"WEBHOOK_"`
	Notifier  Notifier  `toml:"Notifier" yaml:"notifier" envPrefix:"NOTIFIER_"`
}

type Escrow struct {
	FeeBps uint32 `toml:"FeeBps" yaml:"feeBps" env:"FEE_BPS"`
	// Owner may pause and unpause the service.
	Owner string `toml:"Owner" yaml:"owner" env:"OWNER"`
	// FeeRecipient defaults to Owner.
	FeeRecipient    string        `toml:"FeeRecipient" yaml:"feeRecipient" env:"FEE_RECIPIENT"`
	TransferTimeout time.Duration `toml:"TransferTimeout" yaml:"transferTimeout" env:"TRANSFER_TIMEOUT"`
}

type API struct {
	ListenAddress   string        `toml:"ListenAddress" yaml:"listenAddress" env:"LISTEN"`
	JWTSecret       string        `toml:"JWTSecret" yaml:"jwtSecret" env:"JWT_SECRET"`
	JWTIssuer       string        `toml:"JWTIssuer" yaml:"jwtIssuer" env:"JWT_ISSUER"`
	JWTAudience     string        `toml:"JWTAudience" yaml:"jwtAudience" env:"JWT_AUDIENCE"`
	RateLimitPerSec float64       `toml:"RateLimitPerSec" yaml:"rateLimitPerSec" env:"RATE_LIMIT"`
	RateLimitBurst  int           `toml:"RateLimitBurst" yaml:"rateLimitBurst" env:"RATE_BURST"`
	ReadTimeout     time.Duration `toml:"ReadTimeout" yaml:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `toml:"WriteTimeout" yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `toml:"ShutdownTimeout" yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

type Logging struct {
	Level      string `toml:"Level" yaml:"level" env:"LEVEL"`
	File       string `toml:"File" yaml:"file" env:"FILE"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB" env:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays" env:"MAX_AGE_DAYS"`
	Compress   bool   `toml:"Compress" yaml:"compress" env:"COMPRESS"`
}

type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint" env:"ENDPOINT"`
	Insecure bool   `toml:"Insecure" yaml:"insecure" env:"INSECURE"`
	// Headers uses the OTEL key=value,key=value form.
	Headers string `toml:"Headers" yaml:"headers" env:"HEADERS"`
	Metrics bool   `toml:"Metrics" yaml:"metrics" env:"METRICS"`
	Traces  bool   `toml:"Traces" yaml:"traces" env:"TRACES"`
}

// Journal configures the SQL event journal. An empty driver disables it.
type Journal struct {
	Driver string `toml:"Driver" yaml:"driver" env:"DRIVER"`
	DSN    string `toml:"DSN" yaml:"dsn" env:"DSN"`
}

// Webhooks configures signed event delivery. An empty URL disables it.
type Webhooks struct {
	URL         string        `toml:"URL" yaml:"url" env:"URL"`
	Secret      string        `toml:"Secret" yaml:"secret" env:"SECRET"`
	Timeout     time.Duration `toml:"Timeout" yaml:"timeout" env:"TIMEOUT"`
	MaxAttempts int           `toml:"MaxAttempts" yaml:"maxAttempts" env:"MAX_ATTEMPTS"`
	Backoff     time.Duration `toml:"Backoff" yaml:"backoff" env:"BACKOFF"`
	MaxBackoff  time.Duration `toml:"MaxBackoff" yaml:"maxBackoff" env:"MAX_BACKOFF"`
}

type Notifier struct {
	QueueCapacity int           `toml:"QueueCapacity" yaml:"queueCapacity" env:"QUEUE_CAPACITY"`
	HistorySize   int           `toml:"HistorySize" yaml:"historySize" env:"HISTORY_SIZE"`
	QueueTTL      time.Duration `toml:"QueueTTL" yaml:"queueTTL" env:"QUEUE_TTL"`
}

// Default returns a configuration suitable for local development. Owner and
// JWTSecret are left empty and must be supplied.
func Default() *Config {
	return &Config{
		Service:  "escrowd",
		Database: "leveldb",
		DataDir:  "./escrowd-data",
		Escrow: Escrow{
			FeeBps:          250,
			TransferTimeout: 5 * time.Second,
		},
		API: API{
			ListenAddress:   ":8090",
			RateLimitPerSec: 20,
			RateLimitBurst:  40,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Telemetry: Telemetry{Endpoint: "localhost:4318"},
		Webhooks: Webhooks{
			Timeout:     5 * time.Second,
			MaxAttempts: 5,
			Backoff:     500 * time.Millisecond,
			MaxBackoff:  30 * time.Second,
		},
		Notifier: Notifier{
			QueueCapacity: 1024,
			HistorySize:   512,
			QueueTTL:      15 * time.Minute,
		},
	}
}

// Load reads the configuration file at path on top of Default, applies
// ESCROWD_* environment overrides and validates the result. The file format
// is chosen by extension: .toml, .yaml or .yml. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays ESCROWD_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func decodeFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(raw), cfg)
		if err != nil {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config file %s: unsupported extension %q", path, ext)
	}
	return nil
}

// Write persists cfg to path in the format implied by its extension.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return toml.NewEncoder(f).Encode(cfg)
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("config file %s: unsupported extension %q", path, ext)
	}
}
