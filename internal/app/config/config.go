package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/observability"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/stream"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

type Config struct {
	Session    ports.Policy                `yaml:"session"`
	Topics     TopicsConfig                `yaml:"topics"`
	Stream     StreamConfig                `yaml:"stream"`
	Classifier ClassifierConfig            `yaml:"classifier"`
	Store      StoreConfig                 `yaml:"store"`
	Redis      RedisConfig                 `yaml:"redis"`
	Journal    JournalConfig               `yaml:"journal"`
	Metrics    MetricsConfig               `yaml:"metrics"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
	Log        LogConfig                   `yaml:"log"`
}

type TopicsConfig struct {
	Blood string `yaml:"blood" validate:"required"`
	Water string `yaml:"water" validate:"required"`
}

// Map returns the subscription topic of each category.
func (t TopicsConfig) Map() map[domain.Category]string {
	return map[domain.Category]string{
		domain.CategoryBlood: t.Blood,
		domain.CategoryWater: t.Water,
	}
}

type StreamConfig struct {
	Source string             `yaml:"source" validate:"oneof=hub redis opcua"`
	Hub    stream.HubConfig   `yaml:"hub"`
	OPCUA  stream.OPCUAConfig `yaml:"opcua"`
}

type ClassifierConfig struct {
	Provider         string        `yaml:"provider" validate:"oneof=none gemini openai"`
	BaseURL          string        `yaml:"base_url"`
	Model            string        `yaml:"model"`
	APIKey           string        `yaml:"api_key" env:"MICROGUARD_CLASSIFIER_API_KEY"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxResponseBytes int64         `yaml:"max_response_bytes" validate:"gte=0"`
}

type StoreConfig struct {
	Driver    string `yaml:"driver" validate:"oneof=memory postgres sqlite redis"`
	DSN       string `yaml:"dsn" env:"MICROGUARD_STORE_DSN"`
	Path      string `yaml:"path"`
	Table     string `yaml:"table"`
	KeyPrefix string `yaml:"key_prefix"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"MICROGUARD_REDIS_ADDR"`
	Password string `yaml:"password" env:"MICROGUARD_REDIS_PASSWORD"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type JournalConfig struct {
	Dir      string `yaml:"dir" env:"MICROGUARD_JOURNAL_DIR"`
	Disabled bool   `yaml:"disabled"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"MICROGUARD_METRICS_ADDR"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"MICROGUARD_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Logger builds the slog logger described by c.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Load reads a YAML file, fills defaults, applies MICROGUARD_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse is Load for an in-memory document. An empty document yields the defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return Parse(nil)
}

func (c *Config) applyDefaults() {
	c.Session = c.Session.WithDefaults()
	if c.Topics.Blood == "" {
		c.Topics.Blood = "SensorData/BloodDetection"
	}
	if c.Topics.Water == "" {
		c.Topics.Water = "SensorData/WaterDetection"
	}
	if c.Stream.Source == "" {
		c.Stream.Source = "hub"
	}
	if c.Stream.Source == "opcua" {
		c.Stream.OPCUA.ApplyDefaults()
	}
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = "none"
	}
	if c.Classifier.APIKey == "" && c.Classifier.APIKeyEnv != "" {
		c.Classifier.APIKey = os.Getenv(c.Classifier.APIKeyEnv)
	}
	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = c.Session.ClassifyTimeout
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Table == "" {
		c.Store.Table = "detections"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = "./data/microguard.db"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks a configuration that was changed after loading.
func (c *Config) Validate() error {
	return c.validate()
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Topics.Blood == c.Topics.Water {
		return errors.New("topics.blood and topics.water must differ")
	}
	if c.Session.OnNoData != ports.NoDataExplicit && c.Session.OnNoData != ports.NoDataSynthetic {
		return fmt.Errorf("session.on_no_data must be %q or %q", ports.NoDataExplicit, ports.NoDataSynthetic)
	}
	if c.Session.SyntheticMin < domain.MinLevel || c.Session.SyntheticMax > domain.MaxLevel || c.Session.SyntheticMin > c.Session.SyntheticMax {
		return fmt.Errorf("session synthetic range [%v, %v] is invalid", c.Session.SyntheticMin, c.Session.SyntheticMax)
	}
	if c.Stream.Source == "opcua" {
		if err := c.Stream.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	}
	if c.Stream.Hub.OnFull != "" && c.Stream.Hub.OnFull != "block" && c.Stream.Hub.OnFull != "drop" {
		return fmt.Errorf("stream.hub.on_full must be block or drop, got %q", c.Stream.Hub.OnFull)
	}
	switch c.Classifier.Provider {
	case "gemini":
		if c.Classifier.APIKey == "" {
			return errors.New("classifier.api_key is required for gemini")
		}
	case "openai":
		if c.Classifier.APIKey == "" && c.Classifier.BaseURL == "" {
			return errors.New("classifier.api_key or classifier.base_url is required for openai")
		}
	}
	if c.Store.Driver == "postgres" && strings.TrimSpace(c.Store.DSN) == "" {
		return errors.New("store.dsn is required for postgres")
	}
	if c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Store.Driver == "redis" || c.Stream.Source == "redis"
}
