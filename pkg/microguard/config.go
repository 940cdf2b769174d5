package microguard

import (
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/observability"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/stream"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/config"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls session timing and the no-data behaviour.
	Policy = ports.Policy
	// TopicsConfig names the stream topic of each category.
	TopicsConfig = config.TopicsConfig
	// StreamConfig selects the live-reading source.
	StreamConfig = config.StreamConfig
	// HubConfig sizes the in-process hub.
	HubConfig = stream.HubConfig
	// OPCUAConfig holds connection and node details for the OPC UA source.
	OPCUAConfig = stream.OPCUAConfig
	// OPCUANode binds a monitored node to a topic.
	OPCUANode = stream.OPCUANode
	// ClassifierConfig selects the remote classifier.
	ClassifierConfig = config.ClassifierConfig
	// StoreConfig selects the record store.
	StoreConfig = config.StoreConfig
	// RedisConfig is shared by the Redis stream and store.
	RedisConfig = config.RedisConfig
	// JournalConfig configures the on-disk record journal.
	JournalConfig = config.JournalConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// TracingConfig enables OTLP span export.
	TracingConfig = observability.TracingConfig
	// LogConfig selects log level and format.
	LogConfig = config.LogConfig
)

const (
	NoDataExplicit  = ports.NoDataExplicit
	NoDataSynthetic = ports.NoDataSynthetic
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() (*Config, error) {
	return config.Default()
}
