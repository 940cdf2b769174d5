package microguard

import (
	"github.com/prometheus/client_golang/prometheus"

	base "github.com/sanjai-web/Micro-Plastic-Detection/pkg/microguard"
)

// Re-exported errors for convenience.
var (
	ErrTransient        = base.ErrTransient
	ErrPersistence      = base.ErrPersistence
	ErrProtocol         = base.ErrProtocol
	ErrCancelled        = base.ErrCancelled
	ErrNoData           = base.ErrNoData
	ErrNoActor          = base.ErrNoActor
	ErrNotRetryable     = base.ErrNotRetryable
	ErrUnknownCategory  = base.ErrUnknownCategory
	ErrNoLocalHub       = base.ErrNoLocalHub
	ErrReadingDropped   = base.ErrReadingDropped
	ErrIdentityReadOnly = base.ErrIdentityReadOnly
	ErrSubscriberClosed = base.ErrSubscriberClosed
)

const (
	CategoryBlood = base.CategoryBlood
	CategoryWater = base.CategoryWater

	StateIdle          = base.StateIdle
	StateListening     = base.StateListening
	StateSettling      = base.StateSettling
	StateClassifying   = base.StateClassifying
	StatePersisting    = base.StatePersisting
	StatePersistFailed = base.StatePersistFailed
	StateFinalized     = base.StateFinalized
	StateCancelled     = base.StateCancelled
	StateNoData        = base.StateNoData

	NoDataExplicit  = base.NoDataExplicit
	NoDataSynthetic = base.NoDataSynthetic
)

// Type aliases so consumers can import github.com/sanjai-web/Micro-Plastic-Detection directly.
type (
	Config               = base.Config
	Policy               = base.Policy
	TopicsConfig         = base.TopicsConfig
	StreamConfig         = base.StreamConfig
	HubConfig            = base.HubConfig
	OPCUAConfig          = base.OPCUAConfig
	OPCUANode            = base.OPCUANode
	ClassifierConfig     = base.ClassifierConfig
	StoreConfig          = base.StoreConfig
	RedisConfig          = base.RedisConfig
	JournalConfig        = base.JournalConfig
	MetricsConfig        = base.MetricsConfig
	TracingConfig        = base.TracingConfig
	LogConfig            = base.LogConfig
	Engine               = base.Engine
	Flow                 = base.Flow
	FlowOption           = base.FlowOption
	StreamInOption       = base.StreamInOption
	StreamOutOption      = base.StreamOutOption
	Option               = base.Option
	Category             = base.Category
	Reading              = base.Reading
	RiskTier             = base.RiskTier
	ClassificationResult = base.ClassificationResult
	DetectionRecord      = base.DetectionRecord
	RecordDocument       = base.RecordDocument
	State                = base.State
	Handle               = base.Handle
	Outcome              = base.Outcome
	Ref                  = base.Ref
	Observer             = base.Observer
	Summary              = base.Summary
	Profile              = base.Profile
	Document             = base.Document
	RecoveryResult       = base.RecoveryResult
	RecordCallback       = base.RecordCallback
	PushSource           = base.PushSource
	ReadingStream        = base.ReadingStream
	Subscription         = base.Subscription
	Classifier           = base.Classifier
	Completer            = base.Completer
	RecordStore          = base.RecordStore
	RecordSubscriber     = base.RecordSubscriber
	Journal              = base.Journal
	JournalStats         = base.JournalStats
	Identity             = base.Identity
	Clock                = base.Clock
	Timer                = base.Timer
	Observability        = base.Observability
	Field                = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() (*Config, error) {
	return base.DefaultConfig()
}

func ParseCategory(name string) (Category, error) {
	return base.ParseCategory(name)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...Option) FlowOption              { return base.WithFlowOptions(opts...) }
func StreamInSource(src PushSource) StreamInOption           { return base.StreamInSource(src) }
func StreamInIdentity(id Identity) StreamInOption            { return base.StreamInIdentity(id) }
func StreamInObservability(obs Observability) StreamInOption { return base.StreamInObservability(obs) }
func StreamInTopics(topics TopicsConfig) StreamInOption      { return base.StreamInTopics(topics) }
func StreamInPolicy(p Policy) StreamInOption                 { return base.StreamInPolicy(p) }
func StreamInClock(clk Clock) StreamInOption                 { return base.StreamInClock(clk) }
func StreamInObserver(obs Observer) StreamInOption           { return base.StreamInObserver(obs) }
func StreamOutJournal(j Journal) StreamOutOption             { return base.StreamOutJournal(j) }
func StreamOutStore(s RecordStore) StreamOutOption           { return base.StreamOutStore(s) }
func StreamOutClassifier(c Classifier) StreamOutOption       { return base.StreamOutClassifier(c) }
func StreamOutCallback(name string, fn RecordCallback) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

func StreamOutNoData(mode string, source func() float64) StreamOutOption {
	return base.StreamOutNoData(mode, source)
}

// Engine and options.
func NewEngine(cfg *Config, opts ...Option) (*Engine, error) {
	return base.NewEngine(cfg, opts...)
}

func WithPushSource(src PushSource) Option                { return base.WithPushSource(src) }
func WithReadingStream(s ReadingStream) Option            { return base.WithReadingStream(s) }
func WithClassifier(c Classifier) Option                  { return base.WithClassifier(c) }
func WithCompleter(c Completer) Option                    { return base.WithCompleter(c) }
func WithStore(s RecordStore) Option                      { return base.WithStore(s) }
func WithJournal(j Journal) Option                        { return base.WithJournal(j) }
func WithIdentity(id Identity) Option                     { return base.WithIdentity(id) }
func WithObservability(obs Observability) Option          { return base.WithObservability(obs) }
func WithClock(clk Clock) Option                          { return base.WithClock(clk) }
func WithMetricsRegistry(reg *prometheus.Registry) Option { return base.WithMetricsRegistry(reg) }
func WithSyntheticSource(fn func() float64) Option        { return base.WithSyntheticSource(fn) }
func WithObserver(obs Observer) Option                    { return base.WithObserver(obs) }
func WithSubscriber(s RecordSubscriber) Option            { return base.WithSubscriber(s) }

// Subscriber adapters.
func NewCallbackSubscriber(name string, fn RecordCallback) RecordSubscriber {
	return base.NewCallbackSubscriber(name, fn)
}

func NewChannelSubscriber(name string, buffer int) (RecordSubscriber, <-chan DetectionRecord, func()) {
	return base.NewChannelSubscriber(name, buffer)
}
