package microguard

import (
	"context"
	"fmt"
)

// Flow builds an Engine in three steps: Conf loads the configuration,
// StreamIN shapes how readings arrive and how sessions are timed, and
// StreamOUT decides where classified records go before building the engine.
type Flow struct {
	cfg  *Config
	opts []Option
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the reading side: source, topics, session timing,
// identity, clock and live observers.
type StreamInOption func(*Flow)

// StreamOutOption configures the result side: classifier, no-data handling,
// journal, store and record subscribers.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk and returns a Flow for it.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config. The Flow edits
// cfg in place.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// StreamIN applies reading-side options.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT applies result-side options, re-validates the configuration the
// options may have changed, and builds the Engine.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Engine, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if err := f.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}
	return NewEngine(f.cfg, f.opts...)
}

// Run builds the engine and serves it until ctx ends.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	eng, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return eng.Run(ctx)
}

// WithFlowOptions appends engine options during Conf.
func WithFlowOptions(opts ...Option) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInSource reads raw payloads from src instead of the configured source.
func StreamInSource(src PushSource) StreamInOption {
	return func(f *Flow) {
		if f != nil && src != nil {
			f.appendOptions(WithPushSource(src))
		}
	}
}

// StreamInTopics replaces the per-category topics. Empty fields keep the
// configured topic.
func StreamInTopics(topics TopicsConfig) StreamInOption {
	return func(f *Flow) {
		if f == nil {
			return
		}
		if topics.Blood != "" {
			f.cfg.Topics.Blood = topics.Blood
		}
		if topics.Water != "" {
			f.cfg.Topics.Water = topics.Water
		}
	}
}

// StreamInPolicy replaces the session timings. Unset durations fall back to
// the standard 7s scan with a 2s grace.
func StreamInPolicy(p Policy) StreamInOption {
	return func(f *Flow) {
		if f != nil {
			f.cfg.Session = p.WithDefaults()
		}
	}
}

func StreamInIdentity(id Identity) StreamInOption {
	return func(f *Flow) {
		if f != nil && id != nil {
			f.appendOptions(WithIdentity(id))
		}
	}
}

func StreamInClock(clk Clock) StreamInOption {
	return func(f *Flow) {
		if f != nil && clk != nil {
			f.appendOptions(WithClock(clk))
		}
	}
}

// StreamInObserver watches readings and state changes of live sessions.
func StreamInObserver(obs Observer) StreamInOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithObserver(obs))
		}
	}
}

// StreamInObservability replaces the Prometheus and slog backend.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutNoData chooses what a session without a live reading produces:
// NoDataExplicit ends it with ErrNoData, NoDataSynthetic records a filler
// level drawn from source, or from the configured range when source is nil.
func StreamOutNoData(mode string, source func() float64) StreamOutOption {
	return func(f *Flow) {
		if f == nil {
			return
		}
		f.cfg.Session.OnNoData = mode
		if source != nil {
			f.appendOptions(WithSyntheticSource(source))
		}
	}
}

func StreamOutStore(s RecordStore) StreamOutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithStore(s))
		}
	}
}

// StreamOutJournal records each classified record in j before it is stored.
func StreamOutJournal(j Journal) StreamOutOption {
	return func(f *Flow) {
		if f != nil && j != nil {
			f.appendOptions(WithJournal(j))
		}
	}
}

// StreamOutClassifier overrides the configured classifier. A nil classifier
// grades every reading with the local risk policy.
func StreamOutClassifier(c Classifier) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithClassifier(c))
		}
	}
}

// StreamOutCallback calls fn with every persisted detection record.
func StreamOutCallback(name string, fn RecordCallback) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithSubscriber(NewCallbackSubscriber(name, fn)))
		}
	}
}

func (f *Flow) appendOptions(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
