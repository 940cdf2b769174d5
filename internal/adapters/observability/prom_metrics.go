// Package observability implements ports.Observability with Prometheus metrics
// and structured slog logging, and sets up OTLP tracing.
package observability

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

type PromObs struct {
	log       *slog.Logger
	counters  map[string]prometheus.Counter
	gauges    map[string]prometheus.Gauge
	histos    map[string]prometheus.Observer
	fallbacks *prometheus.CounterVec
	gatherer  prometheus.Gatherer
}

// NewPromObs registers the engine metrics on the default registerer. A nil
// logger logs JSON to stderr.
func NewPromObs(logger *slog.Logger) *PromObs {
	return NewPromObsWith(prometheus.DefaultRegisterer, logger)
}

// NewPromObsWith registers the engine metrics on reg. Metrics already
// registered there by an earlier backend are shared rather than rejected, so
// several engines can live in one process.
func NewPromObsWith(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		ports.MetricSessionsStarted:   counter(ports.MetricSessionsStarted, "Detection sessions started."),
		ports.MetricSessionsFinalized: counter(ports.MetricSessionsFinalized, "Sessions that persisted a record."),
		ports.MetricSessionsCancelled: counter(ports.MetricSessionsCancelled, "Sessions cancelled or superseded."),
		ports.MetricSessionsNoData:    counter(ports.MetricSessionsNoData, "Sessions that ended without a reading."),
		ports.MetricAppendFailed:      counter(ports.MetricAppendFailed, "Record store appends that failed."),
		ports.MetricStaleEvents:       counter(ports.MetricStaleEvents, "Stream, timer and completion events dropped as stale."),
		ports.MetricPayloadDropped:    counter(ports.MetricPayloadDropped, "Stream payloads that could not be decoded."),
		ports.MetricHubDropped:        counter(ports.MetricHubDropped, "Payloads lost to hub backpressure."),
		ports.MetricJournalReplayed:   counter(ports.MetricJournalReplayed, "Journal entries re-appended at start-up."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.GaugeActiveSessions: gauge(ports.GaugeActiveSessions, "Sessions not yet in a terminal state."),
		ports.GaugeJournalBytes:   gauge(ports.GaugeJournalBytes, "Size of the record journal on disk."),
		ports.GaugeHubQueueLength: gauge(ports.GaugeHubQueueLength, "Payloads buffered in the in-process hub."),
	}
	classify := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.LatencyClassify,
		Help:    "Time spent classifying a terminal reading.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	appendLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.LatencyAppend,
		Help:    "Time spent appending a record to the store.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricClassifierFallback,
		Help: "Classifications served by the local policy.",
	}, []string{"category"})

	for name, c := range counters {
		counters[name] = register(reg, c)
	}
	for name, g := range gauges {
		gauges[name] = register(reg, g)
	}
	classify = register(reg, classify)
	appendLatency = register(reg, appendLatency)
	fallbacks = register(reg, fallbacks)

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &PromObs{
		log:      logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			ports.LatencyClassify: classify,
			ports.LatencyAppend:   appendLatency,
		},
		fallbacks: fallbacks,
		gatherer:  gatherer,
	}
}

// register adds c to reg, or returns the collector already registered under
// the same descriptor. Any other registration error is a programming error.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	panic(err)
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(attrs(fields), "error", err)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(attrs(fields), "error", err, "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) AddGauge(name string, delta float64) {
	if g, ok := p.gauges[name]; ok {
		g.Add(delta)
	}
}

func (p *PromObs) RecordFallback(cat domain.Category, level float64, err error) {
	p.fallbacks.WithLabelValues(string(cat)).Inc()
	p.log.Warn("classifier_fallback", "category", string(cat), "level", level, "error", err)
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Handler serves the registry p was built on.
func (p *PromObs) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

var _ ports.Observability = (*PromObs)(nil)
