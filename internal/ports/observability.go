package ports

import "github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
	AddGauge(name string, delta float64)

	RecordFallback(cat domain.Category, level float64, err error)
}

type Field struct {
	Key   string
	Value any
}

// Metric names shared by the engine and the Prometheus adapter.
const (
	MetricSessionsStarted    = "microguard_sessions_started_total"
	MetricSessionsFinalized  = "microguard_sessions_finalized_total"
	MetricSessionsCancelled  = "microguard_sessions_cancelled_total"
	MetricSessionsNoData     = "microguard_sessions_no_data_total"
	MetricClassifierFallback = "microguard_classifier_fallback_total"
	MetricAppendFailed       = "microguard_record_append_failed_total"
	MetricStaleEvents        = "microguard_stale_events_total"
	MetricPayloadDropped     = "microguard_stream_payload_dropped_total"
	MetricHubDropped         = "microguard_hub_dropped_total"
	MetricJournalReplayed    = "microguard_journal_replayed_total"

	GaugeActiveSessions = "microguard_active_sessions"
	GaugeJournalBytes   = "microguard_journal_size_bytes"
	GaugeHubQueueLength = "microguard_hub_queue_length"

	LatencyClassify = "microguard_classify_latency_seconds"
	LatencyAppend   = "microguard_append_latency_seconds"
)
