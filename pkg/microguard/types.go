package microguard

import (
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/certificate"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/history"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/session"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// Category is the kind of sample under test: blood or water.
type Category = domain.Category

const (
	CategoryBlood = domain.CategoryBlood
	CategoryWater = domain.CategoryWater
)

// ParseCategory resolves "blood" or "water" case-insensitively.
func ParseCategory(name string) (Category, error) { return domain.ParseCategory(name) }

type (
	// Reading is one contamination measurement from the live stream.
	Reading = domain.Reading
	// RiskTier is the band a level falls into.
	RiskTier = domain.RiskTier
	// ClassificationResult is the tier, advice and retest interval of a reading.
	ClassificationResult = domain.ClassificationResult
	// DetectionRecord is the immutable result of one finalized session.
	DetectionRecord = domain.DetectionRecord
	// RecordDocument is the persisted layout of a record.
	RecordDocument = domain.RecordDocument
)

type (
	// State is the lifecycle position of a session.
	State = session.State
	// Handle tracks one started session.
	Handle = session.Handle
	// Outcome is the caller-visible result of a session.
	Outcome = session.Outcome
	// Ref identifies one session attempt.
	Ref = session.Ref
	// Observer receives live readings and state changes.
	Observer = session.Observer
)

const (
	StateIdle          = session.StateIdle
	StateListening     = session.StateListening
	StateSettling      = session.StateSettling
	StateClassifying   = session.StateClassifying
	StatePersisting    = session.StatePersisting
	StatePersistFailed = session.StatePersistFailed
	StateFinalized     = session.StateFinalized
	StateCancelled     = session.StateCancelled
	StateNoData        = session.StateNoData
)

type (
	// Summary is the per-actor dashboard overview.
	Summary = history.Summary
	// Profile is the certificate holder.
	Profile = certificate.Profile
	// Document is a rendered certificate.
	Document = certificate.Document
)

// Ports that callers can implement to replace a default adapter.
type (
	PushSource       = ports.PushSource
	ReadingStream    = ports.ReadingStream
	Subscription     = ports.Subscription
	Classifier       = ports.Classifier
	Completer        = ports.Completer
	RecordStore      = ports.RecordStore
	RecordSubscriber = ports.RecordSubscriber
	Journal          = ports.Journal
	JournalStats     = ports.JournalStats
	Identity         = ports.Identity
	Clock            = ports.Clock
	Timer            = ports.Timer
	Observability    = ports.Observability
	Field            = ports.Field
)

// Error kinds callers can match with errors.Is.
var (
	ErrTransient       = domain.ErrTransient
	ErrPersistence     = domain.ErrPersistence
	ErrProtocol        = domain.ErrProtocol
	ErrCancelled       = domain.ErrCancelled
	ErrNoData          = domain.ErrNoData
	ErrNoActor         = domain.ErrNoActor
	ErrNotRetryable    = domain.ErrNotRetryable
	ErrUnknownCategory = domain.ErrUnknownCategory
)
