package microguard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/classifier"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/identity"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/journal"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/observability"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/stream"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/certificate"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/history"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/recovery"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/session"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

var (
	// ErrNoLocalHub is returned by Publish when the engine reads from an
	// external source rather than its in-process hub.
	ErrNoLocalHub = errors.New("microguard: engine has no local hub")
	// ErrReadingDropped is returned when the hub rejected a payload.
	ErrReadingDropped = errors.New("microguard: reading dropped by hub")
	// ErrIdentityReadOnly is returned by Login and Logout when the configured
	// identity cannot be driven by the engine.
	ErrIdentityReadOnly = errors.New("microguard: identity does not accept login")
)

// RecoveryResult counts what a journal replay did.
type RecoveryResult = recovery.Result

// Option customizes the dependencies used by Engine.
type Option func(*overrides)

type overrides struct {
	source        ports.PushSource
	stream        ports.ReadingStream
	classifier    ports.Classifier
	classifierSet bool
	store         ports.RecordStore
	journal       ports.Journal
	identity      ports.Identity
	obs           ports.Observability
	registry      *prometheus.Registry
	clock         ports.Clock
	synthetic     func() float64
	observers     []session.Observer
	subscribers   []ports.RecordSubscriber
}

// WithPushSource injects a raw push subscription service (MQTT, test feeds, etc.).
func WithPushSource(src PushSource) Option {
	return func(o *overrides) { o.source = src }
}

// WithReadingStream replaces the decoding stream layer entirely.
func WithReadingStream(s ReadingStream) Option {
	return func(o *overrides) { o.stream = s }
}

// WithClassifier overrides the configured classifier. A nil classifier makes
// every session use the local policy.
func WithClassifier(c Classifier) Option {
	return func(o *overrides) {
		o.classifier = c
		o.classifierSet = true
	}
}

// WithCompleter classifies through a caller-provided language model client.
func WithCompleter(c Completer) Option {
	return WithClassifier(classifier.NewRemote(c))
}

// WithStore injects a custom record store.
func WithStore(s RecordStore) Option {
	return func(o *overrides) { o.store = s }
}

// WithJournal lets callers bring their own journal implementation.
func WithJournal(j Journal) Option {
	return func(o *overrides) { o.journal = j }
}

// WithIdentity plugs in the host application's identity provider.
func WithIdentity(id Identity) Option {
	return func(o *overrides) { o.identity = id }
}

// WithObservability replaces the default Prometheus and slog backend.
func WithObservability(obs Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// WithMetricsRegistry registers the default Prometheus metrics on reg instead
// of the global registerer, and serves reg on /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *overrides) { o.registry = reg }
}

func WithClock(clk Clock) Option {
	return func(o *overrides) { o.clock = clk }
}

// WithSyntheticSource replaces the filler level generator used when
// session.on_no_data is "synthetic".
func WithSyntheticSource(fn func() float64) Option {
	return func(o *overrides) { o.synthetic = fn }
}

// WithObserver registers a live-session observer.
func WithObserver(obs Observer) Option {
	return func(o *overrides) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithSubscriber registers a subscriber notified after each record is persisted.
func WithSubscriber(s RecordSubscriber) Option {
	return func(o *overrides) {
		if s != nil {
			o.subscribers = append(o.subscribers, s)
		}
	}
}

type loginIdentity interface {
	Login(actor string)
	Logout()
}

// Engine wires the reading stream, classifier, journal and record store around
// a session controller and exposes the detection workflow to Go callers.
type Engine struct {
	cfg      *Config
	obs      ports.Observability
	clock    ports.Clock
	identity ports.Identity
	store    ports.RecordStore
	journal  ports.Journal
	hub      *stream.Hub
	ctrl     *session.Controller
	res      resources
	metrics  http.Handler

	traceShutdown func(context.Context) error
	shutdownOnce  sync.Once
	shutdownErr   error
}

// NewEngine bootstraps the adapters named by cfg (hub, Redis or OPC UA source;
// memory, Postgres, SQLite or Redis store; file journal; Prometheus
// observability). Options override any of them. Records left in the journal
// by a previous run are replayed into the store before the engine is returned.
func NewEngine(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	e := &Engine{cfg: cfg, clock: o.clock}
	if e.clock == nil {
		e.clock = session.SystemClock{}
	}
	e.obs = o.obs
	e.metrics = observability.Handler()
	if e.obs == nil {
		var reg prometheus.Registerer = prometheus.DefaultRegisterer
		if o.registry != nil {
			reg = o.registry
		}
		prom := observability.NewPromObsWith(reg, cfg.Log.Logger(os.Stderr))
		e.obs, e.metrics = prom, prom.Handler()
	}

	if err := e.build(&o); err != nil {
		_ = e.closeResources()
		if e.traceShutdown != nil {
			_ = e.traceShutdown(context.Background())
		}
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(o *overrides) error {
	ctx := context.Background()
	cfg := e.cfg

	shutdown, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	e.traceShutdown = shutdown

	e.journal = o.journal
	if e.journal == nil && !cfg.Journal.Disabled {
		fj, err := journal.NewFileJournal(cfg.Journal.Dir)
		if err != nil {
			return err
		}
		e.journal = fj
		e.res.closers = append(e.res.closers, fj.Close)
	}

	e.store = o.store
	if e.store == nil {
		if e.store, err = buildStore(ctx, cfg, &e.res); err != nil {
			return err
		}
	}

	if e.journal != nil {
		if _, err := recovery.Replay(ctx, e.journal, e.store, e.obs); err != nil {
			return err
		}
	}

	rs := o.stream
	if rs == nil {
		src := o.source
		if src == nil {
			var hub *stream.Hub
			if src, hub, err = buildSource(cfg, e.obs, &e.res); err != nil {
				return err
			}
			e.hub = hub
			e.res.closers = append(e.res.closers, src.Close)
		}
		rs = stream.New(src, e.obs)
	}

	cls := o.classifier
	if !o.classifierSet {
		if cls, err = buildClassifier(cfg.Classifier); err != nil {
			return err
		}
	}

	e.identity = o.identity
	if e.identity == nil {
		e.identity = identity.NewTracker()
	}

	ctrlOpts := []session.Option{
		session.WithObservability(e.obs),
		session.WithClock(e.clock),
	}
	if e.journal != nil {
		ctrlOpts = append(ctrlOpts, session.WithJournal(e.journal))
	}
	if o.synthetic != nil {
		ctrlOpts = append(ctrlOpts, session.WithSyntheticSource(o.synthetic))
	}
	for _, obs := range o.observers {
		ctrlOpts = append(ctrlOpts, session.WithObserver(obs))
	}
	for _, s := range o.subscribers {
		ctrlOpts = append(ctrlOpts, session.WithSubscriber(s))
	}

	e.ctrl, err = session.NewController(session.Config{
		Policy: cfg.Session,
		Topics: cfg.Topics.Map(),
	}, rs, cls, e.store, e.identity, ctrlOpts...)
	return err
}

// Policy returns the effective session timings.
func (e *Engine) Policy() Policy { return e.ctrl.Policy() }

// Login makes actor current; switching actors cancels the previous actor's sessions.
func (e *Engine) Login(actor string) error {
	li, ok := e.identity.(loginIdentity)
	if !ok {
		return ErrIdentityReadOnly
	}
	li.Login(actor)
	return nil
}

// Logout signs the current actor out and cancels their live sessions.
func (e *Engine) Logout() error {
	li, ok := e.identity.(loginIdentity)
	if !ok {
		return ErrIdentityReadOnly
	}
	li.Logout()
	return nil
}

func (e *Engine) CurrentActor() (string, bool) { return e.identity.CurrentActor() }

// Start opens a detection session for the signed-in actor.
func (e *Engine) Start(ctx context.Context, cat Category) (*Handle, error) {
	return e.ctrl.Start(ctx, cat)
}

// Detect starts a session and waits for its first outcome.
func (e *Engine) Detect(ctx context.Context, cat Category) (Outcome, error) {
	h, err := e.ctrl.Start(ctx, cat)
	if err != nil {
		return Outcome{}, err
	}
	out, err := h.Wait(ctx)
	if err != nil {
		e.ctrl.CancelRef(h.Ref())
		return Outcome{}, err
	}
	return out, nil
}

// Cancel aborts the signed-in actor's live session for cat.
func (e *Engine) Cancel(cat Category) bool { return e.ctrl.Cancel(cat) }

// CancelSession aborts the session behind h, if it is still the current one.
func (e *Engine) CancelSession(h *Handle) bool {
	if h == nil {
		return false
	}
	return e.ctrl.CancelRef(h.Ref())
}

// Retry re-appends the record of a session whose write failed.
func (e *Engine) Retry(ctx context.Context, h *Handle) (DetectionRecord, error) {
	return e.ctrl.Retry(ctx, h)
}

// Status reports the signed-in actor's session state for cat.
func (e *Engine) Status(cat Category) (State, uint64) {
	actor, _ := e.identity.CurrentActor()
	return e.ctrl.Status(actor, cat)
}

// History lists the signed-in actor's records, most recent first. A nil
// category lists both.
func (e *Engine) History(ctx context.Context, cat *Category) ([]DetectionRecord, error) {
	actor, ok := e.identity.CurrentActor()
	if !ok {
		return nil, domain.ErrNoActor
	}
	return e.store.ListByActor(ctx, actor, cat)
}

// Summary is the signed-in actor's dashboard overview.
func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	recs, err := e.History(ctx, nil)
	if err != nil {
		return Summary{}, err
	}
	return history.Summarize(recs, e.clock.Now()), nil
}

// Certificate renders rec with up to three distinct earlier records of the
// same category from the store.
func (e *Engine) Certificate(ctx context.Context, rec DetectionRecord, profile Profile) (Document, error) {
	cat := rec.Category
	priors, err := e.store.ListByActor(ctx, rec.ActorID, &cat)
	if err != nil {
		return Document{}, fmt.Errorf("list history: %w", err)
	}
	return certificate.Render(rec, priors, profile, e.clock.Now()), nil
}

// Recover replays journaled records that have not reached the store.
func (e *Engine) Recover(ctx context.Context) (RecoveryResult, error) {
	if e.journal == nil {
		return RecoveryResult{}, nil
	}
	return recovery.Replay(ctx, e.journal, e.store, e.obs)
}

// Publish feeds a raw payload for cat into the in-process hub.
func (e *Engine) Publish(cat Category, payload []byte) error {
	if e.hub == nil {
		return ErrNoLocalHub
	}
	topic, ok := e.cfg.Topics.Map()[cat]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, cat)
	}
	if !e.hub.Publish(topic, payload) {
		return ErrReadingDropped
	}
	return nil
}

// PublishLevel feeds a bare contamination level for cat into the in-process hub.
func (e *Engine) PublishLevel(cat Category, level float64) error {
	return e.Publish(cat, []byte(strconv.FormatFloat(level, 'f', -1, 64)))
}

// Handler serves /metrics and /healthz.
func (e *Engine) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ServeMetrics runs the metrics server until ctx ends and samples the journal
// gauge once a second.
func (e *Engine) ServeMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              e.cfg.Metrics.Addr,
		Handler:           e.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := make(chan struct{})
	defer close(stop)
	go e.recordGauges(stop, time.Second)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (e *Engine) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if e.journal != nil {
				e.obs.SetGauge(ports.GaugeJournalBytes, float64(e.journal.Stats().SizeBytes))
			}
		}
	}
}

// Run serves metrics and blocks until ctx is cancelled, then shuts down.
func (e *Engine) Run(ctx context.Context) error {
	serveErr := e.ServeMetrics(ctx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(serveErr, e.Shutdown(shutdownCtx))
}

// Shutdown cancels the current actor's sessions and closes everything the
// engine opened. It is safe to call more than once.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() {
		var errs []error
		if actor, ok := e.identity.CurrentActor(); ok {
			e.ctrl.CancelActor(actor)
		}
		if e.traceShutdown != nil {
			if err := e.traceShutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		errs = append(errs, e.closeResources())
		e.shutdownErr = errors.Join(errs...)
	})
	return e.shutdownErr
}

func (e *Engine) closeResources() error {
	var errs []error
	for i := len(e.res.closers) - 1; i >= 0; i-- {
		if err := e.res.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.res.closers = nil
	return errors.Join(errs...)
}
