// Package session runs timed detection sessions: it races the live reading
// stream against a deadline, classifies the winning reading and persists one
// record per session. Every asynchronous completion carries the epoch it was
// issued under and is dropped when that epoch is no longer live.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/risk"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

const tracerName = "github.com/sanjai-web/Micro-Plastic-Detection/internal/app/session"

var errNoClassifier = errors.New("no remote classifier configured")

// Option customizes a Controller.
type Option func(*Controller)

func WithClock(clk ports.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithJournal records each classified record before it is appended.
func WithJournal(j ports.Journal) Option {
	return func(c *Controller) { c.journal = j }
}

func WithObservability(obs ports.Observability) Option {
	return func(c *Controller) {
		if obs != nil {
			c.obs = obs
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithSubscriber registers a consumer of finalized records.
func WithSubscriber(s ports.RecordSubscriber) Option {
	return func(c *Controller) {
		if s != nil {
			c.subscribers = append(c.subscribers, s)
		}
	}
}

// WithSyntheticSource replaces the filler-level generator used by the synthetic no-data policy.
func WithSyntheticSource(fn func() float64) Option {
	return func(c *Controller) {
		if fn != nil {
			c.synthetic = fn
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// Config holds the static inputs of a Controller.
type Config struct {
	Policy ports.Policy
	Topics map[domain.Category]string
}

type key struct {
	actor string
	cat   domain.Category
}

type session struct {
	key       key
	epoch     uint64
	createdAt time.Time
	state     State
	completed bool
	synthetic bool

	best   *domain.Reading
	winner *domain.Reading

	sub      ports.Subscription
	deadline ports.Timer
	settle   ports.Timer

	pending   *domain.DetectionRecord
	journalID ports.JournalEntryID
	journaled bool

	handle *Handle
}

func (s *session) ref() Ref {
	return Ref{Actor: s.key.actor, Category: s.key.cat, Epoch: s.epoch}
}

// Controller owns at most one live session per (actor, category). Starting a
// session where one is live supersedes the old one.
type Controller struct {
	policy     ports.Policy
	topics     map[domain.Category]string
	stream     ports.ReadingStream
	classifier ports.Classifier
	store      ports.RecordStore
	identity   ports.Identity
	journal    ports.Journal

	clock       ports.Clock
	obs         ports.Observability
	tracer      trace.Tracer
	observers   []Observer
	subscribers []ports.RecordSubscriber
	synthetic   func() float64

	mu       sync.Mutex
	sessions map[key]*session
	epochs   map[key]uint64
	stamps   *stamper
	// parked holds sessions whose record write failed. They no longer occupy
	// their category, but stay reachable by Retry until the write lands.
	parked map[Ref]*session
}

// NewController wires a controller. classifier may be nil, in which case every
// session is classified by the local policy.
func NewController(cfg Config, stream ports.ReadingStream, classifier ports.Classifier, store ports.RecordStore, identity ports.Identity, opts ...Option) (*Controller, error) {
	if stream == nil {
		return nil, fmt.Errorf("reading stream is required")
	}
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("identity is required")
	}

	pol := cfg.Policy.WithDefaults()
	topics := make(map[domain.Category]string, len(cfg.Topics))
	for _, cat := range domain.Categories() {
		topic := cfg.Topics[cat]
		if topic == "" {
			return nil, fmt.Errorf("no topic configured for category %s", cat)
		}
		topics[cat] = topic
	}

	c := &Controller{
		policy:     pol,
		topics:     topics,
		stream:     stream,
		classifier: classifier,
		store:      store,
		identity:   identity,
		clock:      SystemClock{},
		obs:        nopObs{},
		tracer:     otel.Tracer(tracerName),
		synthetic:  uniformLevel(pol.SyntheticMin, pol.SyntheticMax),
		sessions:   make(map[key]*session),
		epochs:     make(map[key]uint64),
		stamps:     newStamper(),
		parked:     make(map[Ref]*session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	identity.OnLogout(func(actor string) { c.CancelActor(actor) })
	return c, nil
}

// Policy returns the effective timing policy.
func (c *Controller) Policy() ports.Policy { return c.policy }

// Start opens a session for the signed-in actor. It returns once the stream is
// attached and the deadline armed; the result arrives through the Handle.
func (c *Controller) Start(ctx context.Context, cat domain.Category) (*Handle, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, cat)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	actor, ok := c.identity.CurrentActor()
	if !ok || actor == "" {
		return nil, domain.ErrNoActor
	}
	k := key{actor: actor, cat: cat}

	c.mu.Lock()
	var after []func()
	if old := c.sessions[k]; old != nil {
		after = c.terminateLocked(old, StateCancelled, Outcome{State: StateCancelled, Err: domain.ErrCancelled})
	}
	c.epochs[k]++
	epoch := c.epochs[k]
	s := &session{
		key:       k,
		epoch:     epoch,
		createdAt: c.clock.Now(),
		state:     StateListening,
		handle:    newHandle(Ref{Actor: actor, Category: cat, Epoch: epoch}),
	}
	c.sessions[k] = s
	s.deadline = c.clock.AfterFunc(c.policy.Deadline(), func() { c.onDeadline(k, epoch) })
	c.mu.Unlock()
	run(after)

	c.obs.IncCounter(ports.MetricSessionsStarted, 1)
	c.obs.AddGauge(ports.GaugeActiveSessions, 1)
	c.obs.LogInfo("session_started",
		ports.Field{Key: "actor", Value: actor},
		ports.Field{Key: "category", Value: cat},
		ports.Field{Key: "epoch", Value: epoch})
	c.notifyState(s.ref(), StateListening)

	topic := c.topics[cat]
	sub, err := c.stream.Attach(topic, func(r domain.Reading) { c.onReading(k, epoch, r) })
	if err != nil {
		// The deadline still governs; the session ends as no-data or synthetic.
		c.obs.LogError("stream_attach_failed", err,
			ports.Field{Key: "topic", Value: topic},
			ports.Field{Key: "epoch", Value: epoch})
		return s.handle, nil
	}

	c.mu.Lock()
	if cur := c.live(k, epoch); cur != nil && !cur.completed {
		cur.sub = sub
		sub = nil
	}
	c.mu.Unlock()
	if sub != nil {
		sub.Detach()
	}
	return s.handle, nil
}

// Cancel aborts the signed-in actor's live session for cat.
func (c *Controller) Cancel(cat domain.Category) bool {
	actor, ok := c.identity.CurrentActor()
	if !ok {
		return false
	}
	return c.cancel(key{actor: actor, cat: cat})
}

// CancelActor aborts every live session of actor and returns how many were cancelled.
func (c *Controller) CancelActor(actor string) int {
	n := 0
	for _, cat := range domain.Categories() {
		if c.cancel(key{actor: actor, cat: cat}) {
			n++
		}
	}
	return n
}

// CancelRef aborts the session named by ref. A newer session for the same
// category is left alone.
func (c *Controller) CancelRef(ref Ref) bool {
	c.mu.Lock()
	s := c.live(key{actor: ref.Actor, cat: ref.Category}, ref.Epoch)
	if s == nil {
		c.mu.Unlock()
		return false
	}
	after := c.terminateLocked(s, StateCancelled, Outcome{State: StateCancelled, Err: domain.ErrCancelled})
	c.mu.Unlock()
	run(after)
	return true
}

func (c *Controller) cancel(k key) bool {
	c.mu.Lock()
	s := c.sessions[k]
	if s == nil {
		c.mu.Unlock()
		return false
	}
	after := c.terminateLocked(s, StateCancelled, Outcome{State: StateCancelled, Err: domain.ErrCancelled})
	c.mu.Unlock()
	run(after)
	return true
}

// Status reports the state and epoch of the live session for (actor, cat).
// Without one it reports the newest parked failed write, or StateIdle with the
// last epoch issued.
func (c *Controller) Status(actor string, cat domain.Category) (State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{actor: actor, cat: cat}
	if s := c.sessions[k]; s != nil {
		return s.state, s.epoch
	}
	var newest *session
	for _, s := range c.parked {
		if s.key == k && (newest == nil || s.epoch > newest.epoch) {
			newest = s
		}
	}
	if newest != nil {
		return newest.state, newest.epoch
	}
	return StateIdle, c.epochs[k]
}

// Retry re-appends the pending record of a session whose write failed. The
// record keeps its key, so a write that actually landed is not duplicated.
func (c *Controller) Retry(ctx context.Context, h *Handle) (domain.DetectionRecord, error) {
	if h == nil {
		return domain.DetectionRecord{}, domain.ErrNotRetryable
	}
	ref := h.Ref()

	c.mu.Lock()
	s := c.parked[ref]
	if s == nil || s.state != StatePersistFailed || s.pending == nil {
		c.mu.Unlock()
		return domain.DetectionRecord{}, domain.ErrNotRetryable
	}
	s.state = StatePersisting
	rec := *s.pending
	jid, journaled := s.journalID, s.journaled
	c.mu.Unlock()
	c.notifyState(ref, StatePersisting)

	err := c.appendRecord(ctx, rec)
	if err != nil {
		perr := &domain.PersistenceError{Record: rec, Err: err}
		c.mu.Lock()
		s.state = StatePersistFailed
		c.mu.Unlock()
		c.notifyState(ref, StatePersistFailed)
		return rec, perr
	}

	// Only Retry leaves the persisting state of a parked session, so s is
	// still parked here.
	c.mu.Lock()
	delete(c.parked, ref)
	after := c.finalizeLocked(s, rec, jid, journaled)
	c.mu.Unlock()
	run(after)
	return rec, nil
}

// live returns the session for k only when epoch is still its current epoch.
func (c *Controller) live(k key, epoch uint64) *session {
	s := c.sessions[k]
	if s == nil || s.epoch != epoch {
		return nil
	}
	return s
}

func (c *Controller) onReading(k key, epoch uint64, r domain.Reading) {
	c.mu.Lock()
	s := c.live(k, epoch)
	if s == nil || s.completed {
		c.mu.Unlock()
		c.obs.IncCounter(ports.MetricStaleEvents, 1)
		return
	}
	reading := r
	s.best = &reading
	var after []func()
	if s.state == StateListening {
		s.state = StateSettling
		s.settle = c.clock.AfterFunc(c.policy.SettleWindow, func() { c.onSettle(k, epoch) })
		ref := s.ref()
		after = append(after, func() { c.notifyState(ref, StateSettling) })
	}
	ref := s.ref()
	c.mu.Unlock()

	for _, o := range c.observers {
		o.OnReading(ref, r)
	}
	run(after)
}

func (c *Controller) onSettle(k key, epoch uint64) {
	c.mu.Lock()
	s := c.live(k, epoch)
	if s == nil || s.completed || s.state != StateSettling || s.best == nil {
		c.mu.Unlock()
		c.obs.IncCounter(ports.MetricStaleEvents, 1)
		return
	}
	after := c.fixLocked(s, *s.best, false)
	c.mu.Unlock()
	run(after)
}

func (c *Controller) onDeadline(k key, epoch uint64) {
	c.mu.Lock()
	s := c.live(k, epoch)
	if s == nil || s.completed {
		c.mu.Unlock()
		c.obs.IncCounter(ports.MetricStaleEvents, 1)
		return
	}

	var after []func()
	switch {
	case s.best != nil:
		after = c.fixLocked(s, *s.best, false)
	case c.policy.OnNoData == ports.NoDataSynthetic:
		level := domain.ClampLevel(c.synthetic())
		after = c.fixLocked(s, domain.Reading{Level: level, ObservedAt: c.clock.Now()}, true)
	default:
		after = c.terminateLocked(s, StateNoData, Outcome{State: StateNoData, Err: domain.ErrNoData})
	}
	c.mu.Unlock()
	run(after)
}

// fixLocked sets the terminal reading, flips the completion flag and hands the
// reading to classification.
func (c *Controller) fixLocked(s *session, r domain.Reading, synthetic bool) []func() {
	s.completed = true
	s.synthetic = synthetic
	s.winner = &r
	s.state = StateClassifying
	c.stopTimersLocked(s)
	sub := s.sub
	s.sub = nil

	k, epoch, ref := s.key, s.epoch, s.ref()
	return []func(){
		func() {
			if sub != nil {
				sub.Detach()
			}
		},
		func() { c.notifyState(ref, StateClassifying) },
		func() { go c.classify(k, epoch, r) },
	}
}

func (c *Controller) classify(k key, epoch uint64, r domain.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), c.policy.ClassifyTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "session.classify", trace.WithAttributes(
		attribute.String("category", string(k.cat)),
		attribute.Int64("epoch", int64(epoch)),
		attribute.Float64("level", r.Level),
	))
	defer span.End()

	start := time.Now()
	res, err := domain.ClassificationResult{}, errNoClassifier
	if c.classifier != nil {
		res, err = c.classifier.Classify(ctx, r.Level, k.cat)
	}
	c.obs.ObserveLatency(ports.LatencyClassify, time.Since(start).Seconds())
	if err != nil {
		span.SetAttributes(attribute.Bool("fallback", true))
		c.obs.RecordFallback(k.cat, r.Level, err)
		res = risk.ClassifyFor(r.Level, k.cat)
	}
	c.onClassified(k, epoch, res)
}

func (c *Controller) onClassified(k key, epoch uint64, res domain.ClassificationResult) {
	c.mu.Lock()
	s := c.live(k, epoch)
	if s == nil || s.state != StateClassifying {
		c.mu.Unlock()
		c.obs.IncCounter(ports.MetricStaleEvents, 1)
		return
	}
	ts := c.stamps.next(k.actor, c.clock.Now())
	rec := domain.NewDetectionRecord(k.actor, k.cat, ts, *s.winner, res)
	s.pending = &rec
	s.state = StatePersisting
	ref := s.ref()
	c.mu.Unlock()

	c.notifyState(ref, StatePersisting)
	c.persist(k, epoch, rec)
}

func (c *Controller) persist(k key, epoch uint64, rec domain.DetectionRecord) {
	var (
		jid       ports.JournalEntryID
		journaled bool
	)
	if c.journal != nil {
		id, err := c.journal.Append(rec)
		if err != nil {
			c.obs.LogError("journal_append_failed", err, ports.Field{Key: "record", Value: rec.Key().String()})
		} else {
			jid, journaled = id, true
			c.obs.SetGauge(ports.GaugeJournalBytes, float64(c.journal.Stats().SizeBytes))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.policy.PersistTimeout)
	defer cancel()
	err := c.appendRecord(ctx, rec)

	c.mu.Lock()
	s := c.live(k, epoch)
	if s == nil || s.state != StatePersisting {
		// Cancelled or superseded while the write was in flight. The journal
		// entry is dropped even when the write failed.
		c.mu.Unlock()
		c.obs.IncCounter(ports.MetricStaleEvents, 1)
		c.commitJournal(jid, journaled)
		if err != nil {
			c.obs.LogInfo("abandoned_write_dropped", ports.Field{Key: "record", Value: rec.Key().String()})
		}
		return
	}
	if err != nil {
		s.state = StatePersistFailed
		s.journalID, s.journaled = jid, journaled
		// Free the category so a new session can start; the failed write
		// stays retryable through its handle.
		delete(c.sessions, s.key)
		c.parked[s.ref()] = s
		perr := &domain.PersistenceError{Record: rec, Err: err}
		r := rec
		s.handle.resolve(Outcome{State: StatePersistFailed, Record: &r, Synthetic: s.synthetic, Err: perr})
		ref := s.ref()
		c.mu.Unlock()
		c.notifyState(ref, StatePersistFailed)
		return
	}
	after := c.finalizeLocked(s, rec, jid, journaled)
	c.mu.Unlock()
	run(after)
}

func (c *Controller) appendRecord(ctx context.Context, rec domain.DetectionRecord) error {
	ctx, span := c.tracer.Start(ctx, "session.persist", trace.WithAttributes(
		attribute.String("record", rec.Key().String()),
		attribute.String("store", c.store.Name()),
	))
	defer span.End()

	start := time.Now()
	_, err := c.store.Append(ctx, rec)
	c.obs.ObserveLatency(ports.LatencyAppend, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		c.obs.IncCounter(ports.MetricAppendFailed, 1)
		c.obs.LogError("record_append_failed", err,
			ports.Field{Key: "record", Value: rec.Key().String()},
			ports.Field{Key: "store", Value: c.store.Name()})
		return domain.Wrap(domain.KindPersistence, "append "+rec.Key().String(), err)
	}
	return nil
}

func (c *Controller) finalizeLocked(s *session, rec domain.DetectionRecord, jid ports.JournalEntryID, journaled bool) []func() {
	s.state = StateFinalized
	if c.sessions[s.key] == s {
		delete(c.sessions, s.key)
	}
	r := rec
	s.handle.resolve(Outcome{State: StateFinalized, Record: &r, Synthetic: s.synthetic})
	ref := s.ref()

	return []func(){
		func() { c.commitJournal(jid, journaled) },
		func() {
			c.obs.IncCounter(ports.MetricSessionsFinalized, 1)
			c.obs.AddGauge(ports.GaugeActiveSessions, -1)
			c.obs.LogInfo("session_finalized",
				ports.Field{Key: "record", Value: rec.Key().String()},
				ports.Field{Key: "tier", Value: rec.Classification.Tier},
				ports.Field{Key: "level", Value: rec.Reading.Level})
		},
		func() { c.notifyState(ref, StateFinalized) },
		func() {
			for _, sub := range c.subscribers {
				if err := sub.OnFinalized(rec); err != nil {
					c.obs.LogError("record_subscriber_failed", err, ports.Field{Key: "subscriber", Value: sub.Name()})
				}
			}
		},
	}
}

// terminateLocked ends a session without a record (cancelled or no data).
func (c *Controller) terminateLocked(s *session, st State, o Outcome) []func() {
	s.state = st
	s.completed = true
	c.stopTimersLocked(s)
	sub := s.sub
	s.sub = nil
	if c.sessions[s.key] == s {
		delete(c.sessions, s.key)
	}
	s.handle.resolve(o)
	ref := s.ref()

	metric := ports.MetricSessionsCancelled
	if st == StateNoData {
		metric = ports.MetricSessionsNoData
	}
	return []func(){
		func() {
			if sub != nil {
				sub.Detach()
			}
		},
		func() {
			c.obs.IncCounter(metric, 1)
			c.obs.AddGauge(ports.GaugeActiveSessions, -1)
			c.obs.LogInfo("session_"+st.String(),
				ports.Field{Key: "actor", Value: ref.Actor},
				ports.Field{Key: "category", Value: ref.Category},
				ports.Field{Key: "epoch", Value: ref.Epoch})
		},
		func() { c.notifyState(ref, st) },
	}
}

func (c *Controller) stopTimersLocked(s *session) {
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
}

func (c *Controller) commitJournal(id ports.JournalEntryID, journaled bool) {
	if !journaled || c.journal == nil {
		return
	}
	if err := c.journal.Commit(id); err != nil {
		c.obs.LogError("journal_commit_failed", err, ports.Field{Key: "entry", Value: id})
	}
}

func (c *Controller) notifyState(ref Ref, st State) {
	for _, o := range c.observers {
		o.OnStateChange(ref, st)
	}
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)                 {}
func (nopObs) LogError(string, error, ...ports.Field)         {}
func (nopObs) LogCritical(string, error, ...ports.Field)      {}
func (nopObs) IncCounter(string, float64)                     {}
func (nopObs) ObserveLatency(string, float64)                 {}
func (nopObs) SetGauge(string, float64)                       {}
func (nopObs) AddGauge(string, float64)                       {}
func (nopObs) RecordFallback(domain.Category, float64, error) {}
