package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/journal"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/recovery"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/risk"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

type manualTimer struct {
	clk     *manualClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clk: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires due timers in order on the calling goroutine.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// fire runs a timer callback regardless of its state, as a late OS timer would.
func (c *manualClock) fire(idx int) {
	c.mu.Lock()
	t := c.timers[idx]
	c.mu.Unlock()
	t.fn()
}

type fakeSub struct {
	s     *fakeStream
	topic string
	id    int
}

func (f *fakeSub) Detach() {
	f.s.mu.Lock()
	delete(f.s.handlers, f.id)
	f.s.mu.Unlock()
}

func (f *fakeSub) Topic() string { return f.topic }

type fakeStream struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(domain.Reading)
	topics   map[int]string
	fail     error
	// captured keeps every handler, live or not, so tests can replay stale deliveries.
	captured []func(domain.Reading)
}

func newFakeStream() *fakeStream {
	return &fakeStream{handlers: map[int]func(domain.Reading){}, topics: map[int]string{}}
}

func (s *fakeStream) Attach(topic string, h func(domain.Reading)) (ports.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	s.next++
	s.handlers[s.next] = h
	s.topics[s.next] = topic
	s.captured = append(s.captured, h)
	return &fakeSub{s: s, topic: topic, id: s.next}, nil
}

func (s *fakeStream) push(topic string, r domain.Reading) {
	s.mu.Lock()
	var hs []func(domain.Reading)
	for id, h := range s.handlers {
		if s.topics[id] == topic {
			hs = append(hs, h)
		}
	}
	s.mu.Unlock()
	for _, h := range hs {
		h(r)
	}
}

func (s *fakeStream) attached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]domain.DetectionRecord
	appends int
	fails   int
	// When gate is set, Append signals entered and blocks until gate closes.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]domain.DetectionRecord{}}
}

func (s *fakeStore) Append(ctx context.Context, rec domain.DetectionRecord) (domain.RecordID, error) {
	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.fails > 0 {
		s.fails--
		return "", errors.New("store offline")
	}
	k := rec.Key().String()
	if _, ok := s.records[k]; !ok {
		s.records[k] = rec
	}
	return rec.Key().ID(), nil
}

func (s *fakeStore) ListByActor(_ context.Context, actor string, cat *domain.Category) ([]domain.DetectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DetectionRecord
	for _, r := range s.records {
		if r.ActorID == actor && (cat == nil || r.Category == *cat) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) Name() string { return "fake" }

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeIdentity struct {
	mu     sync.Mutex
	actor  string
	logout []func(string)
}

func (f *fakeIdentity) CurrentActor() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actor, f.actor != ""
}

func (f *fakeIdentity) OnLogout(fn func(string)) {
	f.mu.Lock()
	f.logout = append(f.logout, fn)
	f.mu.Unlock()
}

func (f *fakeIdentity) signOut() {
	f.mu.Lock()
	actor := f.actor
	f.actor = ""
	fns := append([]func(string){}, f.logout...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(actor)
	}
}

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	err   error
	gate  chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, level float64, cat domain.Category) (domain.ClassificationResult, error) {
	f.mu.Lock()
	f.calls++
	gate, err := f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.ClassificationResult{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	res := risk.ClassifyFor(level, cat)
	res.Summary = "remote: " + res.Summary
	return res, nil
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingObs struct {
	nopObs
	mu        sync.Mutex
	fallbacks int
}

func (r *recordingObs) RecordFallback(domain.Category, float64, error) {
	r.mu.Lock()
	r.fallbacks++
	r.mu.Unlock()
}

type harness struct {
	ctrl   *Controller
	clock  *manualClock
	stream *fakeStream
	store  *fakeStore
	id     *fakeIdentity
	cls    *fakeClassifier
	obs    *recordingObs
}

var testTopics = map[domain.Category]string{
	domain.CategoryBlood: "sensor/blood",
	domain.CategoryWater: "sensor/water",
}

func newHarness(t *testing.T, pol ports.Policy, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:  newManualClock(),
		stream: newFakeStream(),
		store:  newFakeStore(),
		id:     &fakeIdentity{actor: "actor-1"},
		cls:    &fakeClassifier{},
		obs:    &recordingObs{},
	}
	all := append([]Option{WithClock(h.clock), WithObservability(h.obs)}, opts...)
	ctrl, err := NewController(Config{Policy: pol, Topics: testTopics}, h.stream, h.cls, h.store, h.id, all...)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	h.ctrl = ctrl
	return h
}

func waitOutcome(t *testing.T, h *Handle) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("session did not resolve: %v", err)
	}
	return o
}

func TestReadingBeforeDeadlineFinalizesWithLatestValue(t *testing.T) {
	h := newHarness(t, ports.Policy{})
	handle, err := h.ctrl.Start(context.Background(), domain.CategoryWater)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st, _ := h.ctrl.Status("actor-1", domain.CategoryWater); st != StateListening {
		t.Fatalf("expected listening, got %s", st)
	}

	h.clock.Advance(time.Second)
	h.stream.push("sensor/water", domain.Reading{Level: 12})
	if st, _ := h.ctrl.Status("actor-1", domain.CategoryWater); st != StateSettling {
		t.Fatalf("expected settling, got %s", st)
	}
	h.clock.Advance(time.Second)
	h.stream.push("sensor/water", domain.Reading{Level: 42})
	h.clock.Advance(6 * time.Second)

	o := waitOutcome(t, handle)
	if o.State != StateFinalized || o.Record == nil {
		t.Fatalf("expected finalized record, got %+v", o)
	}
	if o.Record.Reading.Level != 42 {
		t.Fatalf("expected latest reading 42, got %v", o.Record.Reading.Level)
	}
	if o.Record.Classification.Tier != domain.TierHigh {
		t.Fatalf("expected high tier, got %s", o.Record.Classification.Tier)
	}
	if h.stream.attached() != 0 {
		t.Fatalf("stream still attached after finalization")
	}
	if h.store.count() != 1 {
		t.Fatalf("expected 1 record, got %d", h.store.count())
	}
	if st, _ := h.ctrl.Status("actor-1", domain.CategoryWater); st != StateIdle {
		t.Fatalf("expected idle after finalize, got %s", st)
	}
}

func TestSilentStreamEndsWithNoData(t *testing.T) {
	h := newHarness(t, ports.Policy{})
	handle, err := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.Advance(9 * time.Second)

	o := waitOutcome(t, handle)
	if o.State != StateNoData || !errors.Is(o.Err, domain.ErrNoData) {
		t.Fatalf("expected no-data outcome, got %+v", o)
	}
	if h.store.count() != 0 || h.cls.callCount() != 0 {
		t.Fatalf("no-data session must not classify or persist")
	}
	// A second deadline firing late is discarded.
	h.clock.fire(0)
	if h.store.count() != 0 {
		t.Fatalf("late deadline produced a record")
	}
}

func TestSyntheticPolicyFillsSilentSession(t *testing.T) {
	h := newHarness(t, ports.Policy{OnNoData: ports.NoDataSynthetic}, WithSyntheticSource(func() float64 { return 27 }))
	handle, _ := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	h.clock.Advance(9 * time.Second)

	o := waitOutcome(t, handle)
	if o.State != StateFinalized || !o.Synthetic {
		t.Fatalf("expected synthetic finalized outcome, got %+v", o)
	}
	if o.Record.Reading.Level != 27 || o.Record.Classification.Tier != domain.TierMedium {
		t.Fatalf("unexpected synthetic record %+v", o.Record)
	}
}

func TestUniformLevelStaysInRange(t *testing.T) {
	gen := uniformLevel(15, 45)
	for i := 0; i < 500; i++ {
		v := gen()
		if v < 15 || v >= 45 || v != float64(int(v)) {
			t.Fatalf("level %v out of range", v)
		}
	}
}

func TestSettleAndDeadlineRaceFinalizesOnce(t *testing.T) {
	h := newHarness(t, ports.Policy{ScanDuration: 2 * time.Second, DeadlineGrace: time.Second, SettleWindow: 3 * time.Second})
	handle, _ := h.ctrl.Start(context.Background(), domain.CategoryWater)

	h.stream.push("sensor/water", domain.Reading{Level: 5})
	// Settle and deadline become due at the same instant.
	h.clock.Advance(3 * time.Second)
	// Late timers and a stale delivery through a captured handler.
	h.clock.fire(0)
	h.clock.fire(1)
	h.stream.captured[0](domain.Reading{Level: 99})

	o := waitOutcome(t, handle)
	if o.State != StateFinalized || o.Record.Reading.Level != 5 {
		t.Fatalf("unexpected outcome %+v", o)
	}
	time.Sleep(20 * time.Millisecond)
	if h.cls.callCount() != 1 {
		t.Fatalf("classifier called %d times", h.cls.callCount())
	}
	if h.store.count() != 1 {
		t.Fatalf("expected exactly one record, got %d", h.store.count())
	}
}

func TestSupersedeDropsOldEpoch(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, ports.Policy{})
	h.cls.gate = gate

	first, _ := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	h.stream.push("sensor/blood", domain.Reading{Level: 70})
	h.clock.Advance(9 * time.Second) // first session is now classifying

	second, err := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	o := waitOutcome(t, first)
	if o.State != StateCancelled || !errors.Is(o.Err, domain.ErrCancelled) {
		t.Fatalf("first session expected cancelled, got %+v", o)
	}
	if second.Ref().Epoch != first.Ref().Epoch+1 {
		t.Fatalf("epoch not advanced: %d -> %d", first.Ref().Epoch, second.Ref().Epoch)
	}

	close(gate) // release the first classification
	h.stream.push("sensor/blood", domain.Reading{Level: 8})
	h.clock.Advance(9 * time.Second)

	o2 := waitOutcome(t, second)
	if o2.State != StateFinalized || o2.Record.Reading.Level != 8 {
		t.Fatalf("second session unexpected outcome %+v", o2)
	}
	time.Sleep(20 * time.Millisecond)
	if h.store.count() != 1 {
		t.Fatalf("superseded epoch wrote a record: %d records", h.store.count())
	}
}

func TestCancelAndLogout(t *testing.T) {
	h := newHarness(t, ports.Policy{})
	blood, _ := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	water, _ := h.ctrl.Start(context.Background(), domain.CategoryWater)

	if !h.ctrl.Cancel(domain.CategoryBlood) {
		t.Fatalf("expected cancel to find a session")
	}
	if o := waitOutcome(t, blood); o.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", o.State)
	}
	if h.ctrl.Cancel(domain.CategoryBlood) {
		t.Fatalf("second cancel should be a no-op")
	}

	h.id.signOut()
	if o := waitOutcome(t, water); o.State != StateCancelled {
		t.Fatalf("logout should cancel, got %s", o.State)
	}
	if h.stream.attached() != 0 {
		t.Fatalf("subscriptions left attached")
	}
	if _, err := h.ctrl.Start(context.Background(), domain.CategoryWater); !errors.Is(err, domain.ErrNoActor) {
		t.Fatalf("expected ErrNoActor, got %v", err)
	}
}

func TestClassifierFailureFallsBackToPolicy(t *testing.T) {
	h := newHarness(t, ports.Policy{})
	h.cls.err = domain.Wrap(domain.KindProtocol, "classify", errors.New("no json"))

	handle, _ := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	h.stream.push("sensor/blood", domain.Reading{Level: 64})
	h.clock.Advance(9 * time.Second)

	o := waitOutcome(t, handle)
	want := risk.ClassifyFor(64, domain.CategoryBlood)
	if o.Record.Classification.Summary != want.Summary || o.Record.Classification.Tier != domain.TierCritical {
		t.Fatalf("expected local fallback, got %+v", o.Record.Classification)
	}
	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	if h.obs.fallbacks != 1 {
		t.Fatalf("expected one fallback, got %d", h.obs.fallbacks)
	}
}

func TestNilClassifierUsesPolicy(t *testing.T) {
	clk := newManualClock()
	stream := newFakeStream()
	store := newFakeStore()
	ctrl, err := NewController(Config{Topics: testTopics}, stream, nil, store, &fakeIdentity{actor: "a"}, WithClock(clk))
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	handle, _ := ctrl.Start(context.Background(), domain.CategoryWater)
	stream.push("sensor/water", domain.Reading{Level: 0})
	clk.Advance(9 * time.Second)
	o := waitOutcome(t, handle)
	if o.Record == nil || o.Record.Classification.Tier != domain.TierLow {
		t.Fatalf("unexpected outcome %+v", o)
	}
}

func TestPersistFailureThenRetry(t *testing.T) {
	h := newHarness(t, ports.Policy{})
	h.store.fails = 1

	handle, _ := h.ctrl.Start(context.Background(), domain.CategoryWater)
	h.stream.push("sensor/water", domain.Reading{Level: 33})
	h.clock.Advance(9 * time.Second)

	o := waitOutcome(t, handle)
	if o.State != StatePersistFailed {
		t.Fatalf("expected persist_failed, got %+v", o)
	}
	var perr *domain.PersistenceError
	if !errors.As(o.Err, &perr) || !errors.Is(o.Err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", o.Err)
	}
	failedKey := perr.Record.Key()

	rec, err := h.ctrl.Retry(context.Background(), handle)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if rec.Key() != failedKey {
		t.Fatalf("retry changed record key: %v vs %v", rec.Key(), failedKey)
	}
	if got := handle.Outcome(); got.State != StateFinalized {
		t.Fatalf("expected finalized after retry, got %s", got.State)
	}
	if _, err := h.ctrl.Retry(context.Background(), handle); !errors.Is(err, domain.ErrNotRetryable) {
		t.Fatalf("second retry should fail with ErrNotRetryable, got %v", err)
	}
	if h.store.count() != 1 || h.cls.callCount() != 1 {
		t.Fatalf("records=%d classifier=%d", h.store.count(), h.cls.callCount())
	}
}

func TestFailedWriteSurvivesNewSessionForSameCategory(t *testing.T) {
	h := newHarness(t, ports.Policy{})
	h.store.fails = 2

	first, _ := h.ctrl.Start(context.Background(), domain.CategoryWater)
	h.stream.push("sensor/water", domain.Reading{Level: 33})
	h.clock.Advance(9 * time.Second)
	if o := waitOutcome(t, first); o.State != StatePersistFailed {
		t.Fatalf("expected persist_failed, got %+v", o)
	}
	if st, _ := h.ctrl.Status("actor-1", domain.CategoryWater); st != StatePersistFailed {
		t.Fatalf("expected status persist_failed, got %s", st)
	}

	second, err := h.ctrl.Start(context.Background(), domain.CategoryWater)
	if err != nil {
		t.Fatalf("Start after failed write: %v", err)
	}
	if second.Ref().Epoch <= first.Ref().Epoch {
		t.Fatalf("expected a newer epoch, got %d after %d", second.Ref().Epoch, first.Ref().Epoch)
	}
	if got := first.Outcome(); got.State != StatePersistFailed || got.Record == nil {
		t.Fatalf("new session overwrote the failed write: %+v", got)
	}

	if _, err := h.ctrl.Retry(context.Background(), first); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error on first retry, got %v", err)
	}
	rec, err := h.ctrl.Retry(context.Background(), first)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if rec.Reading.Level != 33 || rec.Category != domain.CategoryWater {
		t.Fatalf("unexpected retried record %+v", rec)
	}
	if got := first.Outcome(); got.State != StateFinalized {
		t.Fatalf("expected finalized after retry, got %s", got.State)
	}
	if st, ep := h.ctrl.Status("actor-1", domain.CategoryWater); st != StateListening || ep != second.Ref().Epoch {
		t.Fatalf("retry disturbed the newer session: %s epoch %d", st, ep)
	}

	h.stream.push("sensor/water", domain.Reading{Level: 12})
	h.clock.Advance(9 * time.Second)
	if o := waitOutcome(t, second); o.State != StateFinalized {
		t.Fatalf("second session unexpected outcome %+v", o)
	}
	if h.store.count() != 2 {
		t.Fatalf("expected 2 records, got %d", h.store.count())
	}
}

func TestCancelDuringFailingWriteIsNotReplayed(t *testing.T) {
	j, err := journal.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileJournal: %v", err)
	}
	defer j.Close()

	h := newHarness(t, ports.Policy{}, WithJournal(j))
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.store.mu.Lock()
	h.store.gate, h.store.entered, h.store.fails = gate, entered, 1
	h.store.mu.Unlock()

	handle, _ := h.ctrl.Start(context.Background(), domain.CategoryWater)
	h.stream.push("sensor/water", domain.Reading{Level: 27})
	h.clock.Advance(9 * time.Second)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("record write never started")
	}
	if !h.ctrl.Cancel(domain.CategoryWater) {
		t.Fatalf("expected cancel to find the persisting session")
	}
	if o := waitOutcome(t, handle); o.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", o.State)
	}
	close(gate)

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := j.Stats()
		if st.LatestAppended > 0 && st.OldestUncommitted > st.LatestAppended {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("abandoned write left in journal: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.store.mu.Lock()
	h.store.gate, h.store.entered = nil, nil
	h.store.mu.Unlock()
	res, err := recovery.Replay(context.Background(), j, h.store, nopObs{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Replayed != 0 || h.store.count() != 0 {
		t.Fatalf("cancelled record resurfaced: replayed=%d stored=%d", res.Replayed, h.store.count())
	}
}

func TestCancelRefLeavesNewerEpochAlone(t *testing.T) {
	h := newHarness(t, ports.Policy{})
	first, _ := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	second, _ := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	if o := waitOutcome(t, first); o.State != StateCancelled {
		t.Fatalf("expected superseded session cancelled, got %s", o.State)
	}

	if h.ctrl.CancelRef(first.Ref()) {
		t.Fatalf("stale ref cancelled a session")
	}
	if st, _ := h.ctrl.Status("actor-1", domain.CategoryBlood); st != StateListening {
		t.Fatalf("newer session disturbed: %s", st)
	}
	if !h.ctrl.CancelRef(second.Ref()) {
		t.Fatalf("expected current ref to cancel")
	}
	if o := waitOutcome(t, second); o.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", o.State)
	}
}

func TestStreamAttachFailureStillHonoursDeadline(t *testing.T) {
	h := newHarness(t, ports.Policy{})
	h.stream.fail = errors.New("subscribe refused")
	handle, err := h.ctrl.Start(context.Background(), domain.CategoryWater)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.Advance(9 * time.Second)
	if o := waitOutcome(t, handle); o.State != StateNoData {
		t.Fatalf("expected no data, got %s", o.State)
	}
}

func TestTimestampsIncreasePerActor(t *testing.T) {
	s := newStamper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := s.next("x", now)
	b := s.next("x", now)
	c := s.next("y", now)
	if !b.After(a) {
		t.Fatalf("expected strictly increasing stamps, got %v then %v", a, b)
	}
	if !c.Equal(a) {
		t.Fatalf("actors should not share a sequence")
	}
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) OnReading(Ref, domain.Reading) {}

func (l *stateLog) OnStateChange(_ Ref, st State) {
	l.mu.Lock()
	l.states = append(l.states, st)
	l.mu.Unlock()
}

func TestObserverSeesLifecycle(t *testing.T) {
	log := &stateLog{}
	h := newHarness(t, ports.Policy{}, WithObserver(log))
	handle, _ := h.ctrl.Start(context.Background(), domain.CategoryBlood)
	h.stream.push("sensor/blood", domain.Reading{Level: 20})
	h.clock.Advance(9 * time.Second)
	waitOutcome(t, handle)
	time.Sleep(20 * time.Millisecond)

	want := []State{StateListening, StateSettling, StateClassifying, StatePersisting, StateFinalized}
	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.states) != len(want) {
		t.Fatalf("states = %v, want %v", log.states, want)
	}
	for i := range want {
		if log.states[i] != want[i] {
			t.Fatalf("states = %v, want %v", log.states, want)
		}
	}
}
