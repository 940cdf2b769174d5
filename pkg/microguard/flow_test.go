package microguard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/store"
)

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	mem := store.NewMemory()
	var got []DetectionRecord
	eng, err := flow.
		StreamIN(
			StreamInObservability(&stubObservability{}),
			StreamInIdentity(fixedIdentity{actor: "alice"}),
		).
		StreamOUT(
			StreamOutStore(mem),
			StreamOutClassifier(nil),
			StreamOutCallback("collect", func(rec DetectionRecord) error {
				got = append(got, rec)
				return nil
			}),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	defer eng.Shutdown(context.Background())

	if eng.store != mem {
		t.Fatalf("expected custom store to be wired")
	}
	if eng.hub == nil {
		t.Fatalf("expected the default hub source")
	}
}

func TestFlowRunStopsOnCancelledContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"

	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithObservability(&stubObservability{})))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := flow.StreamIN(StreamInSource(stubSource{})).Run(ctx); err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
}

func TestFlowAppliesSessionOverrides(t *testing.T) {
	flow, err := ConfFromConfig(testConfig(t))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	eng, err := flow.
		StreamIN(
			StreamInObservability(&stubObservability{}),
			StreamInIdentity(fixedIdentity{actor: "zoe"}),
			StreamInTopics(TopicsConfig{Water: "lab/water"}),
			StreamInPolicy(Policy{ScanDuration: 60 * time.Millisecond, DeadlineGrace: 20 * time.Millisecond}),
		).
		StreamOUT(
			StreamOutStore(store.NewMemory()),
			StreamOutClassifier(nil),
			StreamOutNoData(NoDataSynthetic, func() float64 { return 40 }),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	defer eng.Shutdown(context.Background())

	pol := eng.Policy()
	if pol.ScanDuration != 60*time.Millisecond || pol.OnNoData != NoDataSynthetic {
		t.Fatalf("policy not applied: %+v", pol)
	}
	if pol.ClassifyTimeout == 0 || pol.PersistTimeout == 0 {
		t.Fatalf("expected unset timings defaulted: %+v", pol)
	}
	if got := eng.cfg.Topics; got.Water != "lab/water" || got.Blood == "" {
		t.Fatalf("unexpected topics %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := eng.Detect(ctx, CategoryWater)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if out.State != StateFinalized || !out.Synthetic || out.Record.Reading.Level != 40 {
		t.Fatalf("expected synthetic record at 40, got %+v", out)
	}
}

func TestFlowRejectsInvalidOverrides(t *testing.T) {
	flow, err := ConfFromConfig(testConfig(t))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	_, err = flow.
		StreamIN(StreamInObservability(&stubObservability{})).
		StreamOUT(StreamOutNoData("guess", nil))
	if err == nil || !strings.Contains(err.Error(), "on_no_data") {
		t.Fatalf("expected on_no_data rejection, got %v", err)
	}
}

func TestNilFlow(t *testing.T) {
	var f *Flow
	if f.Config() != nil || f.StreamIN() != nil {
		t.Fatalf("expected nil-safe accessors")
	}
	if _, err := f.StreamOUT(); err == nil {
		t.Fatalf("expected error from nil flow")
	}
}
