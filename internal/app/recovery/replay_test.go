package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/journal"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/store"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/risk"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

type nopObs struct{ replayed float64 }

func (*nopObs) LogInfo(string, ...ports.Field)                 {}
func (*nopObs) LogError(string, error, ...ports.Field)         {}
func (*nopObs) LogCritical(string, error, ...ports.Field)      {}
func (o *nopObs) IncCounter(name string, v float64)            { o.replayed += v }
func (*nopObs) ObserveLatency(string, float64)                 {}
func (*nopObs) SetGauge(string, float64)                       {}
func (*nopObs) AddGauge(string, float64)                       {}
func (*nopObs) RecordFallback(domain.Category, float64, error) {}

type flakyStore struct {
	*store.Memory
	failActor string
}

func (f *flakyStore) Append(ctx context.Context, rec domain.DetectionRecord) (domain.RecordID, error) {
	if rec.ActorID == f.failActor {
		return "", errors.New("offline")
	}
	return f.Memory.Append(ctx, rec)
}

func rec(actor string, ms int64) domain.DetectionRecord {
	return domain.NewDetectionRecord(actor, domain.CategoryBlood, time.UnixMilli(ms), domain.Reading{Level: 20}, risk.ClassifyFor(20, domain.CategoryBlood))
}

func TestReplayAppendsUncommittedEntries(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.NewFileJournal(dir)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	done, _ := j.Append(rec("a", 1))
	if _, err := j.Append(rec("a", 2)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := j.Append(rec("b", 3)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Commit(done); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_ = j.Close()

	j, err = journal.NewFileJournal(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	s := &flakyStore{Memory: store.NewMemory(), failActor: "b"}
	obs := &nopObs{}
	res, err := Replay(context.Background(), j, s, obs)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Replayed != 1 || res.Failed != 1 || obs.replayed != 1 {
		t.Fatalf("unexpected result %+v (metric %v)", res, obs.replayed)
	}
	got, _ := s.ListByActor(context.Background(), "a", nil)
	if len(got) != 1 || got[0].Timestamp.UnixMilli() != 2 {
		t.Fatalf("expected only the uncommitted record to be replayed, got %+v", got)
	}

	// The failed entry is still pending and replays once the store recovers.
	s.failActor = ""
	res, err = Replay(context.Background(), j, s, obs)
	if err != nil || res.Replayed != 1 || res.Failed != 0 {
		t.Fatalf("second replay: %+v %v", res, err)
	}
	if st := j.Stats(); st.OldestUncommitted != st.LatestAppended+1 {
		t.Fatalf("journal not fully committed: %+v", st)
	}
}
