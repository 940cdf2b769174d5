// Package store holds the record store backends. Every backend appends
// idempotently on (actor, category, timestamp) and lists most recent first.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// Memory keeps records in process; used for embedding and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[domain.RecordKey]domain.DetectionRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]map[domain.RecordKey]domain.DetectionRecord)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Append(ctx context.Context, rec domain.DetectionRecord) (domain.RecordID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := rec.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey := m.records[rec.ActorID]
	if byKey == nil {
		byKey = make(map[domain.RecordKey]domain.DetectionRecord)
		m.records[rec.ActorID] = byKey
	}
	if _, ok := byKey[key]; !ok {
		rec.Classification = rec.Classification.Clone()
		byKey[key] = rec
	}
	return key.ID(), nil
}

func (m *Memory) ListByActor(ctx context.Context, actor string, cat *domain.Category) ([]domain.DetectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]domain.DetectionRecord, 0, len(m.records[actor]))
	for _, rec := range m.records[actor] {
		if cat != nil && rec.Category != *cat {
			continue
		}
		rec.Classification = rec.Classification.Clone()
		out = append(out, rec)
	}
	m.mu.RUnlock()
	sortRecent(out)
	return out, nil
}

// sortRecent orders records newest first, breaking ties by category.
func sortRecent(recs []domain.DetectionRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.After(recs[j].Timestamp)
		}
		return recs[i].Category < recs[j].Category
	})
}

var _ ports.RecordStore = (*Memory)(nil)
