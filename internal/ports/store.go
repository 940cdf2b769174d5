package ports

import (
	"context"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

// RecordStore persists finalized records. Append is idempotent on the record key.
type RecordStore interface {
	Append(ctx context.Context, rec domain.DetectionRecord) (domain.RecordID, error)
	// ListByActor returns records most recent first; cat == nil lists every category.
	ListByActor(ctx context.Context, actor string, cat *domain.Category) ([]domain.DetectionRecord, error)
	Name() string
}

// RecordSubscriber is notified after a record has been persisted.
type RecordSubscriber interface {
	OnFinalized(rec domain.DetectionRecord) error
	Name() string
}
