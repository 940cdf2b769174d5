package domain

import (
	"fmt"
	"time"
)

// RecordID is the store-facing identifier of a persisted record.
type RecordID string

// RecordKey is the identity of a DetectionRecord.
type RecordKey struct {
	ActorID   string
	Category  Category
	Timestamp int64 // unix millis
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.ActorID, k.Category, k.Timestamp)
}

// ID renders the key as the RecordID returned by stores.
func (k RecordKey) ID() RecordID { return RecordID(k.String()) }

// DetectionRecord is the immutable result of one finalized session.
type DetectionRecord struct {
	ActorID        string
	Category       Category
	Timestamp      time.Time
	Reading        Reading
	Classification ClassificationResult
	NextTestDate   time.Time
}

// NewDetectionRecord stamps a record and derives its next-test date.
func NewDetectionRecord(actor string, cat Category, ts time.Time, r Reading, c ClassificationResult) DetectionRecord {
	ts = time.UnixMilli(ts.UnixMilli()).UTC()
	return DetectionRecord{
		ActorID:        actor,
		Category:       cat,
		Timestamp:      ts,
		Reading:        r,
		Classification: c.Clone(),
		NextTestDate:   ts.AddDate(0, 0, c.RetestDays),
	}
}

func (r DetectionRecord) Key() RecordKey {
	return RecordKey{ActorID: r.ActorID, Category: r.Category, Timestamp: r.Timestamp.UnixMilli()}
}

// ClassificationDocument is the persisted form of a classification.
type ClassificationDocument struct {
	RiskLevel    RiskTier `json:"riskLevel"`
	Summary      string   `json:"summary"`
	HealthImpact string   `json:"healthImpact"`
	Remedies     []string `json:"remedies"`
	NextTestDays int      `json:"nextTestDays"`
	NextTestDate int64    `json:"nextTestDate"`
}

// RecordDocument is the persisted layout of a record, keyed under its actor.
type RecordDocument struct {
	Category       Category               `json:"category"`
	Timestamp      int64                  `json:"timestamp"`
	Reading        Reading                `json:"reading"`
	Classification ClassificationDocument `json:"classification"`
}

func (r DetectionRecord) Document() RecordDocument {
	remedies := r.Classification.Remedies
	if remedies == nil {
		remedies = []string{}
	}
	return RecordDocument{
		Category:  r.Category,
		Timestamp: r.Timestamp.UnixMilli(),
		Reading:   r.Reading,
		Classification: ClassificationDocument{
			RiskLevel:    r.Classification.Tier,
			Summary:      r.Classification.Summary,
			HealthImpact: r.Classification.Impact,
			Remedies:     remedies,
			NextTestDays: r.Classification.RetestDays,
			NextTestDate: r.NextTestDate.UnixMilli(),
		},
	}
}

// RecordFromDocument rebuilds a record read back from a store.
func RecordFromDocument(actor string, doc RecordDocument) DetectionRecord {
	return DetectionRecord{
		ActorID:   actor,
		Category:  doc.Category,
		Timestamp: time.UnixMilli(doc.Timestamp).UTC(),
		Reading:   doc.Reading,
		Classification: ClassificationResult{
			Tier:       doc.Classification.RiskLevel,
			Summary:    doc.Classification.Summary,
			Impact:     doc.Classification.HealthImpact,
			Remedies:   doc.Classification.Remedies,
			RetestDays: doc.Classification.NextTestDays,
		},
		NextTestDate: time.UnixMilli(doc.Classification.NextTestDate).UTC(),
	}
}
