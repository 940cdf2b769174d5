package history

import (
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

// Summary is the per-actor status overview.
type Summary struct {
	Latest map[domain.Category]domain.DetectionRecord
	// NextTest is the earliest next-test date still in the future; zero when
	// every recommended retest is already due.
	NextTest time.Time
	Total    int
}

// Due reports whether a retest is recommended now.
func (s Summary) Due() bool {
	return s.Total > 0 && s.NextTest.IsZero()
}

// Summarize picks the latest record per category and the earliest upcoming test.
func Summarize(records []domain.DetectionRecord, now time.Time) Summary {
	s := Summary{Latest: make(map[domain.Category]domain.DetectionRecord), Total: len(records)}
	for _, r := range records {
		if cur, ok := s.Latest[r.Category]; !ok || r.Timestamp.After(cur.Timestamp) {
			s.Latest[r.Category] = r
		}
		if r.NextTestDate.After(now) && (s.NextTest.IsZero() || r.NextTestDate.Before(s.NextTest)) {
			s.NextTest = r.NextTestDate
		}
	}
	return s
}
