// Package history assembles the record history shown next to a finalized record.
package history

import (
	"sort"
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

const (
	DefaultWindow = time.Second
	// CertificateRows is how many prior records accompany a certificate.
	CertificateRows = 3
)

// Dedupe drops priors of the candidate's category whose timestamp is within
// window of the candidate (the same physical event observed twice), orders the
// rest most recent first and caps the result at limit when limit > 0.
func Dedupe(candidate domain.DetectionRecord, priors []domain.DetectionRecord, window time.Duration, limit int) []domain.DetectionRecord {
	if window < 0 {
		window = 0
	}
	ts := candidate.Timestamp.UnixMilli()
	w := window.Milliseconds()

	out := make([]domain.DetectionRecord, 0, len(priors))
	for _, p := range priors {
		if p.Category == candidate.Category && abs(p.Timestamp.UnixMilli()-ts) <= w {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ForCertificate is the history slice a certificate renders: same category only,
// deduplicated with the default window, at most CertificateRows entries.
func ForCertificate(candidate domain.DetectionRecord, priors []domain.DetectionRecord) []domain.DetectionRecord {
	same := make([]domain.DetectionRecord, 0, len(priors))
	for _, p := range priors {
		if p.Category == candidate.Category {
			same = append(same, p)
		}
	}
	return Dedupe(candidate, same, DefaultWindow, CertificateRows)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
