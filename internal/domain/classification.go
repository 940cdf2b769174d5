package domain

import (
	"fmt"
	"strings"
)

// RiskTier is the coarse risk band assigned to a reading.
type RiskTier string

const (
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// ParseRiskTier accepts the four tier names case-insensitively.
func ParseRiskTier(s string) (RiskTier, error) {
	switch RiskTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierLow:
		return TierLow, nil
	case TierMedium:
		return TierMedium, nil
	case TierHigh:
		return TierHigh, nil
	case TierCritical:
		return TierCritical, nil
	default:
		return "", fmt.Errorf("unknown risk tier %q", s)
	}
}

// ClassificationResult is the outcome of classifying one reading.
type ClassificationResult struct {
	Tier       RiskTier `json:"riskLevel"`
	Summary    string   `json:"summary"`
	Impact     string   `json:"healthImpact"`
	Remedies   []string `json:"remedies"`
	RetestDays int      `json:"nextTestDays"`
}

// Clone returns a copy that does not share the remedies slice.
func (r ClassificationResult) Clone() ClassificationResult {
	out := r
	if r.Remedies != nil {
		out.Remedies = append([]string(nil), r.Remedies...)
	}
	return out
}
