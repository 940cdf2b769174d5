// Package risk is the deterministic local classification used when the remote
// classifier cannot produce a usable result.
package risk

import "github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"

// Band is one threshold range of the policy, upper bound inclusive.
type Band struct {
	Tier       domain.RiskTier
	Min, Max   float64
	RetestDays int
}

var bands = []Band{
	{Tier: domain.TierLow, Min: 0, Max: 10, RetestDays: 90},
	{Tier: domain.TierMedium, Min: 11, Max: 30, RetestDays: 60},
	{Tier: domain.TierHigh, Min: 31, Max: 60, RetestDays: 30},
	{Tier: domain.TierCritical, Min: 61, Max: 100, RetestDays: 14},
}

type copyText struct {
	summary  string
	impact   string
	remedies []string
}

var tierCopy = map[domain.RiskTier]copyText{
	domain.TierLow: {
		summary: "Low microplastic contamination detected. Levels are within acceptable range.",
		impact:  "Current exposure is unlikely to cause measurable harm; continued monitoring keeps it that way.",
		remedies: []string{
			"Maintain current lifestyle and dietary habits",
			"Continue regular monitoring every 3 months",
			"Stay hydrated with filtered water",
		},
	},
	domain.TierMedium: {
		summary: "Moderate microplastic levels detected. Consider lifestyle adjustments.",
		impact:  "Sustained moderate exposure may contribute to inflammation over time.",
		remedies: []string{
			"Use water filters certified for microplastic removal",
			"Reduce consumption of packaged foods",
			"Increase intake of fiber-rich foods to aid elimination",
			"Retest in 2 months",
		},
	},
	domain.TierHigh: {
		summary: "High microplastic contamination detected. Immediate action recommended.",
		impact:  "High exposure is associated with oxidative stress and endocrine disruption.",
		remedies: []string{
			"Consult with a healthcare professional",
			"Switch to glass or stainless steel containers",
			"Avoid heating food in plastic containers",
			"Increase antioxidant-rich food intake",
			"Retest monthly to monitor progress",
		},
	},
	domain.TierCritical: {
		summary: "Critical microplastic levels detected. Seek immediate medical attention.",
		impact:  "Critical exposure requires medical evaluation of cardiovascular and immune effects.",
		remedies: []string{
			"Seek immediate medical consultation",
			"Eliminate all plastic food/water containers",
			"Consider detoxification protocols under medical supervision",
			"Retest every 2 weeks",
			"Review all sources of plastic exposure",
		},
	},
}

var categoryImpact = map[domain.Category]string{
	domain.CategoryBlood: "Microplastics in blood can affect cardiovascular health and immune function.",
	domain.CategoryWater: "Contaminated water can lead to long-term health issues through continuous exposure.",
}

// Bands returns the threshold bands in ascending order.
func Bands() []Band {
	return append([]Band(nil), bands...)
}

// TierFor bands a level. Levels between two integer bands (10.5) fall into the
// higher one, matching the "<= upper bound" comparisons.
func TierFor(level float64) domain.RiskTier {
	level = domain.ClampLevel(level)
	switch {
	case level <= 10:
		return domain.TierLow
	case level <= 30:
		return domain.TierMedium
	case level <= 60:
		return domain.TierHigh
	default:
		return domain.TierCritical
	}
}

// RetestDays is the recommended retest interval for a tier.
func RetestDays(tier domain.RiskTier) int {
	for _, b := range bands {
		if b.Tier == tier {
			return b.RetestDays
		}
	}
	return 0
}

// Classify is total over [0,100]; out-of-range input is clamped first.
func Classify(level float64) domain.ClassificationResult {
	tier := TierFor(level)
	c := tierCopy[tier]
	return domain.ClassificationResult{
		Tier:       tier,
		Summary:    c.summary,
		Impact:     c.impact,
		Remedies:   append([]string(nil), c.remedies...),
		RetestDays: RetestDays(tier),
	}
}

// ClassifyFor is Classify with the impact statement specific to the sample kind.
func ClassifyFor(level float64, cat domain.Category) domain.ClassificationResult {
	res := Classify(level)
	if impact, ok := categoryImpact[cat]; ok {
		res.Impact = impact
	}
	return res
}
