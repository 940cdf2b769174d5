package domain

import (
	"math"
	"time"
)

const (
	MinLevel = 0.0
	MaxLevel = 100.0
)

// Reading is one contamination measurement delivered by the sensor stream.
type Reading struct {
	Level      float64   `json:"level"`
	TierHint   string    `json:"tierHint,omitempty"`
	ObservedAt time.Time `json:"-"`
}

// ClampLevel constrains a raw level to [MinLevel, MaxLevel]. NaN maps to MinLevel.
func ClampLevel(v float64) float64 {
	switch {
	case math.IsNaN(v), v < MinLevel:
		return MinLevel
	case v > MaxLevel:
		return MaxLevel
	default:
		return v
	}
}
