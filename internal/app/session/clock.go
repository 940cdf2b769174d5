package session

import (
	"math"
	"math/rand"
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// SystemClock schedules callbacks with time.AfterFunc.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, fn func()) ports.Timer {
	return time.AfterFunc(d, fn)
}

// stamper hands out per-actor timestamps that strictly increase at millisecond
// resolution, so two records of one actor never share a key.
type stamper struct {
	last map[string]int64
}

func newStamper() *stamper {
	return &stamper{last: make(map[string]int64)}
}

func (s *stamper) next(actor string, now time.Time) time.Time {
	ms := now.UnixMilli()
	if last, ok := s.last[actor]; ok && ms <= last {
		ms = last + 1
	}
	s.last[actor] = ms
	return time.UnixMilli(ms).UTC()
}

// uniformLevel draws whole-percent filler levels in [min, max).
func uniformLevel(min, max float64) func() float64 {
	return func() float64 {
		if max <= min {
			return min
		}
		return math.Floor(min + rand.Float64()*(max-min))
	}
}
