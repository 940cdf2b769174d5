package ports

import "time"

// Policy controls session timing and degradation behaviour.
type Policy struct {
	ScanDuration    time.Duration `yaml:"scan_duration"`
	DeadlineGrace   time.Duration `yaml:"deadline_grace"`
	SettleWindow    time.Duration `yaml:"settle_window"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`
	PersistTimeout  time.Duration `yaml:"persist_timeout"`

	OnNoData     string  `yaml:"on_no_data"` // "no_data", "synthetic"
	SyntheticMin float64 `yaml:"synthetic_min"`
	SyntheticMax float64 `yaml:"synthetic_max"`
}

const (
	NoDataExplicit  = "no_data"
	NoDataSynthetic = "synthetic"
)

// Deadline is the total time a session waits for a live reading.
func (p Policy) Deadline() time.Duration {
	return p.ScanDuration + p.DeadlineGrace
}

// WithDefaults fills unset fields with the historical timings.
func (p Policy) WithDefaults() Policy {
	if p.ScanDuration <= 0 {
		p.ScanDuration = 7 * time.Second
	}
	if p.DeadlineGrace <= 0 {
		p.DeadlineGrace = 2 * time.Second
	}
	if p.SettleWindow <= 0 {
		p.SettleWindow = p.ScanDuration
	}
	if p.ClassifyTimeout <= 0 {
		p.ClassifyTimeout = 20 * time.Second
	}
	if p.PersistTimeout <= 0 {
		p.PersistTimeout = 10 * time.Second
	}
	if p.OnNoData == "" {
		p.OnNoData = NoDataExplicit
	}
	if p.SyntheticMin == 0 && p.SyntheticMax == 0 {
		p.SyntheticMin, p.SyntheticMax = 15, 45
	}
	return p
}
