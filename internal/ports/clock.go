package ports

import "time"

type Timer interface {
	Stop() bool
}

// Clock schedules callbacks; tests swap in a manual implementation.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}
