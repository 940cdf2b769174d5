package session

import (
	"context"
	"sync"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

// State is the lifecycle position of one session.
type State int

const (
	StateIdle State = iota
	StateListening
	StateSettling
	StateClassifying
	StatePersisting
	StatePersistFailed
	StateFinalized
	StateCancelled
	StateNoData
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSettling:
		return "settling"
	case StateClassifying:
		return "classifying"
	case StatePersisting:
		return "persisting"
	case StatePersistFailed:
		return "persist_failed"
	case StateFinalized:
		return "finalized"
	case StateCancelled:
		return "cancelled"
	case StateNoData:
		return "no_data"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateCancelled || s == StateNoData
}

// Ref identifies one session attempt.
type Ref struct {
	Actor    string
	Category domain.Category
	Epoch    uint64
}

// Outcome is what a caller learns about a session.
type Outcome struct {
	State     State
	Record    *domain.DetectionRecord
	Synthetic bool
	Err       error
}

// Handle is returned by Start. Done is closed at the first caller-visible
// outcome: finalized, cancelled, no data or a failed write. A later successful
// Retry updates Outcome but Done is only closed once.
type Handle struct {
	ref  Ref
	done chan struct{}

	mu      sync.Mutex
	outcome Outcome
	once    sync.Once
}

func newHandle(ref Ref) *Handle {
	return &Handle{ref: ref, done: make(chan struct{})}
}

func (h *Handle) Ref() Ref { return h.ref }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome returns the latest outcome; the zero value before Done is closed.
func (h *Handle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Wait blocks until Done or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (h *Handle) resolve(o Outcome) {
	h.mu.Lock()
	h.outcome = o
	h.mu.Unlock()
	h.once.Do(func() { close(h.done) })
}

// Observer receives live session events. Calls are synchronous with the event
// source and must not re-enter the controller.
type Observer interface {
	OnReading(ref Ref, r domain.Reading)
	OnStateChange(ref Ref, st State)
}
