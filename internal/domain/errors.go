package domain

import "errors"

// ErrorKind classifies failures the engine distinguishes between.
type ErrorKind string

const (
	// KindTransient covers classifier and stream hiccups; recovered locally.
	KindTransient ErrorKind = "transient_external"
	// KindPersistence is a failed store write; surfaced and retryable.
	KindPersistence ErrorKind = "persistence"
	// KindProtocol is a malformed classifier response; handled like KindTransient.
	KindProtocol ErrorKind = "protocol_violation"
)

// Error is a failure tagged with its kind and the operation that raised it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so the Err* sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Recoverable reports whether the engine absorbs this kind without surfacing it.
func (e *Error) Recoverable() bool {
	return e.Kind == KindTransient || e.Kind == KindProtocol
}

func Wrap(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

var (
	ErrTransient   = &Error{Kind: KindTransient}
	ErrPersistence = &Error{Kind: KindPersistence}
	ErrProtocol    = &Error{Kind: KindProtocol}
)

var (
	ErrCancelled    = errors.New("microguard: session cancelled")
	ErrNoData       = errors.New("microguard: no reading before deadline")
	ErrNoActor      = errors.New("microguard: no signed-in actor")
	ErrNotRetryable = errors.New("microguard: session has no pending write to retry")
)

// PersistenceError is the payload of a failed store write; the record is kept so
// the append can be retried with the same key.
type PersistenceError struct {
	Record DetectionRecord
	Err    error
}

func (e *PersistenceError) Error() string {
	return "persist " + e.Record.Key().String() + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
