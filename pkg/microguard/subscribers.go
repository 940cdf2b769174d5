package microguard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

// ErrSubscriberClosed is returned when a channel subscriber is notified after being closed.
var ErrSubscriberClosed = errors.New("microguard: channel subscriber closed")

// RecordCallback is invoked with every record once it has been persisted.
type RecordCallback func(DetectionRecord) error

// NewCallbackSubscriber adapts a RecordCallback into a RecordSubscriber so
// callers can plug plain functions without defining structs.
func NewCallbackSubscriber(name string, fn RecordCallback) RecordSubscriber {
	if name == "" {
		name = "callback"
	}
	return &callbackSubscriber{name: name, fn: fn}
}

// NewChannelSubscriber exposes persisted records on a channel; it returns the
// subscriber, the read-only channel, and a close function that the caller
// should invoke during shutdown. Sends block until the record is read or the
// subscriber is closed.
func NewChannelSubscriber(name string, buffer int) (RecordSubscriber, <-chan DetectionRecord, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan DetectionRecord, buffer)
	s := &channelSubscriber{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSubscriber struct {
	name string
	fn   RecordCallback
}

func (s *callbackSubscriber) OnFinalized(rec domain.DetectionRecord) error {
	if s.fn == nil {
		return fmt.Errorf("callback subscriber %q: nil handler", s.name)
	}
	return s.fn(copyRecord(rec))
}

func (s *callbackSubscriber) Name() string { return s.name }

type channelSubscriber struct {
	name   string
	ch     chan DetectionRecord
	closed chan struct{}

	once sync.Once
	mu   sync.RWMutex
	done bool
}

func (s *channelSubscriber) OnFinalized(rec domain.DetectionRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.done {
		return ErrSubscriberClosed
	}

	select {
	case <-s.closed:
		return ErrSubscriberClosed
	case s.ch <- copyRecord(rec):
		return nil
	}
}

func (s *channelSubscriber) Name() string { return s.name }

func (s *channelSubscriber) close() {
	s.once.Do(func() {
		// Release blocked senders before taking the write lock.
		close(s.closed)
		s.mu.Lock()
		s.done = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func copyRecord(rec domain.DetectionRecord) domain.DetectionRecord {
	rec.Classification = rec.Classification.Clone()
	return rec
}
