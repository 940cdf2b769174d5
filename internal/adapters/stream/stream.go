// Package stream decodes sensor payloads from a push source into readings and
// hands them to one handler per attachment.
package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// Stream implements ports.ReadingStream on top of a PushSource.
type Stream struct {
	src ports.PushSource
	obs ports.Observability
	now func() time.Time
}

func New(src ports.PushSource, obs ports.Observability) *Stream {
	return &Stream{src: src, obs: obs, now: time.Now}
}

func (s *Stream) Attach(topic string, handler func(domain.Reading)) (ports.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("attach %s: nil handler", topic)
	}
	sub := &subscription{topic: topic, handler: handler, live: true}
	unsub, err := s.src.Subscribe(topic, func(payload []byte) { s.deliver(sub, payload) })
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "attach "+topic, err)
	}
	sub.mu.Lock()
	sub.unsub = unsub
	sub.mu.Unlock()
	return sub, nil
}

func (s *Stream) deliver(sub *subscription, payload []byte) {
	r, err := Decode(payload)
	if err != nil {
		if s.obs != nil {
			s.obs.IncCounter(ports.MetricPayloadDropped, 1)
			s.obs.LogError("stream_payload_dropped", err, ports.Field{Key: "topic", Value: sub.topic})
		}
		return
	}
	r.ObservedAt = s.now()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.live {
		return
	}
	sub.handler(r)
}

// subscription serializes deliveries with Detach so no handler call starts
// after Detach has returned.
type subscription struct {
	topic   string
	handler func(domain.Reading)

	mu    sync.Mutex
	live  bool
	unsub func() error
	once  sync.Once
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Detach() {
	s.mu.Lock()
	s.live = false
	unsub := s.unsub
	s.mu.Unlock()

	s.once.Do(func() {
		if unsub != nil {
			_ = unsub()
		}
	})
}

var _ ports.ReadingStream = (*Stream)(nil)
