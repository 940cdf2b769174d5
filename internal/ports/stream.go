package ports

import "github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"

// PushSource is the raw push subscription service. deliver is invoked for every
// payload published on topic, in publish order, until unsubscribe is called.
type PushSource interface {
	Subscribe(topic string, deliver func(payload []byte)) (unsubscribe func() error, err error)
	Close() error
}

// ReadingStream attaches a single handler to the decoded readings of a topic.
type ReadingStream interface {
	Attach(topic string, handler func(domain.Reading)) (Subscription, error)
}

// Subscription is one attachment. After Detach returns no further handler call
// happens. Detach must not be called from inside the handler.
type Subscription interface {
	Detach()
	Topic() string
}
