package stream

import (
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/queue"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

func newTestQueue(n int) ports.PayloadQueue { return queue.NewMemQueue(n) }

func itemFor(topic string) ports.QueuedPayload {
	return ports.QueuedPayload{Topic: topic, Payload: []byte("1")}
}
