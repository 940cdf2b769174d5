package queue

import (
	"testing"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	p1 := ports.QueuedPayload{Seq: 1, Topic: "SensorData/WaterDetection", Payload: []byte("12")}
	p2 := ports.QueuedPayload{Seq: 2, Topic: "SensorData/WaterDetection", Payload: []byte("13")}

	if !q.Enqueue(p1) || !q.Enqueue(p2) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].Seq != 1 || string(batch[0].Payload) != "12" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].Seq != 2 {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)

	item := ports.QueuedPayload{Topic: "cap"}

	if !q.Enqueue(item) || !q.Enqueue(item) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(item) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(item) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}
