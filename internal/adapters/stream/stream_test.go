package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gopcua/opcua/ua"
	"github.com/redis/go-redis/v9"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		in    string
		level float64
		hint  string
		bad   bool
	}{
		{in: "23", level: 23},
		{in: " 23.5 ", level: 23.5},
		{in: "23%", level: 23},
		{in: `"41%"`, level: 41},
		{in: "140", level: 100},
		{in: "-3", level: 0},
		{in: `{"contamination_percent": 12, "risk_level": "Medium"}`, level: 12, hint: "Medium"},
		{in: `{"level": "55%", "tierHint": "high"}`, level: 55, hint: "high"},
		{in: `{"level": 7}`, level: 7},
		{in: "", bad: true},
		{in: "null", bad: true},
		{in: "abc", bad: true},
		{in: `{"value": 3}`, bad: true},
		{in: `[1,2]`, bad: true},
	}
	for _, tc := range cases {
		r, err := Decode([]byte(tc.in))
		if tc.bad {
			if err == nil {
				t.Fatalf("Decode(%q) expected error, got %+v", tc.in, r)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Decode(%q): %v", tc.in, err)
		}
		if r.Level != tc.level || r.TierHint != tc.hint {
			t.Fatalf("Decode(%q) = %+v, want level %v hint %q", tc.in, r, tc.level, tc.hint)
		}
	}
}

type collector struct {
	mu   sync.Mutex
	got  []float64
	seen chan struct{}
}

func newCollector() *collector { return &collector{seen: make(chan struct{}, 64)} }

func (c *collector) handle(r domain.Reading) {
	c.mu.Lock()
	c.got = append(c.got, r.Level)
	c.mu.Unlock()
	c.seen <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []float64 {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for reading %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.got...)
}

func TestHubStreamDeliversInOrderAndStopsAfterDetach(t *testing.T) {
	hub := NewHub(HubConfig{}, nil)
	defer hub.Close()
	s := New(hub, nil)

	c := newCollector()
	sub, err := s.Attach("SensorData/WaterDetection", c.handle)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	other := newCollector()
	if _, err := s.Attach("SensorData/BloodDetection", other.handle); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	hub.Publish("SensorData/WaterDetection", []byte("1"))
	hub.Publish("SensorData/WaterDetection", []byte("garbage"))
	hub.Publish("SensorData/WaterDetection", []byte("2"))
	hub.Publish("SensorData/WaterDetection", []byte(`{"level":3}`))

	got := c.wait(t, 3)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected deliveries %v", got)
	}

	sub.Detach()
	sub.Detach()
	if hub.Subscribers("SensorData/WaterDetection") != 0 {
		t.Fatalf("detach did not unsubscribe")
	}
	hub.Publish("SensorData/WaterDetection", []byte("9"))
	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.got) != 3 {
		t.Fatalf("delivery after detach: %v", c.got)
	}
	if len(other.got) != 0 {
		t.Fatalf("topic leak: %v", other.got)
	}
}

func TestDetachWinsOverQueuedDelivery(t *testing.T) {
	var deliver func([]byte)
	src := &captureSource{onSubscribe: func(fn func([]byte)) { deliver = fn }}
	s := New(src, nil)

	c := newCollector()
	sub, err := s.Attach("t", c.handle)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	sub.Detach()
	// The source still holds the callback, as a push service with an event in flight would.
	deliver([]byte("42"))
	if len(c.got) != 0 {
		t.Fatalf("handler ran after detach")
	}
	if !src.unsubscribed {
		t.Fatalf("source was not unsubscribed")
	}
}

type captureSource struct {
	onSubscribe  func(func([]byte))
	unsubscribed bool
}

func (c *captureSource) Subscribe(_ string, fn func([]byte)) (func() error, error) {
	c.onSubscribe(fn)
	return func() error { c.unsubscribed = true; return nil }, nil
}

func (c *captureSource) Close() error { return nil }

func TestHubDropPolicy(t *testing.T) {
	hub := &Hub{cfg: HubConfig{Capacity: 1, OnFull: "drop"}.withDefaults()}
	hub.q = newTestQueue(1)
	if !hub.enqueueWithPolicy(itemFor("a")) {
		t.Fatalf("first enqueue should succeed")
	}
	if hub.enqueueWithPolicy(itemFor("b")) {
		t.Fatalf("enqueue beyond capacity should drop")
	}
}

func TestHubRejectsAfterClose(t *testing.T) {
	hub := NewHub(HubConfig{}, nil)
	if err := hub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if hub.Publish("t", []byte("1")) {
		t.Fatalf("publish after close should fail")
	}
	if _, err := hub.Subscribe("t", func([]byte) {}); err != ErrHubClosed {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
}

func TestRedisSource(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	src := NewRedisSource(client, nil)
	defer src.Close()
	s := New(src, nil)

	c := newCollector()
	sub, err := s.Attach("SensorData/BloodDetection", c.handle)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ctx := context.Background()
	if err := src.Publish(ctx, "SensorData/BloodDetection", []byte(`{"contamination_percent": 18}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := c.wait(t, 1); got[0] != 18 {
		t.Fatalf("unexpected reading %v", got)
	}

	sub.Detach()
	_ = src.Publish(ctx, "SensorData/BloodDetection", []byte("77"))
	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.got) != 1 {
		t.Fatalf("delivery after detach: %v", c.got)
	}
}

func TestOPCUAConfig(t *testing.T) {
	if _, err := NewOPCUASource(OPCUAConfig{}, nil); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewOPCUASource(OPCUAConfig{Endpoint: "opc.tcp://localhost:4840", Nodes: []OPCUANode{{NodeID: "bogus"}}}, nil); err == nil {
		t.Fatalf("expected node id error")
	}
	src, err := NewOPCUASource(OPCUAConfig{
		Endpoint: "opc.tcp://localhost:4840",
		Nodes:    []OPCUANode{{NodeID: "ns=2;s=Water", Topic: "SensorData/WaterDetection"}},
	}, nil)
	if err != nil {
		t.Fatalf("NewOPCUASource: %v", err)
	}
	if _, err := src.Subscribe("SensorData/BloodDetection", func([]byte) {}); err == nil {
		t.Fatalf("expected unknown topic error")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestVariantPayload(t *testing.T) {
	for _, v := range []any{float32(12.5), int32(40), uint8(7), "33%"} {
		variant := ua.MustVariant(v)
		p, ok := variantPayload(variant)
		if !ok {
			t.Fatalf("variant %T not supported", v)
		}
		if _, err := Decode(p); err != nil {
			t.Fatalf("payload %q from %T does not decode: %v", p, v, err)
		}
	}
	if _, ok := variantPayload(ua.MustVariant(true)); ok {
		t.Fatalf("bool should not be accepted")
	}
}
