package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/queue"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

var ErrHubClosed = errors.New("hub closed")

// HubConfig tunes the in-process broker.
type HubConfig struct {
	Capacity  int           `yaml:"capacity"`
	OnFull    string        `yaml:"on_full"` // "block", "drop"
	BatchSize int           `yaml:"batch_size"`
	IdleSleep time.Duration `yaml:"idle_sleep"`
}

func (c HubConfig) withDefaults() HubConfig {
	if c.Capacity <= 0 {
		c.Capacity = 1024
	}
	if c.OnFull == "" {
		c.OnFull = "drop"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = 5 * time.Millisecond
	}
	return c
}

// Hub is an in-process PushSource. Publish queues payloads in a bounded FIFO;
// one pump goroutine delivers them to the topic's subscribers in order.
type Hub struct {
	cfg HubConfig
	q   ports.PayloadQueue
	obs ports.Observability

	mu     sync.Mutex
	subs   map[string]map[uint64]func([]byte)
	nextID uint64
	seq    uint64
	closed bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(cfg HubConfig, obs ports.Observability) *Hub {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:    cfg,
		q:      queue.NewMemQueue(cfg.Capacity),
		obs:    obs,
		subs:   make(map[string]map[uint64]func([]byte)),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	h.wg.Add(1)
	go h.pump()
	return h
}

// Publish queues payload for topic. It reports false when the payload was
// dropped because the queue is full under the drop policy or the hub is closed.
func (h *Hub) Publish(topic string, payload []byte) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.seq++
	item := ports.QueuedPayload{Seq: h.seq, Topic: topic, Payload: append([]byte(nil), payload...)}
	h.mu.Unlock()

	if !h.enqueueWithPolicy(item) {
		h.count(ports.MetricHubDropped)
		return false
	}
	h.gauge()
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return true
}

func (h *Hub) enqueueWithPolicy(item ports.QueuedPayload) bool {
	for {
		if h.q.Enqueue(item) {
			return true
		}
		switch h.cfg.OnFull {
		case "block":
			select {
			case <-h.ctx.Done():
				return false
			case <-time.After(h.cfg.IdleSleep):
			}
		case "drop":
			h.logError("hub_queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", h.cfg.Capacity))
			return false
		default:
			h.logError("hub_policy_invalid", fmt.Errorf("policy=%s", h.cfg.OnFull))
			return false
		}
	}
}

func (h *Hub) Subscribe(topic string, deliver func([]byte)) (func() error, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	h.nextID++
	id := h.nextID
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]func([]byte))
	}
	h.subs[topic][id] = deliver
	return func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[topic], id)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		return nil
	}, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	h.wg.Wait()
	return nil
}

func (h *Hub) pump() {
	defer h.wg.Done()
	for {
		batch := h.q.DequeueBatch(h.cfg.BatchSize)
		if len(batch) == 0 {
			select {
			case <-h.ctx.Done():
				return
			case <-h.wake:
			case <-time.After(h.cfg.IdleSleep):
			}
			continue
		}
		h.gauge()
		for _, item := range batch {
			for _, deliver := range h.snapshot(item.Topic) {
				deliver(item.Payload)
			}
		}
	}
}

func (h *Hub) snapshot(topic string) []func([]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]func([]byte), 0, len(h.subs[topic]))
	for _, fn := range h.subs[topic] {
		out = append(out, fn)
	}
	return out
}

func (h *Hub) count(name string) {
	if h.obs != nil {
		h.obs.IncCounter(name, 1)
	}
}

func (h *Hub) gauge() {
	if h.obs != nil {
		h.obs.SetGauge(ports.GaugeHubQueueLength, float64(h.q.Len()))
	}
}

func (h *Hub) logError(msg string, err error) {
	if h.obs != nil {
		h.obs.LogError(msg, err)
	}
}

var _ ports.PushSource = (*Hub)(nil)
