package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// RedisSource maps each topic onto a Redis pub/sub channel of the same name.
type RedisSource struct {
	client *redis.Client
	obs    ports.Observability

	mu   sync.Mutex
	subs map[*redis.PubSub]*sync.WaitGroup
}

func NewRedisSource(client *redis.Client, obs ports.Observability) *RedisSource {
	return &RedisSource{client: client, obs: obs, subs: make(map[*redis.PubSub]*sync.WaitGroup)}
}

func (s *RedisSource) Subscribe(topic string, deliver func([]byte)) (func() error, error) {
	ctx := context.Background()
	ps := s.client.Subscribe(ctx, topic)
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	wg := &sync.WaitGroup{}
	s.mu.Lock()
	s.subs[ps] = wg
	s.mu.Unlock()

	ch := ps.Channel()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range ch {
			deliver([]byte(msg.Payload))
		}
	}()

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ps)
			s.mu.Unlock()
			err = ps.Close()
			wg.Wait()
		})
		return err
	}, nil
}

// Publish sends payload to the topic channel; used by simulators and the CLI.
func (s *RedisSource) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := s.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (s *RedisSource) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[*redis.PubSub]*sync.WaitGroup)
	s.mu.Unlock()

	var firstErr error
	for ps, wg := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		wg.Wait()
	}
	if firstErr != nil && s.obs != nil {
		s.obs.LogError("redis_source_close_failed", firstErr)
	}
	return firstErr
}

var _ ports.PushSource = (*RedisSource)(nil)
