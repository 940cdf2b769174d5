package microguard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/classifier"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/store"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/adapters/stream"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// resources collects what the engine opened itself and must close on shutdown.
type resources struct {
	redis   *redis.Client
	closers []func() error
}

func (r *resources) redisClient(cfg *Config) *redis.Client {
	if r.redis == nil {
		r.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		r.closers = append(r.closers, r.redis.Close)
	}
	return r.redis
}

func buildStore(ctx context.Context, cfg *Config, res *resources) (ports.RecordStore, error) {
	switch cfg.Store.Driver {
	case "memory", "":
		return store.NewMemory(), nil
	case "postgres":
		s, err := store.OpenPostgres(cfg.Store.DSN, cfg.Store.Table)
		if err != nil {
			return nil, err
		}
		res.closers = append(res.closers, s.Close)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Store.Path, cfg.Store.Table)
		if err != nil {
			return nil, err
		}
		res.closers = append(res.closers, s.Close)
		return s, nil
	case "redis":
		return store.NewRedis(res.redisClient(cfg), cfg.Store.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildSource returns the push source and, for the local source, the hub so
// the engine can publish into it.
func buildSource(cfg *Config, obs ports.Observability, res *resources) (ports.PushSource, *stream.Hub, error) {
	switch cfg.Stream.Source {
	case "hub", "":
		hub := stream.NewHub(cfg.Stream.Hub, obs)
		return hub, hub, nil
	case "redis":
		return stream.NewRedisSource(res.redisClient(cfg), obs), nil, nil
	case "opcua":
		src, err := stream.NewOPCUASource(cfg.Stream.OPCUA, obs)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown stream source %q", cfg.Stream.Source)
	}
}

// buildClassifier returns nil for provider "none"; the controller then uses
// the local policy for every session.
func buildClassifier(cfg ClassifierConfig) (ports.Classifier, error) {
	opts := classifier.HTTPOptions{
		BaseURL:          cfg.BaseURL,
		APIKey:           cfg.APIKey,
		Model:            cfg.Model,
		Timeout:          cfg.Timeout,
		MaxResponseBytes: cfg.MaxResponseBytes,
	}
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "gemini":
		return classifier.NewRemote(classifier.NewGemini(opts)), nil
	case "openai":
		return classifier.NewRemote(classifier.NewOpenAI(opts)), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}
