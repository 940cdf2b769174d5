package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// Redis keeps each actor's records in one hash, detections:<actor>, with one
// field per record named <category>:<timestamp ms>.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "detections"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) hashKey(actor string) string { return r.prefix + ":" + actor }

func field(key domain.RecordKey) string {
	return fmt.Sprintf("%s:%d", key.Category, key.Timestamp)
}

func (r *Redis) Append(ctx context.Context, rec domain.DetectionRecord) (domain.RecordID, error) {
	key := rec.Key()
	b, err := json.Marshal(rec.Document())
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	if err := r.client.HSetNX(ctx, r.hashKey(rec.ActorID), field(key), b).Err(); err != nil {
		return "", fmt.Errorf("redis append %s: %w", key, err)
	}
	return key.ID(), nil
}

func (r *Redis) ListByActor(ctx context.Context, actor string, cat *domain.Category) ([]domain.DetectionRecord, error) {
	all, err := r.client.HGetAll(ctx, r.hashKey(actor)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", actor, err)
	}
	out := make([]domain.DetectionRecord, 0, len(all))
	for f, raw := range all {
		if cat != nil && !strings.HasPrefix(f, string(*cat)+":") {
			continue
		}
		var doc domain.RecordDocument
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("redis decode %s: %w", f, err)
		}
		out = append(out, domain.RecordFromDocument(actor, doc))
	}
	sortRecent(out)
	return out, nil
}

func (r *Redis) Close() error { return r.client.Close() }

var _ ports.RecordStore = (*Redis)(nil)
