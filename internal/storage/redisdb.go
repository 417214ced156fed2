package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/models"
)

const (
	redisItemPrefix    = "quarantine:item:"
	redisItemIndex     = "quarantine:ids"
	redisSignaturesKey = "signatures:active"
)

// RedisDB implements Store using Redis. Records are JSON values keyed
// by id, with a set index for listing.
type RedisDB struct {
	client *redis.Client
}

// NewRedisDB connects to Redis and verifies the connection.
func NewRedisDB(cfg *Config) (*RedisDB, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &RedisDB{client: rdb}, nil
}

// Initialize is a no-op; Redis is schema-less.
func (r *RedisDB) Initialize(ctx context.Context) error {
	return nil
}

// Close closes the Redis client.
func (r *RedisDB) Close(ctx context.Context) error {
	return r.client.Close()
}

// PutItem stores a quarantine record and indexes its id.
func (r *RedisDB) PutItem(ctx context.Context, item models.QuarantineItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal QuarantineItem: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisItemPrefix+item.ID, data, 0)
	pipe.SAdd(ctx, redisItemIndex, item.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store quarantine record: %w", err)
	}
	return nil
}

// GetItem retrieves a quarantine record by id.
func (r *RedisDB) GetItem(ctx context.Context, id string) (models.QuarantineItem, error) {
	var item models.QuarantineItem

	data, err := r.client.Get(ctx, redisItemPrefix+id).Result()
	if err == redis.Nil {
		return item, ErrItemNotFound
	}
	if err != nil {
		return item, err
	}

	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return item, fmt.Errorf("failed to unmarshal QuarantineItem: %w", err)
	}
	return item, nil
}

// DeleteItem removes a quarantine record and its index entry.
func (r *RedisDB) DeleteItem(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, redisItemPrefix+id).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrItemNotFound
	}
	return r.client.SRem(ctx, redisItemIndex, id).Err()
}

// ListItems returns all quarantine records.
func (r *RedisDB) ListItems(ctx context.Context) ([]models.QuarantineItem, error) {
	ids, err := r.client.SMembers(ctx, redisItemIndex).Result()
	if err != nil {
		return nil, err
	}

	var items []models.QuarantineItem
	for _, id := range ids {
		item, err := r.GetItem(ctx, id)
		if err == ErrItemNotFound {
			logrus.WithField("id", id).Warn("Indexed quarantine record missing; skipping")
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// PutSignatures persists the active signature set.
func (r *RedisDB) PutSignatures(ctx context.Context, sigs []models.ThreatSignature) error {
	data, err := json.Marshal(sigs)
	if err != nil {
		return fmt.Errorf("failed to marshal signatures: %w", err)
	}
	return r.client.Set(ctx, redisSignaturesKey, data, 0).Err()
}

// GetSignatures returns the persisted signature set, nil if absent.
func (r *RedisDB) GetSignatures(ctx context.Context) ([]models.ThreatSignature, error) {
	data, err := r.client.Get(ctx, redisSignaturesKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sigs []models.ThreatSignature
	if err := json.Unmarshal([]byte(data), &sigs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signatures: %w", err)
	}
	return sigs, nil
}
