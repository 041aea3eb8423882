// Package cache provides a Redis-backed snapshot cache so fresh clients can
// render the market panel without waiting for the next broadcast.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

// RedisRepository implements the SnapshotCache interface on Redis. The
// snapshot is small and fully derived, so entries never expire; each write
// simply replaces the previous one.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(addr, password string, db int) *RedisRepository {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRepository{client: client}
}

var _ repository.SnapshotCache = (*RedisRepository)(nil)

// Ping verifies the connection.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	key := fmt.Sprintf("snapshot:%d", snap.ProductID)
	return r.client.Set(ctx, key, data, 0).Err()
}

func (r *RedisRepository) GetSnapshot(ctx context.Context, productID int64) (*model.Snapshot, error) {
	key := fmt.Sprintf("snapshot:%d", productID)
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // no snapshot cached yet
		}
		return nil, err
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
