package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"section_bidding/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore caches section snapshots for the read endpoints. It is never
// consulted on the mutation path; prices are only trusted under the section
// lock in the ledger.
type RedisStore struct {
	Client *redis.Client
}

func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func (s *RedisStore) Close() error {
	if s.Client != nil {
		return s.Client.Close()
	}
	return nil
}

func sectionKey(sectionID int64) string {
	return fmt.Sprintf("section_snapshot:%d", sectionID)
}

func (s *RedisStore) CacheSection(ctx context.Context, sec *models.Section, ttl time.Duration) error {
	secJSON, err := json.Marshal(sec)
	if err != nil {
		return fmt.Errorf("failed to marshal section: %w", err)
	}

	if err := s.Client.Set(ctx, sectionKey(sec.ID), secJSON, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set section snapshot in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) GetCachedSection(ctx context.Context, sectionID int64) (*models.Section, error) {
	val, err := s.Client.Get(ctx, sectionKey(sectionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get section snapshot from redis: %w", err)
	}

	var sec models.Section
	if err := json.Unmarshal([]byte(val), &sec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal section snapshot: %w", err)
	}
	return &sec, nil
}

func (s *RedisStore) InvalidateSection(ctx context.Context, sectionID int64) error {
	err := s.Client.Del(ctx, sectionKey(sectionID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to invalidate section snapshot: %w", err)
	}
	return nil
}
