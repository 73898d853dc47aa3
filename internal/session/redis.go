package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func cartKey(token string) string {
	return fmt.Sprintf("storefront:session:%s:cart", token)
}

func (s *RedisStore) CartID(ctx context.Context, token string) (uint, bool, error) {
	val, err := s.client.Get(ctx, cartKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading session %s: %w", token, err)
	}

	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		// A corrupt value is treated as no reference; the next SetCartID overwrites it.
		return 0, false, nil
	}
	return uint(id), true, nil
}

func (s *RedisStore) SetCartID(ctx context.Context, token string, cartID uint) error {
	if err := s.client.Set(ctx, cartKey(token), strconv.FormatUint(uint64(cartID), 10), s.ttl).Err(); err != nil {
		return fmt.Errorf("writing session %s: %w", token, err)
	}
	return nil
}

func (s *RedisStore) Forget(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, cartKey(token)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", token, err)
	}
	return nil
}
