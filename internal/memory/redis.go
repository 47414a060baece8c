package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDialTimeout = 5 * time.Second

// RedisSink stores values with SET and an expiration.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink connects to a Redis server and checks the connection.
func NewRedisSink(ctx context.Context, addr, password string, db int) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: redisDialTimeout,
	})

	s := NewRedisSinkFromClient(client)
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisSinkFromClient wraps an existing client.
func NewRedisSinkFromClient(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Store(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(namespace, key); err != nil {
		return err
	}

	if err := s.client.Set(ctx, joinKey(namespace, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Join(errors.New("redis connection failed"), err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
