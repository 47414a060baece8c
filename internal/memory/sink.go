// Package memory stores loop events in an external key-value store. The store
// is a write-only side channel: nothing in the planner or loop reads it back.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upside-down-research.com/oss/goap/internal/config"
)

var (
	// ErrInvalidKey is returned for an empty namespace or key.
	ErrInvalidKey = errors.New("memory: namespace and key must not be empty")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("memory: unknown sink backend")
)

// Sink is an append-only store keyed by namespace and key.
// A ttl of zero keeps the value until the backend evicts it.
type Sink interface {
	Store(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Pinger is implemented by sinks that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open creates the sink selected by cfg.
func Open(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	switch cfg.Backend {
	case "", config.BackendNone:
		return Discard{}, nil
	case config.BackendBadger:
		return NewBadgerSink(cfg.Badger.Dir, cfg.Badger.InMemory)
	case config.BackendRedis:
		return NewRedisSink(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	case config.BackendInflux:
		return NewInfluxSink(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Discard drops every value.
type Discard struct{}

func (Discard) Store(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	return validKey(namespace, key)
}

func (Discard) Close() error { return nil }

func validKey(namespace, key string) error {
	if namespace == "" || key == "" {
		return ErrInvalidKey
	}
	return nil
}

// joinKey builds the flat key used by backends without namespaces.
func joinKey(namespace, key string) string {
	return namespace + ":" + key
}
