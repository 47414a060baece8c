package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxSink writes each value as a point in the namespace measurement.
// InfluxDB expires data per bucket, so the TTL is recorded as a field only.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink creates a sink writing to org/bucket.
func NewInfluxSink(url, token, org, bucket string) (*InfluxSink, error) {
	if url == "" || bucket == "" {
		return nil, errors.New("influx sink needs a url and a bucket")
	}
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}, nil
}

func (s *InfluxSink) Store(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(namespace, key); err != nil {
		return err
	}

	if err := s.writeAPI.WritePoint(ctx, newPoint(namespace, key, value, ttl, time.Now())); err != nil {
		return fmt.Errorf("influx write failed: %w", err)
	}
	return nil
}

func newPoint(namespace, key string, value []byte, ttl time.Duration, ts time.Time) *write.Point {
	tags := map[string]string{"key": key}
	fields := map[string]interface{}{
		"value":       string(value),
		"ttl_seconds": ttl.Seconds(),
	}
	return write.NewPoint(namespace, tags, fields, ts)
}

func (s *InfluxSink) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping failed: %w", err)
	}
	if !ok {
		return errors.New("influx server is not ready")
	}
	return nil
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
