// Package redis keeps a short-lived record of webhook deliveries that were
// fully processed, so provider retries are answered without touching the
// database.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 72 * time.Hour

type DeliveryDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Open parses a redis:// URL and checks the connection.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewDeliveryDeduper(client *redis.Client, prefix string, ttl time.Duration) *DeliveryDeduper {
	if prefix == "" {
		prefix = "webhook:delivery:"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &DeliveryDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *DeliveryDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (d *DeliveryDeduper) Remember(ctx context.Context, key string) error {
	if err := d.client.SetNX(ctx, d.prefix+key, time.Now().UTC().Unix(), d.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}
