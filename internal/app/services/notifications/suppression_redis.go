package notifications

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisSuppression shares suppression windows across replicas via SET NX
// with a TTL equal to the window.
type RedisSuppression struct {
	client *redis.Client
	prefix string
}

// NewRedisSuppression wraps a redis client. The prefix namespaces keys so
// the instance can share a database with other concerns.
func NewRedisSuppression(client *redis.Client, prefix string) *RedisSuppression {
	if prefix == "" {
		prefix = "notify:seen:"
	}
	return &RedisSuppression{client: client, prefix: prefix}
}

func (r *RedisSuppression) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	set, err := r.client.SetNX(ctx, r.prefix+key, 1, window).Result()
	if err != nil {
		return false, err
	}
	// SETNX succeeded means the key was not present: first delivery.
	return !set, nil
}
