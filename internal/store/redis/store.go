package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store handles the Redis side of serpwatch: the settings document, the
// catalog snapshot, run locks and event publishing.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
