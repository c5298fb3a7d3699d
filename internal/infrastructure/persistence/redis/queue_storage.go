package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// QueueStorage stores the sync queue payload under one Redis key.
// It implements syncqueue.Storage.
type QueueStorage struct {
	client *Client
}

// NewQueueStorage creates a QueueStorage.
func NewQueueStorage(client *Client) *QueueStorage {
	return &QueueStorage{client: client}
}

// Get returns the stored payload. A missing key is not an error.
func (s *QueueStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrKeyEmpty
	}

	data, err := s.client.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores the payload without expiry.
func (s *QueueStorage) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if err := s.client.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}
