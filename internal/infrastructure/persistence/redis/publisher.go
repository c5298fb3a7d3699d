package redis

import (
	"context"
	"fmt"
)

// Publisher sends messages to per-user pub/sub channels.
type Publisher struct {
	client *Client
}

// NewPublisher creates a Publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// UserChannel returns the notice channel of a user.
func UserChannel(userID string) string {
	return PrefixNotices + userID
}

// Publish sends payload to the user's channel and returns the number of
// subscribers that received it.
func (p *Publisher) Publish(ctx context.Context, userID string, payload []byte) (int64, error) {
	n, err := p.client.rdb.Publish(ctx, UserChannel(userID), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: publish to %s: %w", UserChannel(userID), err)
	}
	return n, nil
}
