// Package redis implements the poll-changed signal backplane on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/livepoll/livepoll/internal/domain"
)

// Signal publishes and consumes poll-changed notifications over Redis Pub/Sub.
// Pub/Sub (rather than a list) because every API instance must see every
// signal: rooms are per-process, so each instance fans out to its own sockets.
type Signal struct {
	client  *redis.Client
	channel string
}

func NewSignal(client *redis.Client, channel string) *Signal {
	return &Signal{
		client:  client,
		channel: channel,
	}
}

func (s *Signal) PollChanged(ctx context.Context, id domain.PollID) error {
	if err := s.client.Publish(ctx, s.channel, string(id)).Err(); err != nil {
		return fmt.Errorf("redis signal: publish poll %s: %w", id, err)
	}
	return nil
}

// Listen blocks consuming signals until ctx is done. Handler calls are
// sequential, which preserves per-poll broadcast order.
func (s *Signal) Listen(ctx context.Context, handler func(context.Context, domain.PollID)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so a publish racing the
	// subscribe is not silently missed.
	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("redis signal: subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis signal: subscription closed")
			}
			if msg.Payload == "" {
				continue
			}
			handler(ctx, domain.PollID(msg.Payload))
		}
	}
}

var _ domain.PollEventStream = (*Signal)(nil)
