package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultRelayChannel = "triage:notifications"

// Relay fans messages out to every node subscribed to the same channel.
type Relay struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

func NewRelay(client *redis.Client, channel string, logger zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{client: client, channel: channel, logger: logger}
}

func (r *Relay) Publish(ctx context.Context, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Run delivers every received message to handle until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, handle func(payload []byte)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("close relay subscription")
		}
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("notification relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle([]byte(msg.Payload))
		}
	}
}
