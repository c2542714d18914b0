package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// redisPublisher is the part of *redis.Client the sink needs
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes events on a per-clinic redis channel so every
// instance's relay can reach its own websocket clients.
type RedisSink struct {
	client redisPublisher
	prefix string
}

// NewRedisSink creates a sink publishing to <prefix>:<clinicId>
func NewRedisSink(client redisPublisher, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Name implements Sink
func (s *RedisSink) Name() string { return "redis" }

// Channel returns the redis channel for a clinic
func (s *RedisSink) Channel(clinicID string) string {
	return s.prefix + ":" + clinicID
}

// Deliver implements Sink
func (s *RedisSink) Deliver(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(evt.ClinicID.String()), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// RedisRelay feeds events published by any instance into the local hub.
type RedisRelay struct {
	client *redis.Client
	prefix string
	local  Sink
}

// NewRedisRelay creates a relay from <prefix>:* into local
func NewRedisRelay(client *redis.Client, prefix string, local Sink) *RedisRelay {
	return &RedisRelay{client: client, prefix: prefix, local: local}
}

// Run subscribes and relays until ctx is cancelled
func (r *RedisRelay) Run(ctx context.Context) error {
	pattern := r.prefix + ":*"
	pubsub := r.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}
	log.Info().Str("pattern", pattern).Msg("Redis notification relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.relay(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (r *RedisRelay) relay(ctx context.Context, channel, payload string) {
	evt, err := decodeRelayed(r.prefix, channel, payload)
	if err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed relayed event")
		return
	}
	if err := r.local.Deliver(ctx, evt); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Failed to deliver relayed event")
	}
}

// decodeRelayed parses a relayed payload and checks it arrived on its
// clinic's channel.
func decodeRelayed(prefix, channel, payload string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if want := prefix + ":" + evt.ClinicID.String(); !strings.EqualFold(channel, want) {
		return Event{}, fmt.Errorf("event for clinic %s arrived on %s", evt.ClinicID, channel)
	}
	return evt, nil
}
