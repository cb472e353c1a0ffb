package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	Stream        = "voice_rooms_events"
	ConsumerGroup = "voice_rooms_archivers"

	// streamMaxLen bounds the stream; trimming is approximate.
	streamMaxLen = 10000
)

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range events {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: Stream,
				MaxLen: streamMaxLen,
				Approx: true,
				Values: e.Values(),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish %d events: %w", len(events), err)
	}
	return nil
}

var _ Publisher = (*RedisPublisher)(nil)

// Handler processes a batch of events. Events are acknowledged only
// when HandleEvents returns nil.
type Handler interface {
	HandleEvents(ctx context.Context, events ...Event) error
}

type HandlerFunc func(ctx context.Context, events ...Event) error

func (f HandlerFunc) HandleEvents(ctx context.Context, events ...Event) error {
	return f(ctx, events...)
}

type RedisConsumer struct {
	client   *redis.Client
	consumer string
	block    time.Duration

	retryDelay time.Duration
}

// NewRedisConsumer joins the archiver consumer group, creating the
// group and stream when they do not exist.
func NewRedisConsumer(ctx context.Context, client *redis.Client, consumer string) (*RedisConsumer, error) {
	err := client.XGroupCreateMkStream(ctx, Stream, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return &RedisConsumer{
		client:   client,
		consumer: consumer,
		block:    5 * time.Second,

		retryDelay: time.Second,
	}, nil
}

type delivery struct {
	id    string
	event Event
}

func (c *RedisConsumer) receive(ctx context.Context, id string) ([]delivery, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: c.consumer,
		Streams:  []string{Stream, id},
		Count:    64,
		Block:    c.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	var deliveries []delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			e, err := EventFromValues(msg.Values)
			if err != nil {
				// Malformed entries would be redelivered forever.
				slog.Warn("dropping malformed event", "id", msg.ID, "error", err)
				if ackErr := c.ack(ctx, msg.ID); ackErr != nil {
					return nil, ackErr
				}
				continue
			}
			deliveries = append(deliveries, delivery{id: msg.ID, event: e})
		}
	}
	return deliveries, nil
}

func (c *RedisConsumer) ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, Stream, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack events: %w", err)
	}
	return nil
}

// Run feeds events to h until ctx is cancelled. Entries left pending by a
// previous run of this consumer are replayed first.
func (c *RedisConsumer) Run(ctx context.Context, h Handler) error {
	cursor := "0"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.receive(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if len(deliveries) == 0 {
			// Pending backlog drained; switch to new entries.
			cursor = ">"
			continue
		}

		batch := make([]Event, len(deliveries))
		ids := make([]string, len(deliveries))
		for i, d := range deliveries {
			batch[i] = d.event
			ids[i] = d.id
		}

		if err := h.HandleEvents(ctx, batch...); err != nil {
			slog.Error("failed to handle events, leaving them pending", "count", len(batch), "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
			cursor = "0"
			continue
		}
		// Handled events are acked even when ctx ended during handling.
		if err := c.ack(context.WithoutCancel(ctx), ids...); err != nil {
			return err
		}
	}
}
