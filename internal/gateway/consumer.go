package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// consumerGroup is the stream consumer group shared by gateway processes. A single consumer reads at a time, so
	// events reach the Hub strictly in queue order.
	consumerGroup = "uncord-gateway"

	// reclaimMinIdle is the minimum time a delivery must sit unacknowledged (a crashed consumer) before another
	// consumer takes it over on startup.
	reclaimMinIdle = 30 * time.Second
)

// Consumer subscribes to the broker event stream, decodes each entry as an Event, hands it to the Hub, and
// acknowledges the entry after the Hub returns. Undecodable entries are acknowledged and dropped; Hub-side failures
// are not retried either, so one poison event can never stall the queue.
type Consumer struct {
	rdb    *redis.Client
	hub    *Hub
	stream string
	name   string
	log    zerolog.Logger
}

// NewConsumer creates a consumer reading the given stream into the hub.
func NewConsumer(rdb *redis.Client, hub *Hub, stream string, logger zerolog.Logger) *Consumer {
	return &Consumer{
		rdb:    rdb,
		hub:    hub,
		stream: stream,
		name:   "gateway-" + uuid.New().String()[:8],
		log:    logger.With().Str("component", "bus-consumer").Logger(),
	}
}

// EnsureStream creates the consumer group for the event stream, ignoring errors if the group already exists.
func (c *Consumer) EnsureStream(ctx context.Context) {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		c.log.Warn().Err(err).Msg("Failed to create event consumer group")
	}
}

// Run reads and dispatches broker events until the context is cancelled, one in-flight event at a time. Entries left
// pending by a crashed process are reclaimed first so the durable queue replays them after a restart.
func (c *Consumer) Run(ctx context.Context) error {
	c.reclaimPending(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A bounded block lets the loop notice cancellation between reads.
		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    1,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

// reclaimPending takes over entries that sat unacknowledged longer than reclaimMinIdle and dispatches them.
func (c *Consumer) reclaimPending(ctx context.Context) {
	msgs, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    consumerGroup,
		Consumer: c.name,
		MinIdle:  reclaimMinIdle,
		Start:    "0-0",
		Count:    100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Msg("Failed to reclaim pending broker events")
		}
		return
	}
	for _, msg := range msgs {
		c.process(ctx, msg)
	}
}

// process decodes one stream entry, dispatches it through the Hub, and acknowledges it regardless of the outcome.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	defer c.ack(ctx, msg.ID)

	raw, ok := msg.Values[streamDataField]
	if !ok {
		c.log.Warn().Str("message_id", msg.ID).Msg("Broker entry missing data field")
		return
	}
	data, ok := raw.(string)
	if !ok {
		c.log.Warn().Str("message_id", msg.ID).Msg("Broker entry data field is not a string")
		return
	}

	ev, err := DecodeEvent([]byte(data))
	if err != nil {
		c.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Dropping undecodable broker event")
		return
	}

	c.hub.Dispatch(ctx, ev)
}

func (c *Consumer) ack(ctx context.Context, messageID string) {
	if err := c.rdb.XAck(ctx, c.stream, consumerGroup, messageID).Err(); err != nil {
		c.log.Warn().Err(err).Str("message_id", messageID).Msg("Failed to ACK broker event")
	}
}
