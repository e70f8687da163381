package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// streamDataField is the stream entry field carrying the JSON event envelope.
const streamDataField = "data"

// Publisher serialises broker events onto the durable event stream after the triggering database transaction has
// committed. Publishing is fire-and-forget: one immediate retry on a transient broker error, then the event is
// dropped with a logged warning so the HTTP response is never blocked on the broker.
type Publisher struct {
	rdb        *redis.Client
	stream     string
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewPublisher creates a new broker event publisher writing to the given stream.
func NewPublisher(rdb *redis.Client, stream string, retryDelay time.Duration, logger zerolog.Logger) *Publisher {
	return &Publisher{rdb: rdb, stream: stream, retryDelay: retryDelay, log: logger}
}

// Publish appends the event to the stream. Callers invoke this only after commit; a failed publish is logged and
// dropped rather than surfaced, since the mutation it describes has already happened.
func (p *Publisher) Publish(ctx context.Context, ev *Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("event", ev.Variant()).Msg("Failed to marshal broker event")
		return
	}

	if err := p.add(ctx, payload); err != nil {
		time.Sleep(p.retryDelay)
		if err := p.add(ctx, payload); err != nil {
			p.log.Warn().Err(err).Str("event", ev.Variant()).Msg("Dropping broker event after retry")
			return
		}
	}
}

func (p *Publisher) add(ctx context.Context, payload []byte) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{streamDataField: string(payload)},
	}).Err()
}
