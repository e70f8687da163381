package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// readEntries fetches every entry currently in the test stream.
func readEntries(t *testing.T, rdb *redis.Client) []redis.XMessage {
	t.Helper()
	entries, err := rdb.XRange(context.Background(), testStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	return entries
}

// pendingCount returns how many deliveries the consumer group has left unacknowledged.
func pendingCount(t *testing.T, rdb *redis.Client) int64 {
	t.Helper()
	pending, err := rdb.XPending(context.Background(), testStream, consumerGroup).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return pending.Count
}

// claim marks the stream entries as delivered to this consumer, as Run's XREADGROUP would.
func claim(t *testing.T, rdb *redis.Client, consumer *Consumer) []redis.XMessage {
	t.Helper()
	streams, err := rdb.XReadGroup(context.Background(), &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer.name,
		Streams:  []string{testStream, ">"},
		Count:    100,
	}).Result()
	if err != nil {
		t.Fatalf("xreadgroup: %v", err)
	}
	var msgs []redis.XMessage
	for _, stream := range streams {
		msgs = append(msgs, stream.Messages...)
	}
	return msgs
}

func TestConsumerDispatchesAndAcks(t *testing.T) {
	t.Parallel()
	_, rdb := newTestRedis(t)

	store := newFakeStore()
	u1 := store.addUser("alice")
	serverID := store.addServer("Home", u1)
	channelID := store.addChannel(serverID, "general")
	messageID := store.addMessage(channelID, u1, "hello")

	hub := NewHub(store, testConfig(), zerolog.Nop())
	_, conn := identify(t, hub, u1)

	consumer := NewConsumer(rdb, hub, testStream, zerolog.Nop())
	consumer.EnsureStream(context.Background())

	pub := NewPublisher(rdb, testStream, time.Millisecond, zerolog.Nop())
	pub.Publish(context.Background(), &Event{
		NewMessage: &NewMessageEvent{ChannelID: channelID, MessageID: messageID},
	})

	for _, msg := range claim(t, rdb, consumer) {
		consumer.process(context.Background(), msg)
	}

	if frame := conn.expectFrame(t); frame.Type != tagNewMessage {
		t.Errorf("frame type = %q, want %q", frame.Type, tagNewMessage)
	}
	if n := pendingCount(t, rdb); n != 0 {
		t.Errorf("pending deliveries = %d, want 0", n)
	}
}

func TestConsumerAcksPoisonMessages(t *testing.T) {
	t.Parallel()
	_, rdb := newTestRedis(t)

	hub := NewHub(newFakeStore(), testConfig(), zerolog.Nop())
	consumer := NewConsumer(rdb, hub, testStream, zerolog.Nop())
	consumer.EnsureStream(context.Background())

	ctx := context.Background()
	for _, values := range []map[string]any{
		{streamDataField: "{not json"},
		{streamDataField: `{"UnknownVariant":{}}`},
		{"other": "no data field"},
	} {
		if err := rdb.XAdd(ctx, &redis.XAddArgs{Stream: testStream, Values: values}).Err(); err != nil {
			t.Fatalf("xadd: %v", err)
		}
	}

	for _, msg := range claim(t, rdb, consumer) {
		consumer.process(ctx, msg)
	}

	if n := pendingCount(t, rdb); n != 0 {
		t.Errorf("pending deliveries = %d, want 0 (poison messages must be acked)", n)
	}
}

func TestConsumerAcksWhenStoreFails(t *testing.T) {
	t.Parallel()
	_, rdb := newTestRedis(t)

	store := newFakeStore()
	u1 := store.addUser("alice")
	serverID := store.addServer("Home", u1)
	channelID := store.addChannel(serverID, "general")
	messageID := store.addMessage(channelID, u1, "hello")
	store.setFailure(context.DeadlineExceeded)

	hub := NewHub(store, testConfig(), zerolog.Nop())
	consumer := NewConsumer(rdb, hub, testStream, zerolog.Nop())
	consumer.EnsureStream(context.Background())

	pub := NewPublisher(rdb, testStream, time.Millisecond, zerolog.Nop())
	pub.Publish(context.Background(), &Event{
		NewMessage: &NewMessageEvent{ChannelID: channelID, MessageID: messageID},
	})

	for _, msg := range claim(t, rdb, consumer) {
		consumer.process(context.Background(), msg)
	}

	// The fan-out was dropped but the event is still acknowledged; there is no retry loop.
	if n := pendingCount(t, rdb); n != 0 {
		t.Errorf("pending deliveries = %d, want 0", n)
	}
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	_, rdb := newTestRedis(t)

	hub := NewHub(newFakeStore(), testConfig(), zerolog.Nop())
	consumer := NewConsumer(rdb, hub, testStream, zerolog.Nop())
	consumer.EnsureStream(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run() returned nil after cancel, want context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
