package gateway

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	channelID := uuid.New()
	raw := []byte(`{"NewChannel":{"channel_id":"` + channelID.String() + `"}}`)

	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if ev.Variant() != "NewChannel" {
		t.Errorf("Variant() = %q, want %q", ev.Variant(), "NewChannel")
	}
	if ev.NewChannel.ChannelID != channelID {
		t.Errorf("ChannelID = %v, want %v", ev.NewChannel.ChannelID, channelID)
	}
}

func TestDecodeEventUnknownVariant(t *testing.T) {
	t.Parallel()

	_, err := DecodeEvent([]byte(`{"SomethingElse":{"id":"x"}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("DecodeEvent() error = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeEventInvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := DecodeEvent([]byte("{broken")); err == nil {
		t.Error("DecodeEvent() with invalid JSON should return an error")
	}
}

func TestEventWireShapeIsOneKeyEnvelope(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	serverID := uuid.New()
	ev := &Event{UserJoined: &UserJoinedEvent{UserID: userID, ServerID: serverID}}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	var envelope map[string]map[string]string
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if len(envelope) != 1 {
		t.Fatalf("envelope has %d keys, want 1: %s", len(envelope), data)
	}
	body, ok := envelope["UserJoined"]
	if !ok {
		t.Fatalf("envelope key missing, got %s", data)
	}
	if body["user_id"] != userID.String() || body["server_id"] != serverID.String() {
		t.Errorf("body = %v, want user_id=%v server_id=%v", body, userID, serverID)
	}
}
