package gateway

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/channel"
	"github.com/uncord-chat/uncord-server/internal/server"
	"github.com/uncord-chat/uncord-server/internal/user"
)

func pingFrame(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(Frame{Type: tagPing})
	if err != nil {
		t.Fatalf("marshal ping frame: %v", err)
	}
	return data
}

func TestPingPongOrder(t *testing.T) {
	t.Parallel()

	hub := NewHub(newFakeStore(), testConfig(), zerolog.Nop())
	_, conn := connect(hub)

	const n = 5
	for i := 0; i < n; i++ {
		conn.send(t, pingFrame(t))
	}
	for i := 0; i < n; i++ {
		frame := conn.expectFrame(t)
		if frame.Type != tagPong {
			t.Fatalf("frame %d type = %q, want %q", i, frame.Type, tagPong)
		}
	}
	conn.expectNoFrame(t, 100*time.Millisecond)
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	t.Parallel()

	hub := NewHub(newFakeStore(), testConfig(), zerolog.Nop())
	_, conn := connect(hub)

	conn.send(t, []byte("{not json"))
	conn.send(t, []byte(`{"type":"Bogus","payload":{}}`))
	conn.send(t, []byte(`{"type":"Identify","payload":"not-an-object"}`))
	conn.send(t, pingFrame(t))

	// The session survived every malformed frame and still answers.
	if frame := conn.expectFrame(t); frame.Type != tagPong {
		t.Errorf("frame type = %q, want %q", frame.Type, tagPong)
	}
}

// sessionWithEntitlements builds an identified session without going through the Hub.
func sessionWithEntitlements(servers map[uuid.UUID]struct{}, channels map[uuid.UUID]uuid.UUID) (*Session, *fakeConn) {
	hub := NewHub(newFakeStore(), testConfig(), zerolog.Nop())
	conn := newFakeConn()
	session := newSession(hub, conn, zerolog.Nop())
	go session.writePump()

	session.mu.Lock()
	session.userID = uuid.New()
	session.identified = true
	for id := range servers {
		session.servers[id] = struct{}{}
	}
	for ch, srv := range channels {
		session.channels[ch] = srv
	}
	session.mu.Unlock()
	return session, conn
}

func TestDeliverDataFiltersByChannel(t *testing.T) {
	t.Parallel()

	serverID := uuid.New()
	entitled := uuid.New()
	other := uuid.New()

	session, conn := sessionWithEntitlements(
		map[uuid.UUID]struct{}{serverID: {}},
		map[uuid.UUID]uuid.UUID{entitled: serverID},
	)

	session.deliverData([]byte(`{"type":"NewMessage"}`), other)
	conn.expectNoFrame(t, 100*time.Millisecond)

	session.deliverData([]byte(`{"type":"NewMessage"}`), entitled)
	if frame := conn.expectFrame(t); frame.Type != tagNewMessage {
		t.Errorf("frame type = %q, want %q", frame.Type, tagNewMessage)
	}
}

func TestDeliverAddChannelAlwaysEmitsAndCaches(t *testing.T) {
	t.Parallel()

	serverID := uuid.New()
	session, conn := sessionWithEntitlements(nil, nil)

	ch := &channel.Channel{ID: uuid.New(), ServerID: serverID, Name: "general"}
	session.deliverAddChannel(ch)

	if frame := conn.expectFrame(t); frame.Type != tagNewChannel {
		t.Errorf("frame type = %q, want %q", frame.Type, tagNewChannel)
	}

	session.deliverData([]byte(`{"type":"NewMessage"}`), ch.ID)
	if frame := conn.expectFrame(t); frame.Type != tagNewMessage {
		t.Errorf("frame type = %q, want %q", frame.Type, tagNewMessage)
	}
}

func TestDeliverAddServerCachesServerAndChannels(t *testing.T) {
	t.Parallel()

	session, conn := sessionWithEntitlements(nil, nil)

	srv := &server.Server{ID: uuid.New(), Name: "Home", OwnerID: uuid.New()}
	chs := []*channel.Channel{
		{ID: uuid.New(), ServerID: srv.ID, Name: "general"},
		{ID: uuid.New(), ServerID: srv.ID, Name: "random"},
	}
	users := []*user.User{{ID: uuid.New(), Username: "alice"}}

	session.deliverAddServer(srv, chs, users)

	frame := conn.expectFrame(t)
	if frame.Type != tagNewServer {
		t.Fatalf("frame type = %q, want %q", frame.Type, tagNewServer)
	}
	var payload newServerPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("unmarshal NewServer payload: %v", err)
	}
	if len(payload.Channels) != 2 || len(payload.Users) != 1 {
		t.Errorf("payload sizes = (%d, %d), want (2, 1)", len(payload.Channels), len(payload.Users))
	}

	if !session.hasServer(srv.ID) {
		t.Error("server missing from entitlement cache")
	}
	session.deliverData([]byte(`{"type":"NewMessage"}`), chs[1].ID)
	if f := conn.expectFrame(t); f.Type != tagNewMessage {
		t.Errorf("frame type = %q, want %q", f.Type, tagNewMessage)
	}
}

func TestServerScopedDeliveriesRequireEntitlement(t *testing.T) {
	t.Parallel()

	memberOf := uuid.New()
	strangerTo := uuid.New()
	u := &user.User{ID: uuid.New(), Username: "bob"}

	session, conn := sessionWithEntitlements(map[uuid.UUID]struct{}{memberOf: {}}, nil)

	session.deliverAddUser(strangerTo, u)
	session.deliverDeleteUser(strangerTo, u.ID)
	session.deliverUpdateServer(&server.Server{ID: strangerTo, Name: "Other"})
	session.deliverDeleteServer(strangerTo)
	conn.expectNoFrame(t, 100*time.Millisecond)

	session.deliverAddUser(memberOf, u)
	if f := conn.expectFrame(t); f.Type != tagNewUser {
		t.Errorf("frame type = %q, want %q", f.Type, tagNewUser)
	}
	session.deliverDeleteUser(memberOf, u.ID)
	if f := conn.expectFrame(t); f.Type != tagDeleteUser {
		t.Errorf("frame type = %q, want %q", f.Type, tagDeleteUser)
	}
	session.deliverUpdateServer(&server.Server{ID: memberOf, Name: "Renamed"})
	if f := conn.expectFrame(t); f.Type != tagUpdateServer {
		t.Errorf("frame type = %q, want %q", f.Type, tagUpdateServer)
	}
}

func TestDeliverDeleteServerDropsServerChannels(t *testing.T) {
	t.Parallel()

	serverID := uuid.New()
	otherServer := uuid.New()
	doomed := uuid.New()
	kept := uuid.New()

	session, conn := sessionWithEntitlements(
		map[uuid.UUID]struct{}{serverID: {}, otherServer: {}},
		map[uuid.UUID]uuid.UUID{doomed: serverID, kept: otherServer},
	)

	session.deliverDeleteServer(serverID)
	if f := conn.expectFrame(t); f.Type != tagDeleteServer {
		t.Fatalf("frame type = %q, want %q", f.Type, tagDeleteServer)
	}

	// A second delete of the same server is filtered out.
	session.deliverDeleteServer(serverID)
	conn.expectNoFrame(t, 100*time.Millisecond)

	// Channels of the deleted server no longer pass the data filter; other servers' channels are untouched.
	session.deliverData([]byte(`{"type":"NewMessage"}`), doomed)
	conn.expectNoFrame(t, 100*time.Millisecond)
	session.deliverData([]byte(`{"type":"NewMessage"}`), kept)
	if f := conn.expectFrame(t); f.Type != tagNewMessage {
		t.Errorf("frame type = %q, want %q", f.Type, tagNewMessage)
	}
}

func TestDeliverDeleteChannelRemovesEntitlement(t *testing.T) {
	t.Parallel()

	serverID := uuid.New()
	channelID := uuid.New()

	session, conn := sessionWithEntitlements(
		map[uuid.UUID]struct{}{serverID: {}},
		map[uuid.UUID]uuid.UUID{channelID: serverID},
	)

	session.deliverDeleteChannel(channelID)
	if f := conn.expectFrame(t); f.Type != tagDeleteChannel {
		t.Fatalf("frame type = %q, want %q", f.Type, tagDeleteChannel)
	}

	session.deliverDeleteChannel(channelID)
	conn.expectNoFrame(t, 100*time.Millisecond)
}

func TestDeliverUpdateChannelRequiresEntitlement(t *testing.T) {
	t.Parallel()

	serverID := uuid.New()
	channelID := uuid.New()

	session, conn := sessionWithEntitlements(
		map[uuid.UUID]struct{}{serverID: {}},
		map[uuid.UUID]uuid.UUID{channelID: serverID},
	)

	session.deliverUpdateChannel(&channel.Channel{ID: uuid.New(), ServerID: serverID, Name: "other"})
	conn.expectNoFrame(t, 100*time.Millisecond)

	session.deliverUpdateChannel(&channel.Channel{ID: channelID, ServerID: serverID, Name: "renamed"})
	if f := conn.expectFrame(t); f.Type != tagUpdateChannel {
		t.Errorf("frame type = %q, want %q", f.Type, tagUpdateChannel)
	}
}

func TestMailboxOverflowEvictsSession(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.GatewayMailboxSize = 2

	hub := NewHub(newFakeStore(), cfg, zerolog.Nop())
	conn := newFakeConn()
	session := newSession(hub, conn, zerolog.Nop())
	// No writePump: the mailbox fills up as a stuck client's would.

	for i := 0; i < cfg.GatewayMailboxSize+1; i++ {
		session.enqueue([]byte(fmt.Sprintf(`{"type":"Pong","seq":%d}`, i)))
	}
	conn.awaitClosed(t)
}
