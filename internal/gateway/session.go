package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/channel"
	"github.com/uncord-chat/uncord-server/internal/server"
	"github.com/uncord-chat/uncord-server/internal/user"
)

const (
	// maxMessageSize is the maximum size in bytes of a single inbound WebSocket message.
	maxMessageSize = 4096

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

// wsConn is the slice of *websocket.Conn the Session drives. Narrowed to an interface so tests can stand in a fake
// transport.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session terminates one client connection. It runs two goroutines (readPump and writePump), owns its outbound frame
// buffer, and caches the entitlement sets (servers, channels) that gate which deliveries reach the client. The Hub
// holds a non-owning handle to the Session and drives all deliver* methods; the Session never touches Hub state
// except through Hub methods.
type Session struct {
	hub  *Hub
	conn wsConn
	send chan []byte
	log  zerolog.Logger

	// done is closed to signal that the session is shutting down. The send channel is never closed directly; writePump
	// and enqueue both select on done to detect termination, avoiding send-on-closed-channel panics that would
	// otherwise occur when sessionClosed races with dispatch.
	done      chan struct{}
	closeOnce sync.Once

	// Entitlement state, protected by mu. userID stays uuid.Nil until a successful Identify; channels maps each
	// entitled channel to its owning server so a DeleteServer delivery can also drop that server's channels.
	mu         sync.RWMutex
	userID     uuid.UUID
	identified bool
	servers    map[uuid.UUID]struct{}
	channels   map[uuid.UUID]uuid.UUID
}

func newSession(hub *Hub, conn wsConn, logger zerolog.Logger) *Session {
	return &Session{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.cfg.GatewayMailboxSize),
		done:     make(chan struct{}),
		log:      logger,
		servers:  make(map[uuid.UUID]struct{}),
		channels: make(map[uuid.UUID]uuid.UUID),
	}
}

// closeSend signals the session's write loop to stop. It is safe to call from multiple goroutines; only the first
// call has any effect.
func (s *Session) closeSend() {
	s.closeOnce.Do(func() { close(s.done) })
}

// UserID returns the authenticated user ID, or uuid.Nil before Identify.
func (s *Session) UserID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// IsIdentified reports whether the session has completed authentication.
func (s *Session) IsIdentified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identified
}

// readPump reads frames from the WebSocket connection and routes them by type tag. It runs in its own goroutine and
// is responsible for closing the connection and notifying the Hub when the read loop exits. Malformed frames and
// unknown tags are ignored; only a transport error ends the session.
func (s *Session) readPump() {
	defer func() {
		s.hub.sessionClosed(s)
		s.closeSend()
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Debug().Err(err).Msg("Ignoring malformed frame")
			continue
		}

		switch frame.Type {
		case tagPing:
			s.enqueue(encodePong())
		case tagIdentify:
			var payload identifyPayload
			if err := json.Unmarshal(frame.Payload, &payload); err != nil {
				s.log.Debug().Err(err).Msg("Ignoring malformed Identify payload")
				continue
			}
			s.hub.handleIdentify(s, payload.Bearer)
		default:
			// Any other frame is ignored.
		}
	}
}

// writePump writes frames from the send channel to the WebSocket connection. It runs in its own goroutine and exits
// when done is closed. Any frames remaining in the send buffer are drained before returning.
func (s *Session) writePump() {
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-s.done:
			for {
				select {
				case msg := <-s.send:
					_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// enqueue appends a frame to the session's outbound mailbox. If the session has already been shut down the frame is
// silently dropped. If the mailbox is full the session is treated as failed: the frame is dropped and the connection
// closed so a stuck client cannot pin Hub memory.
func (s *Session) enqueue(msg []byte) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.send <- msg:
	case <-s.done:
	default:
		s.log.Warn().Msg("Session mailbox full, closing connection")
		s.closeSend()
		_ = s.conn.Close()
	}
}

// evict closes the session on the Hub's initiative (duplicate identify or shutdown).
func (s *Session) evict() {
	s.closeSend()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session displaced")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = s.conn.Close()
}

// applyReady installs the entitlement sets computed by the Hub during Identify and emits the Ready frame.
func (s *Session) applyReady(userID uuid.UUID, servers []*server.Server, channels []*channel.Channel) {
	s.mu.Lock()
	s.userID = userID
	s.identified = true
	s.servers = make(map[uuid.UUID]struct{}, len(servers))
	s.channels = make(map[uuid.UUID]uuid.UUID, len(channels))
	for _, srv := range servers {
		s.servers[srv.ID] = struct{}{}
	}
	for _, ch := range channels {
		s.channels[ch.ID] = ch.ServerID
	}
	s.mu.Unlock()

	frame, err := encodeReady()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode Ready frame")
		return
	}
	s.enqueue(frame)
}

// deliverData emits a pre-serialized frame if the session is entitled to the given channel.
func (s *Session) deliverData(raw []byte, channelID uuid.UUID) {
	s.mu.RLock()
	_, ok := s.channels[channelID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.enqueue(raw)
}

// deliverAddChannel records the new channel and always emits.
func (s *Session) deliverAddChannel(ch *channel.Channel) {
	s.mu.Lock()
	s.channels[ch.ID] = ch.ServerID
	s.mu.Unlock()

	frame, err := encodeNewChannel(ch)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode NewChannel frame")
		return
	}
	s.enqueue(frame)
}

// deliverAddServer records the new server and its channels and always emits.
func (s *Session) deliverAddServer(srv *server.Server, channels []*channel.Channel, users []*user.User) {
	s.mu.Lock()
	s.servers[srv.ID] = struct{}{}
	for _, ch := range channels {
		s.channels[ch.ID] = ch.ServerID
	}
	s.mu.Unlock()

	frame, err := encodeNewServer(srv, channels, users)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode NewServer frame")
		return
	}
	s.enqueue(frame)
}

// deliverAddUser emits only if the session is entitled to the server the user joined.
func (s *Session) deliverAddUser(serverID uuid.UUID, u *user.User) {
	if !s.hasServer(serverID) {
		return
	}
	frame, err := encodeNewUser(serverID, u)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode NewUser frame")
		return
	}
	s.enqueue(frame)
}

// deliverDeleteUser emits only if the session is entitled to the affected server.
func (s *Session) deliverDeleteUser(serverID, userID uuid.UUID) {
	if !s.hasServer(serverID) {
		return
	}
	frame, err := encodeDeleteUser(serverID, userID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode DeleteUser frame")
		return
	}
	s.enqueue(frame)
}

// deliverDeleteServer emits only if the session is entitled to the server, then drops the server and every channel
// belonging to it from the entitlement caches so later channel-scoped deliveries are rejected.
func (s *Session) deliverDeleteServer(serverID uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.servers[serverID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.servers, serverID)
	for chID, srvID := range s.channels {
		if srvID == serverID {
			delete(s.channels, chID)
		}
	}
	s.mu.Unlock()

	frame, err := encodeDeleteServer(serverID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode DeleteServer frame")
		return
	}
	s.enqueue(frame)
}

// deliverDeleteChannel emits only if the session is entitled to the channel, then drops it from the cache.
func (s *Session) deliverDeleteChannel(channelID uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.channels[channelID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.channels, channelID)
	s.mu.Unlock()

	frame, err := encodeDeleteChannel(channelID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode DeleteChannel frame")
		return
	}
	s.enqueue(frame)
}

// deliverUpdateServer emits only if the session is entitled to the server.
func (s *Session) deliverUpdateServer(srv *server.Server) {
	if !s.hasServer(srv.ID) {
		return
	}
	frame, err := encodeUpdateServer(srv)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode UpdateServer frame")
		return
	}
	s.enqueue(frame)
}

// deliverUpdateChannel emits only if the session is entitled to the channel.
func (s *Session) deliverUpdateChannel(ch *channel.Channel) {
	s.mu.RLock()
	_, ok := s.channels[ch.ID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	frame, err := encodeUpdateChannel(ch)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode UpdateChannel frame")
		return
	}
	s.enqueue(frame)
}

func (s *Session) hasServer(serverID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.servers[serverID]
	return ok
}
