package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uncord-chat/uncord-server/internal/auth"
	"github.com/uncord-chat/uncord-server/internal/channel"
	"github.com/uncord-chat/uncord-server/internal/config"
	"github.com/uncord-chat/uncord-server/internal/message"
	"github.com/uncord-chat/uncord-server/internal/server"
	"github.com/uncord-chat/uncord-server/internal/user"
)

// ErrMaxConnections is returned when the Hub is at its configured connection limit.
var ErrMaxConnections = errors.New("maximum connections reached")

// storeQueryTimeout bounds the store reads issued while handling a single identify or fan-out.
const storeQueryTimeout = 5 * time.Second

// Hub is the process-wide authority over which user has a live session. It translates broker events into per-session
// deliveries by querying the Store for current entitlements, and accepts asynchronous identify/close signals from
// Sessions. The by-user map is owned exclusively by the Hub; Sessions reach it only through Hub methods.
type Hub struct {
	clients map[uuid.UUID]*Session
	mu      sync.RWMutex
	store   Store
	cfg     *config.Config
	log     zerolog.Logger
}

// NewHub creates a new gateway hub.
func NewHub(store Store, cfg *config.Config, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Session),
		store:   store,
		cfg:     cfg,
		log:     logger.With().Str("component", "gateway").Logger(),
	}
}

// ServeWebSocket runs a new Session for an upgraded WebSocket connection. A non-empty bearer short-circuits the
// Identify step, as if the client had sent Identify{bearer} as its first frame. Blocks until the connection closes.
func (h *Hub) ServeWebSocket(conn *websocket.Conn, bearer string) {
	session := newSession(h, conn, h.log)
	go session.writePump()
	if bearer != "" {
		h.handleIdentify(session, bearer)
	}
	session.readPump()
}

// handleIdentify authenticates a session's bearer token, loads the user's entitlement sets, and registers the
// session. An invalid token is ignored: the session stays open and unauthenticated, free to retry.
func (h *Hub) handleIdentify(session *Session, bearer string) {
	claims, err := auth.ValidateAccessToken(bearer, h.cfg.Application.JWTSecret)
	if err != nil {
		h.log.Debug().Err(err).Msg("Identify token validation failed")
		return
	}
	userID, err := uuid.Parse(claims.Sub)
	if err != nil {
		h.log.Debug().Err(err).Msg("Identify token carried an invalid subject")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
	defer cancel()

	servers, err := h.store.ServersOfUser(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("user_id", userID).Msg("Failed to load servers for identify")
		return
	}
	channels, err := h.store.ChannelsOfUser(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("user_id", userID).Msg("Failed to load channels for identify")
		return
	}

	if err := h.register(userID, session); err != nil {
		h.log.Warn().Err(err).Stringer("user_id", userID).Msg("Failed to register session")
		session.evict()
		return
	}

	session.applyReady(userID, servers, channels)
	h.log.Info().Stringer("user_id", userID).Msg("Session identified")
}

// register installs the session as the live one for the user. A prior session for the same user is evicted first; a
// re-register of the same handle is an idempotent no-op.
func (h *Hub) register(userID uuid.UUID, session *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[userID]; ok {
		if existing == session {
			return nil
		}
		h.log.Debug().Stringer("user_id", userID).Msg("Displacing existing session")
		existing.evict()
	} else if len(h.clients) >= h.cfg.GatewayMaxConnections {
		return ErrMaxConnections
	}

	h.clients[userID] = session
	h.log.Debug().Stringer("user_id", userID).Int("total", len(h.clients)).Msg("Session registered")
	return nil
}

// sessionClosed removes the session from the by-user map, but only if the currently mapped handle is the caller.
// An out-of-order close from a displaced session must not erase its replacement, and a second close is a no-op.
func (h *Hub) sessionClosed(session *Session) {
	if !session.IsIdentified() {
		return
	}
	userID := session.UserID()

	h.mu.Lock()
	current, ok := h.clients[userID]
	if ok && current == session {
		delete(h.clients, userID)
	}
	h.mu.Unlock()

	if ok && current == session {
		h.log.Debug().Stringer("user_id", userID).Msg("Session unregistered")
	}
}

// Dispatch fans one broker event out to the entitled sessions. Store failures abort only the current fan-out; the
// consumer acknowledges the event either way and moves on.
func (h *Hub) Dispatch(ctx context.Context, ev *Event) {
	switch {
	case ev.NewChannel != nil:
		h.fanOutNewChannel(ctx, ev.NewChannel)
	case ev.NewServer != nil:
		h.fanOutNewServer(ctx, ev.NewServer)
	case ev.UserJoined != nil:
		h.fanOutUserJoined(ctx, ev.UserJoined)
	case ev.UserLeft != nil:
		h.fanOutUserLeft(ctx, ev.UserLeft)
	case ev.DeleteServer != nil:
		h.fanOutDeleteServer(ev.DeleteServer)
	case ev.DeleteChannel != nil:
		h.fanOutDeleteChannel(ctx, ev.DeleteChannel)
	case ev.UpdateServer != nil:
		h.fanOutUpdateServer(ctx, ev.UpdateServer)
	case ev.UpdateChannel != nil:
		h.fanOutUpdateChannel(ctx, ev.UpdateChannel)
	case ev.NewMessage != nil:
		h.fanOutMessage(ctx, ev.NewMessage.MessageID, ev.NewMessage.ChannelID, encodeNewMessage)
	case ev.UpdateMessage != nil:
		h.fanOutMessage(ctx, ev.UpdateMessage.MessageID, ev.UpdateMessage.ChannelID, encodeUpdateMessage)
	default:
		h.log.Warn().Msg("Dispatch called with an empty event envelope")
	}
}

// fanOutNewChannel loads the channel and delivers AddChannel to every member of its server with a live session.
func (h *Hub) fanOutNewChannel(ctx context.Context, ev *NewChannelEvent) {
	ch, err := h.store.ChannelByID(ctx, ev.ChannelID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("channel_id", ev.ChannelID).Msg("Failed to load channel for fan-out")
		return
	}
	members, err := h.store.MembersOfServer(ctx, ch.ServerID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", ch.ServerID).Msg("Failed to load members for fan-out")
		return
	}
	for _, session := range h.liveSessions(members) {
		session.deliverAddChannel(ch)
	}
}

// fanOutNewServer delivers AddServer to the owner's session, if live.
func (h *Hub) fanOutNewServer(ctx context.Context, ev *NewServerEvent) {
	session := h.sessionFor(ev.UserID)
	if session == nil {
		return
	}
	srv, channels, users, err := h.loadServerBundle(ctx, ev.ServerID)
	if err != nil {
		return
	}
	session.deliverAddServer(srv, channels, users)
}

// fanOutUserJoined delivers AddServer to the joining user's session and AddUser to every other member's session.
func (h *Hub) fanOutUserJoined(ctx context.Context, ev *UserJoinedEvent) {
	srv, channels, users, err := h.loadServerBundle(ctx, ev.ServerID)
	if err != nil {
		return
	}

	var joined *user.User
	for _, u := range users {
		if u.ID == ev.UserID {
			joined = u
			break
		}
	}

	if session := h.sessionFor(ev.UserID); session != nil {
		session.deliverAddServer(srv, channels, users)
	}

	if joined == nil {
		h.log.Warn().Stringer("user_id", ev.UserID).Msg("Joined user missing from member list")
		return
	}
	for _, u := range users {
		if u.ID == ev.UserID {
			continue
		}
		if session := h.sessionFor(u.ID); session != nil {
			session.deliverAddUser(ev.ServerID, joined)
		}
	}
}

// fanOutUserLeft delivers DeleteServer to the departing user's session and DeleteUser to every remaining member's
// session. The membership row is already gone, so the remaining members are exactly what the store returns.
func (h *Hub) fanOutUserLeft(ctx context.Context, ev *UserLeftEvent) {
	if session := h.sessionFor(ev.UserID); session != nil {
		session.deliverDeleteServer(ev.ServerID)
	}

	members, err := h.store.MembersOfServer(ctx, ev.ServerID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", ev.ServerID).Msg("Failed to load members for fan-out")
		return
	}
	for _, session := range h.liveSessions(members) {
		if session.UserID() == ev.UserID {
			continue
		}
		session.deliverDeleteUser(ev.ServerID, ev.UserID)
	}
}

// fanOutDeleteServer broadcasts DeleteServer to every live session. The member list is unrecoverable after the
// cascade delete, so each session's own entitlement cache decides whether the client sees the event.
func (h *Hub) fanOutDeleteServer(ev *DeleteServerEvent) {
	for _, session := range h.allSessions() {
		session.deliverDeleteServer(ev.ServerID)
	}
}

// fanOutDeleteChannel delivers DeleteChannel to every member of the channel's former server with a live session.
func (h *Hub) fanOutDeleteChannel(ctx context.Context, ev *DeleteChannelEvent) {
	members, err := h.store.MembersOfServer(ctx, ev.ServerID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", ev.ServerID).Msg("Failed to load members for fan-out")
		return
	}
	for _, session := range h.liveSessions(members) {
		session.deliverDeleteChannel(ev.ChannelID)
	}
}

// fanOutUpdateServer loads the renamed server and delivers UpdateServer to every member with a live session.
func (h *Hub) fanOutUpdateServer(ctx context.Context, ev *UpdateServerEvent) {
	srv, err := h.store.ServerByID(ctx, ev.ServerID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", ev.ServerID).Msg("Failed to load server for fan-out")
		return
	}
	members, err := h.store.MembersOfServer(ctx, ev.ServerID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", ev.ServerID).Msg("Failed to load members for fan-out")
		return
	}
	for _, session := range h.liveSessions(members) {
		session.deliverUpdateServer(srv)
	}
}

// fanOutUpdateChannel loads the renamed channel and delivers UpdateChannel to every member of its server with a
// live session.
func (h *Hub) fanOutUpdateChannel(ctx context.Context, ev *UpdateChannelEvent) {
	ch, err := h.store.ChannelByID(ctx, ev.ChannelID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("channel_id", ev.ChannelID).Msg("Failed to load channel for fan-out")
		return
	}
	members, err := h.store.MembersOfServer(ctx, ch.ServerID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", ch.ServerID).Msg("Failed to load members for fan-out")
		return
	}
	for _, session := range h.liveSessions(members) {
		session.deliverUpdateChannel(ch)
	}
}

// fanOutMessage serializes the message once and broadcasts the raw frame to every live session; each session's
// channel filter drops it for clients without access. Broadcast-with-filter trades O(sessions) sends for one fewer
// membership query per message.
func (h *Hub) fanOutMessage(ctx context.Context, messageID, channelID uuid.UUID, encode func(*message.Message) ([]byte, error)) {
	m, err := h.store.MessageByID(ctx, messageID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("message_id", messageID).Msg("Failed to load message for fan-out")
		return
	}
	raw, err := encode(m)
	if err != nil {
		h.log.Error().Err(err).Stringer("message_id", messageID).Msg("Failed to encode message frame")
		return
	}
	for _, session := range h.allSessions() {
		session.deliverData(raw, channelID)
	}
}

// loadServerBundle loads the server with its channels and members, the payload of an AddServer delivery.
func (h *Hub) loadServerBundle(ctx context.Context, serverID uuid.UUID) (*server.Server, []*channel.Channel, []*user.User, error) {
	srv, err := h.store.ServerByID(ctx, serverID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", serverID).Msg("Failed to load server for fan-out")
		return nil, nil, nil, err
	}
	channels, err := h.store.ChannelsOfServer(ctx, serverID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", serverID).Msg("Failed to load channels for fan-out")
		return nil, nil, nil, err
	}
	users, err := h.store.MembersOfServer(ctx, serverID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("server_id", serverID).Msg("Failed to load members for fan-out")
		return nil, nil, nil, err
	}
	return srv, channels, users, nil
}

// sessionFor returns the live session for the user, or nil.
func (h *Hub) sessionFor(userID uuid.UUID) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// liveSessions returns the sessions of the given users that are currently connected.
func (h *Hub) liveSessions(users []*user.User) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*Session, 0, len(users))
	for _, u := range users {
		if session, ok := h.clients[u.ID]; ok {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// allSessions snapshots every live session.
func (h *Hub) allSessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*Session, 0, len(h.clients))
	for _, session := range h.clients {
		sessions = append(sessions, session)
	}
	return sessions
}

// SessionCount returns the number of currently registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown evicts every session. New connections should already have been stopped by the caller.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, session := range h.clients {
		session.evict()
		delete(h.clients, userID)
	}
	h.log.Info().Msg("Gateway hub shut down")
}
