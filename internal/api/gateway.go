package api

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"

	"github.com/uncord-chat/uncord-server/internal/gateway"
)

// GatewayHandler serves the WebSocket upgrade endpoint for the real-time gateway.
type GatewayHandler struct {
	hub *gateway.Hub
}

// NewGatewayHandler creates a new gateway handler.
func NewGatewayHandler(hub *gateway.Hub) *GatewayHandler {
	return &GatewayHandler{hub: hub}
}

// Upgrade handles GET /gateway. It upgrades the HTTP connection to a WebSocket and hands it to the Hub. There is no
// pre-auth: authentication happens inside the WebSocket via an Identify frame, though a ?bearer= query parameter
// short-circuits that step by synthesizing an immediate Identify on connection.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.hub.ServeWebSocket(conn.Conn, conn.Query("bearer"))
	})(c)
}
