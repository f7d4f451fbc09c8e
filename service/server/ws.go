package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gatewatch/gatewatch/service/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is already wide open on the REST surface; the subscription feed
	// carries no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and attaches it to the hub.
// GET /api/v1/ws
func handleWebSocket(hub *ws.Hub, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := ws.NewClient(hub, conn, logger)
		client.Start()
	})
}
