package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewatch/gatewatch/service/ws"
)

func dialTestHub(t *testing.T, hub *ws.Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(handleWebSocket(hub, testLogger()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func TestHandleWebSocket(t *testing.T) {
	hub := ws.NewHub(30*time.Second, 15*time.Second, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialTestHub(t, hub)

	// The hub greets every new subscriber before any activity flows.
	var welcome ws.Envelope
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, ws.MessageTypeConnection, welcome.Type)
	assert.False(t, welcome.Timestamp.IsZero())

	t.Run("answers application-level ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

		var reply ws.Envelope
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, ws.MessageTypePong, reply.Type)
		assert.False(t, reply.Timestamp.IsZero())
	})

	t.Run("delivers broadcasts", func(t *testing.T) {
		hub.Broadcast(ws.MessageTypeActivityCreated, map[string]string{"activity_id": "a1"})

		var envelope ws.Envelope
		require.NoError(t, conn.ReadJSON(&envelope))
		assert.Equal(t, ws.MessageTypeActivityCreated, envelope.Type)
	})
}

func TestHandleWebSocket_SilentConnectionClosed(t *testing.T) {
	// A tight heartbeat so the test observes the deadline instead of waiting
	// for the production 45 seconds.
	hub := ws.NewHub(50*time.Millisecond, 50*time.Millisecond, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialTestHub(t, hub)
	// Swallow protocol pings so the server never hears a pong back.
	conn.SetPingHandler(func(string) error { return nil })

	var welcome ws.Envelope
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, ws.MessageTypeConnection, welcome.Type)

	// Past interval+grace the server gives up on us and closes the
	// connection. The client's own read deadline is 2s, so a read error well
	// before that means the server hung up, not us.
	start := time.Now()
	var msg ws.Envelope
	err := conn.ReadJSON(&msg)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 1500*time.Millisecond,
		"server kept a silent connection alive past the grace window")
}
