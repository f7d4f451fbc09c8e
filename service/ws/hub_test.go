package ws

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHub(30*time.Second, 15*time.Second, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

// attach registers a bare client with the hub without starting the pumps, so
// tests can read envelopes straight off the send queue.
func attach(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := NewClient(h, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept registration")
	}
	return c
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case envelope, ok := <-c.send:
		require.True(t, ok, "send queue closed unexpectedly")
		return envelope
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func TestHub_WelcomeOnConnect(t *testing.T) {
	h := newTestHub(t)
	c := attach(t, h)

	envelope := receive(t, c)
	assert.Equal(t, MessageTypeConnection, envelope.Type)
	assert.False(t, envelope.Timestamp.IsZero())
}

func TestHub_BroadcastOrderPerSubscriber(t *testing.T) {
	h := newTestHub(t)
	c := attach(t, h)
	receive(t, c) // welcome

	h.Broadcast(MessageTypeActivityCreated, map[string]string{"activity_id": "a1"})
	h.Broadcast(MessageTypeActivityConfirmed, map[string]string{"activity_id": "a1"})
	h.Broadcast(MessageTypeActivityCreated, map[string]string{"activity_id": "a2"})

	assert.Equal(t, MessageTypeActivityCreated, receive(t, c).Type)
	assert.Equal(t, MessageTypeActivityConfirmed, receive(t, c).Type)
	assert.Equal(t, MessageTypeActivityCreated, receive(t, c).Type)
}

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	h := newTestHub(t)
	c1 := attach(t, h)
	c2 := attach(t, h)
	receive(t, c1)
	receive(t, c2)

	h.Broadcast(MessageTypeActivityFailed, map[string]string{"activity_id": "a1"})

	assert.Equal(t, MessageTypeActivityFailed, receive(t, c1).Type)
	assert.Equal(t, MessageTypeActivityFailed, receive(t, c2).Type)
}

func TestHub_SlowSubscriberEvicted(t *testing.T) {
	h := newTestHub(t)

	slow := attach(t, h)
	receive(t, slow)

	// Fill the subscriber's queue without draining it.
	for i := 0; i < cap(slow.send)+1; i++ {
		h.Broadcast(MessageTypePing, nil)
	}

	// Eviction closes the send queue; drain until we observe the close.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-slow.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("slow subscriber was not evicted")
		}
	}
}

func TestHub_ShutdownClosesSubscribers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHub(30*time.Second, 15*time.Second, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := NewClient(h, nil, logger)
	h.register <- c
	receive(t, c)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	_, ok := <-c.send
	assert.False(t, ok, "send queue should be closed after shutdown")
}

func TestHub_DetachAfterShutdownDoesNotBlock(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHub(30*time.Second, 15*time.Second, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := NewClient(h, nil, logger)
	h.register <- c
	receive(t, c)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	// A pump that exits after the hub loop has returned must still be able
	// to hand the client back without blocking forever.
	detached := make(chan struct{})
	go func() {
		c.detach()
		close(detached)
	}()

	select {
	case <-detached:
	case <-time.After(time.Second):
		t.Fatal("detach blocked after hub shutdown")
	}
}
