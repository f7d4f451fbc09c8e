package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gatewatch/gatewatch/service/metrics"
)

// Message types for the subscription protocol.
const (
	MessageTypeConnection        = "connection"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeActivityCreated   = "activity:created"
	MessageTypeActivityUpdated   = "activity:updated"
	MessageTypeActivityConfirmed = "activity:confirmed"
	MessageTypeActivityFailed    = "activity:failed"
)

// Envelope is the wire format for every message sent to a subscriber.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEnvelope wraps data in an Envelope stamped with the current time.
func NewEnvelope(messageType string, data interface{}) Envelope {
	return Envelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Hub owns the set of active subscribers. All state lives inside the Run
// goroutine; registration, removal and broadcasts arrive over channels, so
// delivery order to each subscriber matches the order Broadcast was called in
// and no lock is needed.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan Envelope
	done       chan struct{}

	heartbeatInterval time.Duration
	heartbeatGrace    time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub. Heartbeat timing applies to every client attached to
// this hub: pings go out every heartbeatInterval and a connection that stays
// silent for heartbeatInterval+heartbeatGrace is considered dead.
func NewHub(heartbeatInterval, heartbeatGrace time.Duration, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		broadcast:         make(chan Envelope, 256),
		done:              make(chan struct{}),
		heartbeatInterval: heartbeatInterval,
		heartbeatGrace:    heartbeatGrace,
		logger:            logger,
		metrics:           m,
	}
}

// Run executes the owning loop until ctx is cancelled, then closes every
// remaining subscriber.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*Client]bool)

	for {
		select {
		case <-ctx.Done():
			for client := range clients {
				close(client.send)
				delete(clients, client)
			}
			// Unblocks any pump that tries to attach or detach after the
			// loop has exited.
			close(h.done)
			h.logger.Info("subscription hub stopped", "reason", ctx.Err())
			return

		case client := <-h.register:
			clients[client] = true
			if h.metrics != nil {
				h.metrics.RecordWSConnectionChange(1)
			}
			h.logger.Info("subscriber connected", "total_clients", len(clients))

			// Welcome message so the client knows the subscription is live
			// before any activity arrives.
			select {
			case client.send <- NewEnvelope(MessageTypeConnection, map[string]string{"status": "connected"}):
			default:
			}

		case client := <-h.unregister:
			if _, ok := clients[client]; ok {
				delete(clients, client)
				close(client.send)
				if h.metrics != nil {
					h.metrics.RecordWSConnectionChange(-1)
				}
				h.logger.Info("subscriber disconnected", "total_clients", len(clients))
			}

		case envelope := <-h.broadcast:
			for client := range clients {
				select {
				case client.send <- envelope:
					if h.metrics != nil {
						h.metrics.RecordWSEventSent(envelope.Type)
					}
				default:
					// Subscriber is not draining its queue; evict it rather
					// than let one slow consumer stall the rest.
					delete(clients, client)
					close(client.send)
					if h.metrics != nil {
						h.metrics.RecordWSConnectionChange(-1)
						h.metrics.RecordWSClientDropped("slow_consumer")
					}
					h.logger.Warn("evicted slow subscriber", "total_clients", len(clients))
				}
			}
		}
	}
}

// Broadcast queues an envelope for delivery to every subscriber. It never
// blocks the caller; if the hub's queue is full the envelope is dropped with
// a warning. Live delivery is best effort, the store is the source of truth.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	envelope := NewEnvelope(messageType, data)
	select {
	case h.broadcast <- envelope:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "message_type", messageType)
	}
}
