package notifications

import (
	"context"
	"errors"
	"log"
	"sync"

	"freightdesk/internal/models"
	"freightdesk/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per actor
	maxConnsPerActor = 8
	// Max total connections
	maxTotalConns = 10000
)

// ChangeHub fans dirty-signal events out to dashboard websocket sessions.
// Each client subscribes to exactly one entity kind; events for the other
// kind are never delivered to it, so a dispatch dashboard is not woken up by
// carrier traffic.
type ChangeHub struct {
	mu         sync.RWMutex
	conns      map[*Client]models.EntityKind
	perActor   map[string]int
	totalConns int
	shutdown   chan struct{}
	done       chan struct{}
	wsLog      *observability.WSLogger
}

// NewChangeHub creates a new hub for managing change-stream subscribers.
func NewChangeHub() *ChangeHub {
	return &ChangeHub{
		conns:    make(map[*Client]models.EntityKind),
		perActor: make(map[string]int),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		wsLog:    observability.NewWSLogger("change_hub"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *ChangeHub) Name() string { return "change hub" }

// Register adds a subscriber for the given entity kind. Returns the Client or
// an error if connection limits are exceeded.
func (h *ChangeHub) Register(actorID string, kind models.EntityKind, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}
	if h.perActor[actorID] >= maxConnsPerActor {
		return nil, errors.New("actor connection limit reached")
	}

	client := NewClient(h, conn, actorID)
	h.conns[client] = kind
	h.perActor[actorID]++
	h.totalConns++

	h.wsLog.LogConnect(context.Background(), actorID, string(kind))
	return client, nil
}

// UnregisterClient removes a subscriber from the hub.
func (h *ChangeHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kind, ok := h.conns[client]
	if !ok {
		return
	}
	delete(h.conns, client)
	h.totalConns--
	h.wsLog.LogDisconnect(context.Background(), client.ActorID, string(kind), "connection closed")
	if h.perActor[client.ActorID] > 1 {
		h.perActor[client.ActorID]--
	} else {
		delete(h.perActor, client.ActorID)
	}
}

// Broadcast sends the payload to every client subscribed to the given kind.
// Kind filtering is exact; there is no wildcard subscription.
func (h *ChangeHub) Broadcast(kind models.EntityKind, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client, subscribed := range h.conns {
		if subscribed == kind {
			client.TrySend(payload)
		}
	}
}

// SubscriberCount returns the number of active subscribers for a kind.
func (h *ChangeHub) SubscriberCount(kind models.EntityKind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, subscribed := range h.conns {
		if subscribed == kind {
			count++
		}
	}
	return count
}

// StartWiring connects the Notifier to this hub: it subscribes to the Redis
// change pattern and forwards each event to subscribers of the matching kind.
func (h *ChangeHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		kind, ok := KindFromChannel(channel)
		if !ok {
			log.Printf("invalid change channel: %s", channel)
			return
		}
		h.Broadcast(kind, []byte(payload))
	})
}

// Shutdown gracefully closes all websocket connections
func (h *ChangeHub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	for client := range h.conns {
		if client.Conn == nil {
			continue
		}
		if err := client.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
			log.Printf("failed to write close message for actor %s: %v", client.ActorID, err)
		}
		if err := client.Conn.Close(); err != nil {
			log.Printf("failed to close websocket for actor %s: %v", client.ActorID, err)
		}
	}
	h.conns = make(map[*Client]models.EntityKind)
	h.perActor = make(map[string]int)
	h.totalConns = 0
	h.mu.Unlock()

	close(h.done)

	return nil
}
