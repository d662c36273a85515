package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strings"

	"freightdesk/internal/middleware"
	"freightdesk/internal/models"

	"github.com/redis/go-redis/v9"
)

const changeChannelPrefix = "workflow:changes:"

// ChangeEvent is the dirty-signal payload published after every committed
// transition. Subscribers must treat it as "re-fetch the affected list", not
// as authoritative state: events may arrive out of order, duplicated, or not
// at all across a reconnect, so the version field is advisory only.
type ChangeEvent struct {
	EntityKind models.EntityKind     `json:"entity_kind"`
	EntityID   string                `json:"entity_id"`
	Status     models.ApprovalStatus `json:"status"`
	Disabled   bool                  `json:"disabled"`
	Version    uint64                `json:"version"`
}

// ChangeChannel derives the Redis channel name for an entity kind.
func ChangeChannel(kind models.EntityKind) string {
	return changeChannelPrefix + string(kind)
}

// KindFromChannel extracts the entity kind from a change channel name.
func KindFromChannel(channel string) (models.EntityKind, bool) {
	if !strings.HasPrefix(channel, changeChannelPrefix) {
		return "", false
	}
	kind := models.EntityKind(strings.TrimPrefix(channel, changeChannelPrefix))
	if !kind.Valid() {
		return "", false
	}
	return kind, true
}

// Notifier provides helpers to publish change events into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishChange publishes a dirty-signal event to the entity kind's channel.
// A nil Redis client degrades to a no-op so single-node deployments without
// Redis still apply transitions; dashboards fall back to polling.
func (n *Notifier) PublishChange(ctx context.Context, event ChangeEvent) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := n.rdb.Publish(ctx, ChangeChannel(event.EntityKind), payload).Err(); err != nil {
		return err
	}
	middleware.ChangeEventsPublished.WithLabelValues(string(event.EntityKind)).Inc()
	return nil
}

// StartPatternSubscriber subscribes to pattern `workflow:changes:*` and calls
// onMessage for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, changeChannelPrefix+"*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in change subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
