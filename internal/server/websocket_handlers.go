package server

import (
	"encoding/json"
	"log"
	"strings"

	"freightdesk/internal/featureflags"
	"freightdesk/internal/middleware"
	"freightdesk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketChangesHandler handles GET /api/ws/changes?kind=carrier|dispatch.
// Each connection subscribes to exactly one entity kind and receives the
// dirty-signal events published after committed transitions. Clients must
// treat every event as "re-fetch the affected list": delivery is
// at-least-once, ordering is not guaranteed, and events missed during a
// reconnect are never replayed.
func (s *Server) WebSocketChangesHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		actorID, _ := conn.Locals(middleware.LocalActorID).(string)
		if actorID == "" {
			log.Printf("WebSocket changes: unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		if !s.featureFlags.Enabled(featureflags.FlagLiveChanges, actorID) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"live changes are not enabled"}`))
			_ = conn.Close()
			return
		}

		kind := models.EntityKind(strings.ToLower(conn.Query("kind")))
		if !kind.Valid() {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"kind must be carrier or dispatch"}`))
			_ = conn.Close()
			return
		}

		if s.changeHub == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"change stream unavailable"}`))
			_ = conn.Close()
			return
		}

		client, err := s.changeHub.Register(actorID, kind, conn)
		if err != nil {
			log.Printf("WebSocket changes: failed to register actor %s: %v", actorID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		log.Printf("WebSocket: actor %s subscribed to %s changes", actorID, kind)

		// Confirm the subscription so the client knows which kind it is bound
		// to before any events arrive.
		if welcome, err := json.Marshal(fiber.Map{
			"type":        "subscribed",
			"entity_kind": kind,
		}); err == nil {
			client.TrySend(welcome)
		}

		// Write pump in a goroutine; read pump blocks in the handler and
		// unregisters the client on disconnect.
		go client.WritePump()
		client.ReadPump()
	})
}
