// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"errors"
	"strings"

	"freightdesk/internal/middleware"
	"freightdesk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseKind extracts the entity kind route parameter. On failure it writes a
// 422 JSON response and returns errResponseWritten; callers should then
// return nil.
func (s *Server) parseKind(c *fiber.Ctx) (models.EntityKind, error) {
	kind := models.EntityKind(strings.ToLower(c.Params("kind")))
	if !kind.Valid() {
		_ = models.RespondWithError(c,
			models.NewValidationError("unknown entity kind "+c.Params("kind")))
		return "", errResponseWritten
	}
	return kind, nil
}

// parseEntityID extracts the entity ID route parameter.
func (s *Server) parseEntityID(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		_ = models.RespondWithError(c, models.NewValidationError("entity ID is required"))
		return "", errResponseWritten
	}
	return id, nil
}

// requireActor reconstructs the authenticated actor from locals. The auth
// middleware guarantees it exists on protected routes; a miss means the route
// was wired without AuthRequired.
func (s *Server) requireActor(c *fiber.Ctx) (models.Actor, error) {
	actor, ok := middleware.ActorFromLocals(c)
	if !ok {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization required",
		})
		return models.Actor{}, errResponseWritten
	}
	return actor, nil
}
