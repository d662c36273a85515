package server

import (
	"strings"
	"time"

	"freightdesk/internal/models"
	"freightdesk/internal/repository"
	"freightdesk/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RegisterEntityRequest is the payload for registering a record with the
// review workflow.
type RegisterEntityRequest struct {
	EntityID string `json:"entity_id"`
}

// TransitionRequestBody is the payload for applying one transition.
type TransitionRequestBody struct {
	Transition string `json:"transition"`
	Reason     string `json:"reason,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// RegisterEntity handles POST /api/workflow/:kind/entities. The entity enters
// the workflow in status pending, enabled, version 1.
func (s *Server) RegisterEntity(c *fiber.Ctx) error {
	kind, err := s.parseKind(c)
	if err != nil {
		return nil
	}
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	var req RegisterEntityRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("invalid request body"))
	}

	entity, svcErr := s.workflowService.Register(c.UserContext(), kind, req.EntityID, actor)
	if svcErr != nil {
		return models.RespondWithError(c, svcErr)
	}

	return c.Status(fiber.StatusCreated).JSON(entity)
}

// ApplyTransition handles POST /api/workflow/:kind/entities/:id/transitions.
// The server re-derives legality from stored state and the actor's
// capabilities; nothing the client asserts about either is trusted.
func (s *Server) ApplyTransition(c *fiber.Ctx) error {
	kind, err := s.parseKind(c)
	if err != nil {
		return nil
	}
	entityID, err := s.parseEntityID(c)
	if err != nil {
		return nil
	}
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	var req TransitionRequestBody
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewValidationError("invalid request body"))
	}

	transitionKind, ok := models.ParseTransitionKind(req.Transition)
	if !ok {
		return models.RespondWithError(c,
			models.NewValidationError("unknown transition "+req.Transition))
	}

	entity, svcErr := s.workflowService.Apply(c.UserContext(), kind, entityID, service.TransitionInput{
		Kind:   transitionKind,
		Reason: req.Reason,
		Notes:  req.Notes,
		Actor:  actor,
	})
	if svcErr != nil {
		return models.RespondWithError(c, svcErr)
	}

	return c.JSON(entity)
}

// GetEntity handles GET /api/workflow/:kind/entities/:id.
func (s *Server) GetEntity(c *fiber.Ctx) error {
	kind, err := s.parseKind(c)
	if err != nil {
		return nil
	}
	entityID, err := s.parseEntityID(c)
	if err != nil {
		return nil
	}

	entity, svcErr := s.workflowService.Get(c.UserContext(), kind, entityID)
	if svcErr != nil {
		return models.RespondWithError(c, svcErr)
	}
	return c.JSON(entity)
}

// ListEntities handles GET /api/workflow/:kind/entities with optional status
// and disabled filters.
func (s *Server) ListEntities(c *fiber.Ctx) error {
	kind, err := s.parseKind(c)
	if err != nil {
		return nil
	}

	pagination := parsePagination(c, 50)
	input := service.ListInput{
		Limit:  pagination.Limit,
		Offset: pagination.Offset,
	}

	if raw := c.Query("status"); raw != "" {
		status := models.ApprovalStatus(strings.ToLower(raw))
		if !status.Valid() {
			return models.RespondWithError(c,
				models.NewValidationError("unknown approval status "+raw))
		}
		input.Status = &status
	}
	if raw := c.Query("disabled"); raw != "" {
		disabled := raw == "true" || raw == "1"
		input.Disabled = &disabled
	}

	entities, svcErr := s.workflowService.List(c.UserContext(), kind, input)
	if svcErr != nil {
		return models.RespondWithError(c, svcErr)
	}

	return c.JSON(fiber.Map{
		"entities": entities,
		"count":    len(entities),
		"limit":    pagination.Limit,
		"offset":   pagination.Offset,
	})
}

// GetEntityAudit handles GET /api/workflow/:kind/entities/:id/audit and
// returns the entity's complete history, oldest first.
func (s *Server) GetEntityAudit(c *fiber.Ctx) error {
	kind, err := s.parseKind(c)
	if err != nil {
		return nil
	}
	entityID, err := s.parseEntityID(c)
	if err != nil {
		return nil
	}

	records, svcErr := s.workflowService.AuditTrail(c.UserContext(), repository.AuditFilter{
		EntityKind: kind,
		EntityID:   entityID,
	})
	if svcErr != nil {
		return models.RespondWithError(c, svcErr)
	}

	return c.JSON(fiber.Map{
		"records": records,
		"count":   len(records),
	})
}

// QueryAudit handles GET /api/audit with optional kind, action, actor and
// time-window filters for compliance review.
func (s *Server) QueryAudit(c *fiber.Ctx) error {
	pagination := parsePagination(c, 50)
	filter := repository.AuditFilter{
		EntityID: c.Query("entity_id"),
		ActorID:  c.Query("actor_id"),
		Limit:    pagination.Limit,
		Offset:   pagination.Offset,
	}

	if raw := c.Query("kind"); raw != "" {
		kind := models.EntityKind(strings.ToLower(raw))
		if !kind.Valid() {
			return models.RespondWithError(c,
				models.NewValidationError("unknown entity kind "+raw))
		}
		filter.EntityKind = kind
	}
	if raw := c.Query("action"); raw != "" {
		action := models.AuditAction(strings.ToLower(raw))
		if !action.Valid() {
			return models.RespondWithError(c,
				models.NewValidationError("unknown audit action "+raw))
		}
		filter.Action = action
	}
	if raw := c.Query("from"); raw != "" {
		from, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return models.RespondWithError(c,
				models.NewValidationError("from must be RFC3339"))
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return models.RespondWithError(c,
				models.NewValidationError("to must be RFC3339"))
		}
		filter.To = to
	}

	records, svcErr := s.workflowService.AuditTrail(c.UserContext(), filter)
	if svcErr != nil {
		return models.RespondWithError(c, svcErr)
	}

	return c.JSON(fiber.Map{
		"records": records,
		"count":   len(records),
		"limit":   pagination.Limit,
		"offset":  pagination.Offset,
	})
}
