// Package service contains the business logic orchestrating workflow transitions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"freightdesk/internal/cache"
	"freightdesk/internal/middleware"
	"freightdesk/internal/models"
	"freightdesk/internal/notifications"
	"freightdesk/internal/observability"
	"freightdesk/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ChangePublisher emits dirty-signal events after committed transitions.
type ChangePublisher interface {
	PublishChange(ctx context.Context, event notifications.ChangeEvent) error
}

// WorkflowService coordinates one transition end-to-end: snapshot read, state
// machine evaluation, conditional write plus audit append, then change event.
type WorkflowService struct {
	workflowRepo repository.WorkflowRepository
	auditRepo    repository.AuditRepository
	publisher    ChangePublisher
}

// NewWorkflowService creates a workflow service with its dependencies.
func NewWorkflowService(
	workflowRepo repository.WorkflowRepository,
	auditRepo repository.AuditRepository,
	publisher ChangePublisher,
) *WorkflowService {
	return &WorkflowService{
		workflowRepo: workflowRepo,
		auditRepo:    auditRepo,
		publisher:    publisher,
	}
}

// TransitionInput carries one reviewer decision from the transport layer.
type TransitionInput struct {
	Kind   models.TransitionKind
	Reason string
	Notes  string
	Actor  models.Actor
}

// ListInput narrows entity list reads for dashboard population.
type ListInput struct {
	Status   *models.ApprovalStatus
	Disabled *bool
	Limit    int
	Offset   int
}

// Apply executes one transition request. Expected business outcomes
// (Forbidden, InvalidState, ValidationFailed, Conflict, NotFound) come back
// as *models.AppError; only infrastructure faults are wrapped as storage
// errors. A Conflict is never retried here — only the caller knows whether
// re-applying the same human decision is still correct against the new state.
func (s *WorkflowService) Apply(ctx context.Context, kind models.EntityKind, entityID string, in TransitionInput) (*models.WorkflowEntity, error) {
	ctx, span := observability.StartSpan(ctx, "workflow.apply",
		attribute.String("entity.kind", string(kind)),
		attribute.String("entity.id", entityID),
		attribute.String("transition", string(in.Kind)),
	)
	defer span.End()

	if !kind.Valid() {
		return nil, models.NewValidationError("unknown entity kind " + string(kind))
	}

	entity, err := s.workflowRepo.GetByKindAndID(ctx, kind, entityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError(string(kind), entityID)
		}
		observability.RecordErrorInContext(ctx, err)
		return nil, models.NewStorageError(err)
	}

	decision, err := models.Evaluate(entity, models.TransitionRequest{
		Kind:   in.Kind,
		Reason: in.Reason,
		Notes:  in.Notes,
	}, in.Actor.Capabilities)
	if err != nil {
		if appErr, ok := models.AsAppError(err); ok {
			middleware.TransitionRejections.WithLabelValues(string(kind), appErr.Code).Inc()
		}
		return nil, err
	}

	// Repeated disable/enable leaves the entity untouched: no write, no
	// audit row, no version bump, no event.
	if decision.NoOp {
		return entity, nil
	}

	record := &models.AuditRecord{
		EntityKind: kind,
		EntityID:   entityID,
		Action:     decision.Action,
		ActorID:    in.Actor.ID,
		ActorRole:  in.Actor.Role,
		Notes:      in.Notes,
	}
	if decision.Action == models.ActionRejected {
		reason := strings.TrimSpace(in.Reason)
		record.RejectionReason = &reason
	}

	updated, err := s.workflowRepo.ApplyTransition(ctx, entity, decision, record)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			middleware.TransitionConflicts.WithLabelValues(string(kind)).Inc()
			return nil, models.NewConflictError("entity changed since it was read, review the latest state")
		}
		observability.RecordErrorInContext(ctx, err)
		return nil, models.NewStorageError(err)
	}

	middleware.TransitionsApplied.WithLabelValues(string(kind), string(decision.Action)).Inc()
	cache.InvalidateEntityLists(ctx, kind)
	s.publishChange(ctx, updated)

	return updated, nil
}

// Register creates the workflow shadow of a newly created business record.
// The owning carrier/dispatch subsystem calls this when the record is born;
// the entity starts pending, enabled, version 1, with a `created` audit row.
func (s *WorkflowService) Register(ctx context.Context, kind models.EntityKind, entityID string, actor models.Actor) (*models.WorkflowEntity, error) {
	if !kind.Valid() {
		return nil, models.NewValidationError("unknown entity kind " + string(kind))
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, models.NewValidationError("entity_id is required")
	}

	if _, err := s.workflowRepo.GetByKindAndID(ctx, kind, entityID); err == nil {
		return nil, models.NewConflictError(fmt.Sprintf("%s %s is already registered", kind, entityID))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewStorageError(err)
	}

	entity := &models.WorkflowEntity{
		EntityKind: kind,
		EntityID:   entityID,
	}
	if err := s.workflowRepo.Create(ctx, entity, actor); err != nil {
		return nil, models.NewStorageError(err)
	}

	cache.InvalidateEntityLists(ctx, kind)
	s.publishChange(ctx, entity)

	return entity, nil
}

// Get returns the current materialized state of one entity.
func (s *WorkflowService) Get(ctx context.Context, kind models.EntityKind, entityID string) (*models.WorkflowEntity, error) {
	if !kind.Valid() {
		return nil, models.NewValidationError("unknown entity kind " + string(kind))
	}
	entity, err := s.workflowRepo.GetByKindAndID(ctx, kind, entityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError(string(kind), entityID)
		}
		return nil, models.NewStorageError(err)
	}
	return entity, nil
}

// List returns entities of one kind for dashboard population, served through
// the short-lived cache that Apply invalidates on every committed transition.
func (s *WorkflowService) List(ctx context.Context, kind models.EntityKind, in ListInput) ([]*models.WorkflowEntity, error) {
	if !kind.Valid() {
		return nil, models.NewValidationError("unknown entity kind " + string(kind))
	}

	filter := repository.EntityFilter{
		Status:   in.Status,
		Disabled: in.Disabled,
		Limit:    in.Limit,
		Offset:   in.Offset,
	}

	var entities []*models.WorkflowEntity
	err := cache.Aside(ctx, cache.EntityListKey(kind, listCacheSuffix(in)), &entities, cache.EntityListTTL, func() error {
		var loadErr error
		entities, loadErr = s.workflowRepo.List(ctx, kind, filter)
		return loadErr
	})
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return entities, nil
}

// AuditTrail returns audit records matching the filter, oldest first.
func (s *WorkflowService) AuditTrail(ctx context.Context, filter repository.AuditFilter) ([]*models.AuditRecord, error) {
	records, err := s.auditRepo.Query(ctx, filter)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return records, nil
}

func (s *WorkflowService) publishChange(ctx context.Context, entity *models.WorkflowEntity) {
	if s.publisher == nil {
		return
	}
	event := notifications.ChangeEvent{
		EntityKind: entity.EntityKind,
		EntityID:   entity.EntityID,
		Status:     entity.ApprovalStatus,
		Disabled:   entity.IsDisabled,
		Version:    entity.Version,
	}
	// A lost event is tolerable: delivery is at-least-once with
	// resync-on-reconnect, so dashboards recover on their next full fetch.
	// The committed transition must not be failed retroactively.
	if err := s.publisher.PublishChange(ctx, event); err != nil {
		middleware.Logger.WarnContext(ctx, "change event publish failed",
			slog.String("entity_kind", string(entity.EntityKind)),
			slog.String("entity_id", entity.EntityID),
			slog.String("error", err.Error()),
		)
	}
}

func listCacheSuffix(in ListInput) string {
	status := "any"
	if in.Status != nil {
		status = string(*in.Status)
	}
	disabled := "any"
	if in.Disabled != nil {
		disabled = fmt.Sprintf("%t", *in.Disabled)
	}
	return fmt.Sprintf("%s:%s:%d:%d", status, disabled, in.Limit, in.Offset)
}
