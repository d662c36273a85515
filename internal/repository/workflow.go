package repository

import (
	"context"
	"errors"
	"time"

	"freightdesk/internal/models"
	"freightdesk/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrVersionConflict is returned when the conditional write loses the race:
// another transition advanced the entity's version after our snapshot read.
var ErrVersionConflict = errors.New("workflow entity version changed since read")

// EntityFilter narrows List queries for dashboard views.
type EntityFilter struct {
	Status   *models.ApprovalStatus
	Disabled *bool
	Limit    int
	Offset   int
}

// WorkflowRepository defines the interface for workflow entity storage.
type WorkflowRepository interface {
	Create(ctx context.Context, entity *models.WorkflowEntity, actor models.Actor) error
	GetByKindAndID(ctx context.Context, kind models.EntityKind, entityID string) (*models.WorkflowEntity, error)
	List(ctx context.Context, kind models.EntityKind, filter EntityFilter) ([]*models.WorkflowEntity, error)
	ApplyTransition(ctx context.Context, snapshot *models.WorkflowEntity, decision models.Decision, record *models.AuditRecord) (*models.WorkflowEntity, error)
}

// workflowRepository implements WorkflowRepository on GORM.
type workflowRepository struct {
	db      *gorm.DB
	repoLog *observability.RepoLogger
}

// NewWorkflowRepository creates a new workflow entity repository.
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{
		db:      db,
		repoLog: observability.NewRepoLogger("workflow_entities"),
	}
}

// Create registers a new entity in status pending with version 1 and writes
// the `created` audit row in the same transaction.
func (r *workflowRepository) Create(ctx context.Context, entity *models.WorkflowEntity, actor models.Actor) error {
	now := time.Now().UTC()
	entity.ApprovalStatus = models.StatusPending
	entity.IsDisabled = false
	entity.RejectionReason = nil
	entity.Version = 1

	record := &models.AuditRecord{
		RecordID:   uuid.NewString(),
		EntityKind: entity.EntityKind,
		EntityID:   entity.EntityID,
		Action:     models.ActionCreated,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		OccurredAt: now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entity).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		r.repoLog.LogError(ctx, err, "create")
		return err
	}

	r.repoLog.LogWrite(ctx, "create", map[string]interface{}{
		"entity_kind": entity.EntityKind,
		"entity_id":   entity.EntityID,
	})
	return nil
}

func (r *workflowRepository) GetByKindAndID(ctx context.Context, kind models.EntityKind, entityID string) (*models.WorkflowEntity, error) {
	var entity models.WorkflowEntity
	err := r.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		First(&entity).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *workflowRepository) List(ctx context.Context, kind models.EntityKind, filter EntityFilter) ([]*models.WorkflowEntity, error) {
	query := readDB(r.db).WithContext(ctx).
		Where("entity_kind = ?", kind)

	if filter.Status != nil {
		query = query.Where("approval_status = ?", *filter.Status)
	}
	if filter.Disabled != nil {
		query = query.Where("is_disabled = ?", *filter.Disabled)
	}

	var entities []*models.WorkflowEntity
	err := query.
		Order("updated_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// ApplyTransition performs the single serialization point of the workflow: a
// conditional write guarded by the version read in the snapshot, plus the
// audit append, in one transaction. Both land durably or neither does.
//
// The caller receives ErrVersionConflict when RowsAffected is zero, meaning
// another transition committed first; retrying with the stale snapshot is the
// caller's decision, never this layer's.
func (r *workflowRepository) ApplyTransition(ctx context.Context, snapshot *models.WorkflowEntity, decision models.Decision, record *models.AuditRecord) (*models.WorkflowEntity, error) {
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}

	var rejectionReason *string
	if decision.Status == models.StatusRejected {
		if record.RejectionReason != nil {
			rejectionReason = record.RejectionReason
		}
	} else {
		rejectionReason = snapshot.RejectionReason
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.WorkflowEntity{}).
			Where("entity_kind = ? AND entity_id = ? AND version = ?",
				snapshot.EntityKind, snapshot.EntityID, snapshot.Version).
			Updates(map[string]interface{}{
				"approval_status":  decision.Status,
				"is_disabled":      decision.Disabled,
				"rejection_reason": rejectionReason,
				"version":          snapshot.Version + 1,
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return tx.Create(record).Error
	})
	if err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			r.repoLog.LogError(ctx, err, "apply_transition")
		}
		return nil, err
	}

	r.repoLog.LogWrite(ctx, "apply_transition", map[string]interface{}{
		"entity_kind": snapshot.EntityKind,
		"entity_id":   snapshot.EntityID,
		"action":      record.Action,
		"version":     snapshot.Version + 1,
	})

	return r.GetByKindAndID(ctx, snapshot.EntityKind, snapshot.EntityID)
}
