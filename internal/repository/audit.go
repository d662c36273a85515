package repository

import (
	"context"
	"time"

	"freightdesk/internal/models"
	"freightdesk/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditFilter narrows audit history queries. All fields are optional; zero
// values mean "no constraint".
type AuditFilter struct {
	EntityKind models.EntityKind
	EntityID   string
	Action     models.AuditAction
	ActorID    string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// AuditRepository appends and reads immutable workflow audit records. No
// update or delete operation exists in this contract; history is insert-only.
type AuditRepository interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	Query(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, error)
	ForEntity(ctx context.Context, kind models.EntityKind, entityID string) ([]*models.AuditRecord, error)
}

type auditRepository struct {
	db      *gorm.DB
	repoLog *observability.RepoLogger
}

// NewAuditRepository creates a new audit log repository.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{
		db:      db,
		repoLog: observability.NewRepoLogger("workflow_audit_records"),
	}
}

func (r *auditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		r.repoLog.LogError(ctx, err, "append")
		return err
	}
	return nil
}

// Query returns matching records ordered by occurred_at ascending. The
// record_id tiebreak keeps ordering stable for records sharing a timestamp,
// so one query never interleaves pages inconsistently.
func (r *auditRepository) Query(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, error) {
	query := readDB(r.db).WithContext(ctx).Model(&models.AuditRecord{})

	if filter.EntityKind != "" {
		query = query.Where("entity_kind = ?", filter.EntityKind)
	}
	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if !filter.From.IsZero() {
		query = query.Where("occurred_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("occurred_at <= ?", filter.To)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []*models.AuditRecord
	err := query.
		Order("occurred_at ASC, record_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ForEntity returns the complete ordered history of one entity.
func (r *auditRepository) ForEntity(ctx context.Context, kind models.EntityKind, entityID string) ([]*models.AuditRecord, error) {
	return r.Query(ctx, AuditFilter{EntityKind: kind, EntityID: entityID})
}
