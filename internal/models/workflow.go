package models

import "time"

// EntityKind identifies which business record a workflow entity shadows.
type EntityKind string

const (
	// EntityKindCarrier is a carrier profile under review.
	EntityKindCarrier EntityKind = "carrier"
	// EntityKindDispatch is a dispatch/load record under review.
	EntityKindDispatch EntityKind = "dispatch"
)

// Valid reports whether the kind is one of the known entity kinds.
func (k EntityKind) Valid() bool {
	return k == EntityKindCarrier || k == EntityKindDispatch
}

// EntityKinds lists every known entity kind.
func EntityKinds() []EntityKind {
	return []EntityKind{EntityKindCarrier, EntityKindDispatch}
}

// ApprovalStatus is the forward-progress stage of a workflow entity.
type ApprovalStatus string

const (
	// StatusPending indicates the entity is awaiting first-line review.
	StatusPending ApprovalStatus = "pending"
	// StatusManagerApproved indicates first-line review passed; accounts review pending.
	StatusManagerApproved ApprovalStatus = "manager_approved"
	// StatusApproved indicates the entity passed final review.
	StatusApproved ApprovalStatus = "approved"
	// StatusRejected indicates the entity was rejected at some review stage.
	StatusRejected ApprovalStatus = "rejected"
)

// Valid reports whether the status is one of the known approval statuses.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusManagerApproved, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further forward progress.
// The disabled flag may still be toggled on a terminal entity.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// WorkflowEntity is the approvable record tracked by the review subsystem.
// The approval status and the disabled flag are orthogonal: disable/enable
// applies at any forward-progress stage without losing that stage.
//
// Version is the optimistic concurrency token. Every successful transition
// increments it by exactly 1; the conditional write in the repository is the
// only mutation path.
type WorkflowEntity struct {
	ID              uint           `gorm:"primaryKey" json:"-"`
	EntityKind      EntityKind     `gorm:"type:varchar(20);not null;uniqueIndex:idx_workflow_kind_entity;index:idx_workflow_kind_status" json:"entity_kind"`
	EntityID        string         `gorm:"size:64;not null;uniqueIndex:idx_workflow_kind_entity" json:"entity_id"`
	ApprovalStatus  ApprovalStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_workflow_kind_status" json:"approval_status"`
	IsDisabled      bool           `gorm:"not null;default:false" json:"is_disabled"`
	RejectionReason *string        `gorm:"type:text" json:"rejection_reason,omitempty"`
	Version         uint64         `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName overrides the default GORM table name.
func (WorkflowEntity) TableName() string { return "workflow_entities" }

// AuditAction names one applied transition in the audit log.
type AuditAction string

const (
	// ActionCreated records implicit entity creation in status pending.
	ActionCreated AuditAction = "created"
	// ActionManagerApproved records a first-line approval.
	ActionManagerApproved AuditAction = "manager_approved"
	// ActionAccountsApproved records a final approval.
	ActionAccountsApproved AuditAction = "accounts_approved"
	// ActionRejected records a rejection with its reason.
	ActionRejected AuditAction = "rejected"
	// ActionDisabled records the suspension flag being set.
	ActionDisabled AuditAction = "disabled"
	// ActionEnabled records the suspension flag being cleared.
	ActionEnabled AuditAction = "enabled"
)

// Valid reports whether the action is one of the known audit actions.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreated, ActionManagerApproved, ActionAccountsApproved,
		ActionRejected, ActionDisabled, ActionEnabled:
		return true
	}
	return false
}

// AuditRecord is one immutable row per applied transition. Records are only
// ever inserted; no update or delete path exists anywhere in the codebase.
type AuditRecord struct {
	RecordID        string      `gorm:"primaryKey;size:36" json:"record_id"`
	EntityKind      EntityKind  `gorm:"type:varchar(20);not null;index:idx_audit_entity" json:"entity_kind"`
	EntityID        string      `gorm:"size:64;not null;index:idx_audit_entity" json:"entity_id"`
	Action          AuditAction `gorm:"type:varchar(30);not null;index" json:"action"`
	ActorID         string      `gorm:"size:64;not null;index" json:"actor_id"`
	ActorRole       string      `gorm:"size:40;not null" json:"actor_role"`
	OccurredAt      time.Time   `gorm:"not null;index" json:"occurred_at"`
	Notes           string      `gorm:"type:text" json:"notes,omitempty"`
	RejectionReason *string     `gorm:"type:text" json:"rejection_reason,omitempty"`
}

// TableName overrides the default GORM table name.
func (AuditRecord) TableName() string { return "workflow_audit_records" }

// ReplayAudit folds an entity's ordered audit records through the transition
// table and returns the materialized (status, disabled) pair they imply.
// The result must match the stored entity; repository tests rely on this.
func ReplayAudit(records []AuditRecord) (ApprovalStatus, bool) {
	status := StatusPending
	disabled := false
	for _, rec := range records {
		switch rec.Action {
		case ActionCreated:
			status = StatusPending
		case ActionManagerApproved:
			status = StatusManagerApproved
		case ActionAccountsApproved:
			status = StatusApproved
		case ActionRejected:
			status = StatusRejected
		case ActionDisabled:
			disabled = true
		case ActionEnabled:
			disabled = false
		}
	}
	return status, disabled
}
