package models

import "strings"

// TransitionKind is a requested change to an entity's stage or suspension flag.
type TransitionKind string

const (
	// TransitionApproveManager is the first-line approval (pending -> manager_approved).
	TransitionApproveManager TransitionKind = "approve_manager"
	// TransitionApproveAccounts is the final approval (manager_approved -> approved).
	TransitionApproveAccounts TransitionKind = "approve_accounts"
	// TransitionReject rejects the entity from pending or manager_approved.
	TransitionReject TransitionKind = "reject"
	// TransitionDisable sets the suspension flag at any stage.
	TransitionDisable TransitionKind = "disable"
	// TransitionEnable clears the suspension flag at any stage.
	TransitionEnable TransitionKind = "enable"
)

// ParseTransitionKind normalizes a wire value into a TransitionKind.
func ParseTransitionKind(raw string) (TransitionKind, bool) {
	kind := TransitionKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case TransitionApproveManager, TransitionApproveAccounts, TransitionReject,
		TransitionDisable, TransitionEnable:
		return kind, true
	}
	return "", false
}

// TransitionRequest carries one reviewer decision into the state machine.
type TransitionRequest struct {
	Kind   TransitionKind
	Reason string // required for reject, ignored otherwise
	Notes  string // optional free text copied onto the audit record
}

// Decision is the state machine's verdict: the post-transition state plus the
// audit action that records it. NoOp decisions (disable of an already-disabled
// entity, and the converse) leave the entity untouched: no write, no audit
// row, no change event, no version increment.
type Decision struct {
	Status   ApprovalStatus
	Disabled bool
	Action   AuditAction
	NoOp     bool
}

// Evaluate applies the transition table to the entity's current snapshot.
// It is side-effect-free and deterministic: same inputs, same result. Expected
// business outcomes come back as *AppError values (Forbidden, InvalidState,
// ValidationFailed), never as panics or wrapped faults.
//
//	pending          --approve_manager-->  manager_approved
//	pending          --reject-->           rejected (reason required)
//	manager_approved --approve_accounts--> approved
//	manager_approved --reject-->           rejected (reason required)
//	any status       --disable/enable-->   same status, flag toggled
//
// approved and rejected are terminal for forward progress; the status never
// moves backward.
func Evaluate(entity *WorkflowEntity, req TransitionRequest, caps CapabilitySet) (Decision, error) {
	// Input validation precedes the capability check: a reject without a
	// reason is ValidationFailed no matter who asks.
	if req.Kind == TransitionReject && strings.TrimSpace(req.Reason) == "" {
		return Decision{}, NewValidationError("rejection requires a reason")
	}

	if !CanPerform(caps, req.Kind) {
		return Decision{}, NewForbiddenError("actor is not permitted to " + string(req.Kind))
	}

	switch req.Kind {
	case TransitionApproveManager:
		if entity.ApprovalStatus != StatusPending {
			return Decision{}, NewInvalidStateError(
				"cannot approve as manager from status " + string(entity.ApprovalStatus))
		}
		return Decision{
			Status:   StatusManagerApproved,
			Disabled: entity.IsDisabled,
			Action:   ActionManagerApproved,
		}, nil

	case TransitionApproveAccounts:
		if entity.ApprovalStatus != StatusManagerApproved {
			return Decision{}, NewInvalidStateError(
				"cannot approve as accounts from status " + string(entity.ApprovalStatus))
		}
		return Decision{
			Status:   StatusApproved,
			Disabled: entity.IsDisabled,
			Action:   ActionAccountsApproved,
		}, nil

	case TransitionReject:
		if entity.ApprovalStatus != StatusPending && entity.ApprovalStatus != StatusManagerApproved {
			return Decision{}, NewInvalidStateError(
				"cannot reject from status " + string(entity.ApprovalStatus))
		}
		return Decision{
			Status:   StatusRejected,
			Disabled: entity.IsDisabled,
			Action:   ActionRejected,
		}, nil

	case TransitionDisable:
		if entity.IsDisabled {
			return Decision{Status: entity.ApprovalStatus, Disabled: true, NoOp: true}, nil
		}
		return Decision{
			Status:   entity.ApprovalStatus,
			Disabled: true,
			Action:   ActionDisabled,
		}, nil

	case TransitionEnable:
		if !entity.IsDisabled {
			return Decision{Status: entity.ApprovalStatus, Disabled: false, NoOp: true}, nil
		}
		return Decision{
			Status:   entity.ApprovalStatus,
			Disabled: false,
			Action:   ActionEnabled,
		}, nil

	default:
		return Decision{}, NewValidationError("unknown transition kind " + string(req.Kind))
	}
}
