package service

import (
	"context"
	"errors"
	"testing"

	"freightdesk/internal/models"
	"freightdesk/internal/notifications"
	"freightdesk/internal/repository"
	"freightdesk/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher records every change event the service emits.
type capturePublisher struct {
	events []notifications.ChangeEvent
	err    error
}

func (p *capturePublisher) PublishChange(_ context.Context, event notifications.ChangeEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func newTestService(t *testing.T) (*WorkflowService, repository.AuditRepository, *capturePublisher) {
	t.Helper()
	db := testutil.NewTestDB(t)
	workflowRepo := repository.NewWorkflowRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	publisher := &capturePublisher{}
	return NewWorkflowService(workflowRepo, auditRepo, publisher), auditRepo, publisher
}

func managerActor() models.Actor {
	return models.Actor{
		ID:           "mgr-1",
		Role:         "manager",
		Capabilities: models.NewCapabilitySet(models.CapabilityManager),
	}
}

func accountsActor() models.Actor {
	return models.Actor{
		ID:           "acc-1",
		Role:         "accounts",
		Capabilities: models.NewCapabilitySet(models.CapabilityAccounts),
	}
}

func adminActor() models.Actor {
	return models.Actor{
		ID:           "adm-1",
		Role:         "admin",
		Capabilities: models.NewCapabilitySet(models.CapabilityAdmin),
	}
}

func TestRegisterCreatesPendingEntity(t *testing.T) {
	svc, auditRepo, publisher := newTestService(t)
	ctx := context.Background()

	entity, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-100", managerActor())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, entity.ApprovalStatus)
	assert.False(t, entity.IsDisabled)
	assert.Equal(t, uint64(1), entity.Version)

	records, err := auditRepo.ForEntity(ctx, models.EntityKindCarrier, "CAR-100")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ActionCreated, records[0].Action)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "CAR-100", publisher.events[0].EntityID)
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-100", managerActor())
	require.NoError(t, err)

	_, err = svc.Register(ctx, models.EntityKindCarrier, "CAR-100", managerActor())
	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeConflict, appErr.Code)
}

func TestApplyFullApprovalPath(t *testing.T) {
	svc, auditRepo, publisher := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindDispatch, "DSP-7", adminActor())
	require.NoError(t, err)

	entity, err := svc.Apply(ctx, models.EntityKindDispatch, "DSP-7", TransitionInput{
		Kind:  models.TransitionApproveManager,
		Actor: managerActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusManagerApproved, entity.ApprovalStatus)
	assert.Equal(t, uint64(2), entity.Version)

	entity, err = svc.Apply(ctx, models.EntityKindDispatch, "DSP-7", TransitionInput{
		Kind:  models.TransitionApproveAccounts,
		Actor: accountsActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, entity.ApprovalStatus)
	assert.Equal(t, uint64(3), entity.Version)

	records, err := auditRepo.ForEntity(ctx, models.EntityKindDispatch, "DSP-7")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.ActionCreated, records[0].Action)
	assert.Equal(t, models.ActionManagerApproved, records[1].Action)
	assert.Equal(t, models.ActionAccountsApproved, records[2].Action)

	// Register plus two transitions, one event apiece.
	assert.Len(t, publisher.events, 3)
	assert.Equal(t, uint64(3), publisher.events[2].Version)
}

func TestApplyForbiddenWithoutCapability(t *testing.T) {
	svc, _, publisher := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-5", adminActor())
	require.NoError(t, err)

	// Accounts reviewers cannot perform first-line approval, even though the
	// entity is in a state where the transition itself would be legal.
	_, err = svc.Apply(ctx, models.EntityKindCarrier, "CAR-5", TransitionInput{
		Kind:  models.TransitionApproveManager,
		Actor: accountsActor(),
	})
	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeForbidden, appErr.Code)

	// Nothing was committed, so nothing beyond the registration event fired.
	assert.Len(t, publisher.events, 1)
}

func TestApplyRejectWithoutReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-5", adminActor())
	require.NoError(t, err)

	_, err = svc.Apply(ctx, models.EntityKindCarrier, "CAR-5", TransitionInput{
		Kind:   models.TransitionReject,
		Reason: "   ",
		Actor:  adminActor(),
	})
	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func TestApplyRejectRecordsReason(t *testing.T) {
	svc, auditRepo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-9", adminActor())
	require.NoError(t, err)

	entity, err := svc.Apply(ctx, models.EntityKindCarrier, "CAR-9", TransitionInput{
		Kind:   models.TransitionReject,
		Reason: "missing insurance certificate",
		Actor:  managerActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, entity.ApprovalStatus)
	require.NotNil(t, entity.RejectionReason)
	assert.Equal(t, "missing insurance certificate", *entity.RejectionReason)

	records, err := auditRepo.ForEntity(ctx, models.EntityKindCarrier, "CAR-9")
	require.NoError(t, err)
	last := records[len(records)-1]
	assert.Equal(t, models.ActionRejected, last.Action)
	require.NotNil(t, last.RejectionReason)
	assert.Equal(t, "missing insurance certificate", *last.RejectionReason)
}

func TestApplyConflictOnStaleSnapshot(t *testing.T) {
	db := testutil.NewTestDB(t)
	workflowRepo := repository.NewWorkflowRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	publisher := &capturePublisher{}
	svc := NewWorkflowService(workflowRepo, auditRepo, publisher)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-2", adminActor())
	require.NoError(t, err)

	// Two reviewers read the same snapshot. The first decision commits; the
	// second must observe a conflict rather than double-apply.
	snapshot, err := workflowRepo.GetByKindAndID(ctx, models.EntityKindCarrier, "CAR-2")
	require.NoError(t, err)

	_, err = svc.Apply(ctx, models.EntityKindCarrier, "CAR-2", TransitionInput{
		Kind:  models.TransitionApproveManager,
		Actor: managerActor(),
	})
	require.NoError(t, err)

	decision, err := models.Evaluate(snapshot, models.TransitionRequest{Kind: models.TransitionApproveManager},
		managerActor().Capabilities)
	require.NoError(t, err)
	_, err = workflowRepo.ApplyTransition(ctx, snapshot, decision, &models.AuditRecord{
		EntityKind: snapshot.EntityKind,
		EntityID:   snapshot.EntityID,
		Action:     decision.Action,
		ActorID:    "mgr-2",
		ActorRole:  "manager",
	})
	assert.True(t, errors.Is(err, repository.ErrVersionConflict))

	// Exactly one manager approval landed in the audit log.
	records, err := auditRepo.Query(ctx, repository.AuditFilter{
		EntityKind: models.EntityKindCarrier,
		EntityID:   "CAR-2",
		Action:     models.ActionManagerApproved,
	})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestApplyDisableIsNoOpWhenAlreadyDisabled(t *testing.T) {
	svc, auditRepo, publisher := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindDispatch, "DSP-1", adminActor())
	require.NoError(t, err)

	entity, err := svc.Apply(ctx, models.EntityKindDispatch, "DSP-1", TransitionInput{
		Kind:  models.TransitionDisable,
		Actor: adminActor(),
	})
	require.NoError(t, err)
	assert.True(t, entity.IsDisabled)
	assert.Equal(t, uint64(2), entity.Version)

	again, err := svc.Apply(ctx, models.EntityKindDispatch, "DSP-1", TransitionInput{
		Kind:  models.TransitionDisable,
		Actor: adminActor(),
	})
	require.NoError(t, err)
	assert.True(t, again.IsDisabled)
	assert.Equal(t, uint64(2), again.Version, "no-op must not bump the version")

	records, err := auditRepo.ForEntity(ctx, models.EntityKindDispatch, "DSP-1")
	require.NoError(t, err)
	assert.Len(t, records, 2, "no-op must not append an audit record")

	// Register + real disable only; the no-op emitted nothing.
	assert.Len(t, publisher.events, 2)
}

func TestApplyDisablePreservesStage(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-3", adminActor())
	require.NoError(t, err)

	_, err = svc.Apply(ctx, models.EntityKindCarrier, "CAR-3", TransitionInput{
		Kind:  models.TransitionApproveManager,
		Actor: managerActor(),
	})
	require.NoError(t, err)

	entity, err := svc.Apply(ctx, models.EntityKindCarrier, "CAR-3", TransitionInput{
		Kind:  models.TransitionDisable,
		Actor: adminActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusManagerApproved, entity.ApprovalStatus)
	assert.True(t, entity.IsDisabled)

	entity, err = svc.Apply(ctx, models.EntityKindCarrier, "CAR-3", TransitionInput{
		Kind:  models.TransitionEnable,
		Actor: adminActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusManagerApproved, entity.ApprovalStatus)
	assert.False(t, entity.IsDisabled)
}

func TestApplyUnknownEntity(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Apply(context.Background(), models.EntityKindCarrier, "missing", TransitionInput{
		Kind:  models.TransitionApproveManager,
		Actor: managerActor(),
	})
	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestApplySurvivesPublisherFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	publisher := &capturePublisher{err: errors.New("redis unavailable")}
	svc := NewWorkflowService(
		repository.NewWorkflowRepository(db),
		repository.NewAuditRepository(db),
		publisher,
	)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-8", adminActor())
	require.NoError(t, err)

	entity, err := svc.Apply(ctx, models.EntityKindCarrier, "CAR-8", TransitionInput{
		Kind:  models.TransitionApproveManager,
		Actor: managerActor(),
	})
	require.NoError(t, err, "a failed change event must not fail the committed transition")
	assert.Equal(t, models.StatusManagerApproved, entity.ApprovalStatus)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, models.EntityKindCarrier, "CAR-1", adminActor())
	require.NoError(t, err)
	_, err = svc.Register(ctx, models.EntityKindCarrier, "CAR-2", adminActor())
	require.NoError(t, err)
	_, err = svc.Register(ctx, models.EntityKindDispatch, "DSP-1", adminActor())
	require.NoError(t, err)

	_, err = svc.Apply(ctx, models.EntityKindCarrier, "CAR-1", TransitionInput{
		Kind:  models.TransitionApproveManager,
		Actor: managerActor(),
	})
	require.NoError(t, err)

	pending := models.StatusPending
	entities, err := svc.List(ctx, models.EntityKindCarrier, ListInput{Status: &pending, Limit: 10})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "CAR-2", entities[0].EntityID)

	all, err := svc.List(ctx, models.EntityKindCarrier, ListInput{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2, "dispatch entities must not leak into the carrier list")
}
