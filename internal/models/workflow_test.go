package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplayAudit(t *testing.T) {
	t.Parallel()

	t.Run("full approval path", func(t *testing.T) {
		t.Parallel()
		status, disabled := ReplayAudit([]AuditRecord{
			{Action: ActionCreated},
			{Action: ActionManagerApproved},
			{Action: ActionAccountsApproved},
		})
		assert.Equal(t, StatusApproved, status)
		assert.False(t, disabled)
	})

	t.Run("rejection after first approval", func(t *testing.T) {
		t.Parallel()
		status, disabled := ReplayAudit([]AuditRecord{
			{Action: ActionCreated},
			{Action: ActionManagerApproved},
			{Action: ActionRejected},
		})
		assert.Equal(t, StatusRejected, status)
		assert.False(t, disabled)
	})

	t.Run("disable overlay survives forward progress", func(t *testing.T) {
		t.Parallel()
		status, disabled := ReplayAudit([]AuditRecord{
			{Action: ActionCreated},
			{Action: ActionDisabled},
			{Action: ActionManagerApproved},
			{Action: ActionAccountsApproved},
		})
		assert.Equal(t, StatusApproved, status)
		assert.True(t, disabled)
	})

	t.Run("disable then enable nets out", func(t *testing.T) {
		t.Parallel()
		status, disabled := ReplayAudit([]AuditRecord{
			{Action: ActionCreated},
			{Action: ActionManagerApproved},
			{Action: ActionDisabled},
			{Action: ActionEnabled},
		})
		assert.Equal(t, StatusManagerApproved, status)
		assert.False(t, disabled)
	})

	t.Run("empty history means a fresh pending entity", func(t *testing.T) {
		t.Parallel()
		status, disabled := ReplayAudit(nil)
		assert.Equal(t, StatusPending, status)
		assert.False(t, disabled)
	})
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusManagerApproved.Terminal())

	assert.True(t, ApprovalStatus("pending").Valid())
	assert.False(t, ApprovalStatus("archived").Valid())

	assert.True(t, EntityKind("carrier").Valid())
	assert.True(t, EntityKind("dispatch").Valid())
	assert.False(t, EntityKind("invoice").Valid())
}
