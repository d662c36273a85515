package models

import "strings"

// Capability is a closed enum of workflow permissions. Role claims from the
// session token are resolved into capabilities exactly once at the
// authentication boundary; nothing downstream compares role strings.
type Capability string

const (
	// CapabilityManager grants first-line reviewer powers.
	CapabilityManager Capability = "manager"
	// CapabilityAccounts grants final reviewer powers.
	CapabilityAccounts Capability = "accounts"
	// CapabilityAdmin grants the full review surface plus disable/enable.
	CapabilityAdmin Capability = "admin"
	// CapabilitySuperAdmin is CapabilityAdmin for the root operator role.
	CapabilitySuperAdmin Capability = "super_admin"

	// CapabilityApproveManager is the explicit grant for first-line approval.
	CapabilityApproveManager Capability = "approve.manager"
	// CapabilityApproveAccounts is the explicit grant for final approval.
	CapabilityApproveAccounts Capability = "approve.accounts"
	// CapabilityReject is the explicit grant for rejecting an entity.
	CapabilityReject Capability = "reject"
	// CapabilityDisable is the explicit grant for toggling suspension.
	CapabilityDisable Capability = "disable"
)

// CapabilitySet is an unordered set of capabilities held by one actor.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// HasAny reports whether the set contains at least one of the capabilities.
func (s CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// ResolveCapabilities maps raw role/grant claims to the closed capability
// enum. Unknown claims are dropped, matching is case-insensitive, and the
// result is the only permission input the state machine ever sees.
func ResolveCapabilities(claims []string) CapabilitySet {
	set := make(CapabilitySet)
	for _, raw := range claims {
		switch Capability(strings.ToLower(strings.TrimSpace(raw))) {
		case CapabilityManager:
			set[CapabilityManager] = struct{}{}
		case CapabilityAccounts:
			set[CapabilityAccounts] = struct{}{}
		case CapabilityAdmin:
			set[CapabilityAdmin] = struct{}{}
		case CapabilitySuperAdmin:
			set[CapabilitySuperAdmin] = struct{}{}
		case CapabilityApproveManager:
			set[CapabilityApproveManager] = struct{}{}
		case CapabilityApproveAccounts:
			set[CapabilityApproveAccounts] = struct{}{}
		case CapabilityReject:
			set[CapabilityReject] = struct{}{}
		case CapabilityDisable:
			set[CapabilityDisable] = struct{}{}
		}
	}
	return set
}

// CanPerform answers whether an actor holding caps may request the given
// transition kind. The table is fixed at compile time, not configurable.
// It is a pure function of its inputs.
func CanPerform(caps CapabilitySet, kind TransitionKind) bool {
	switch kind {
	case TransitionApproveManager:
		return caps.HasAny(CapabilityManager, CapabilityAdmin, CapabilitySuperAdmin, CapabilityApproveManager)
	case TransitionApproveAccounts:
		return caps.HasAny(CapabilityAccounts, CapabilityAdmin, CapabilitySuperAdmin, CapabilityApproveAccounts)
	case TransitionReject:
		return caps.HasAny(CapabilityManager, CapabilityAccounts, CapabilityAdmin, CapabilitySuperAdmin, CapabilityReject)
	case TransitionDisable, TransitionEnable:
		return caps.HasAny(CapabilityAdmin, CapabilitySuperAdmin, CapabilityDisable)
	default:
		return false
	}
}

// Actor identifies the human reviewer performing a transition.
type Actor struct {
	ID           string
	Role         string
	Capabilities CapabilitySet
}
