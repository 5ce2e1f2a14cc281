package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// LeadPatch lists the fields a single update writes. Nil fields are left untouched.
type LeadPatch struct {
	LifecycleStatus  *LifecycleStatus
	ExpiryStatus     *ExpiryStatus
	ResolutionStatus *ResolutionStatus
	BuyerCallStatus  *CallStatus
	AgentCallStatus  *CallStatus
	VoicemailLeft    *bool
	BuyerCallRef     *string
	AgentCallRef     *string
	BuyerCallAt      *time.Time
	AgentCallAt      *time.Time
}

// IsEmpty reports whether the patch writes nothing.
func (p LeadPatch) IsEmpty() bool {
	return p == LeadPatch{}
}

// Apply copies the set fields onto l.
func (p LeadPatch) Apply(l *Lead) {
	if p.LifecycleStatus != nil {
		l.LifecycleStatus = *p.LifecycleStatus
	}
	if p.ExpiryStatus != nil {
		l.ExpiryStatus = *p.ExpiryStatus
	}
	if p.ResolutionStatus != nil {
		l.ResolutionStatus = *p.ResolutionStatus
	}
	if p.BuyerCallStatus != nil {
		l.BuyerCallStatus = *p.BuyerCallStatus
	}
	if p.AgentCallStatus != nil {
		l.AgentCallStatus = *p.AgentCallStatus
	}
	if p.VoicemailLeft != nil {
		l.VoicemailLeft = *p.VoicemailLeft
	}
	if p.BuyerCallRef != nil {
		ref := *p.BuyerCallRef
		l.BuyerCallRef = &ref
	}
	if p.AgentCallRef != nil {
		ref := *p.AgentCallRef
		l.AgentCallRef = &ref
	}
	if p.BuyerCallAt != nil {
		at := *p.BuyerCallAt
		l.BuyerCallAt = &at
	}
	if p.AgentCallAt != nil {
		at := *p.AgentCallAt
		l.AgentCallAt = &at
	}
}

// ValidateAgainst checks every status the patch writes against the transition
// tables, starting from the current lead state.
func (p LeadPatch) ValidateAgainst(l Lead) bool {
	if p.LifecycleStatus != nil && !CanTransitionLifecycle(l.LifecycleStatus, *p.LifecycleStatus) {
		return false
	}
	if p.ResolutionStatus != nil && !CanTransitionResolution(l.ResolutionStatus, *p.ResolutionStatus) {
		return false
	}
	if p.BuyerCallStatus != nil && !CanTransitionCall(l.BuyerCallStatus, *p.BuyerCallStatus) {
		return false
	}
	if p.AgentCallStatus != nil && !CanTransitionCall(l.AgentCallStatus, *p.AgentCallStatus) {
		return false
	}
	if p.ExpiryStatus != nil && l.ExpiryStatus == ExpiryExpired && *p.ExpiryStatus != ExpiryExpired {
		return false
	}
	return true
}

// Guard is a set of preconditions an update must satisfy against the stored
// row at write time. A zero Guard matches every lead.
type Guard struct {
	RequireUnresolved bool
	RequireActive     bool
	AgentID           *uuid.UUID
	AgentCallStatusIn []CallStatus
	BuyerCallStatusIn []CallStatus
	AgentCallRef      *string
	BuyerCallRef      *string
}

// Allows reports whether l satisfies every precondition.
func (g Guard) Allows(l Lead) bool {
	if g.RequireUnresolved && l.IsResolved() {
		return false
	}
	if g.RequireActive && !l.IsActive() {
		return false
	}
	if g.AgentID != nil && l.AgentID != *g.AgentID {
		return false
	}
	if len(g.AgentCallStatusIn) > 0 && !slices.Contains(g.AgentCallStatusIn, l.AgentCallStatus) {
		return false
	}
	if len(g.BuyerCallStatusIn) > 0 && !slices.Contains(g.BuyerCallStatusIn, l.BuyerCallStatus) {
		return false
	}
	if g.AgentCallRef != nil && (l.AgentCallRef == nil || *l.AgentCallRef != *g.AgentCallRef) {
		return false
	}
	if g.BuyerCallRef != nil && (l.BuyerCallRef == nil || *l.BuyerCallRef != *g.BuyerCallRef) {
		return false
	}
	return true
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
