// Package domain provides core business rules for the tour lead bounded context.
package domain

import "strings"

// LifecycleStatus is the coarse progress of a lead through confirmation.
type LifecycleStatus string

const (
	LifecycleNewLead           LifecycleStatus = "NewLead"
	LifecycleAwaitingAgentCall LifecycleStatus = "AwaitingAgentCall"
	LifecycleConfirmedClaimed  LifecycleStatus = "ConfirmedClaimed"
	LifecycleNeedsFollowUp     LifecycleStatus = "NeedsFollowUp"
	LifecycleUnresponsive      LifecycleStatus = "Unresponsive"
)

// ExpiryStatus tracks whether the lead is still eligible for rotation.
type ExpiryStatus string

const (
	ExpiryActive  ExpiryStatus = "Active"
	ExpiryExpired ExpiryStatus = "Expired"
)

// ResolutionStatus tracks whether an agent has claimed the lead.
type ResolutionStatus string

const (
	ResolutionPending    ResolutionStatus = "Pending"
	ResolutionResolved   ResolutionStatus = "Resolved"
	ResolutionUnresolved ResolutionStatus = "Unresolved"
)

// CallStatus is the status of one confirmation call leg.
type CallStatus string

const (
	CallPending   CallStatus = "Pending"
	CallRinging   CallStatus = "Ringing"
	CallAnswered  CallStatus = "Answered"
	CallNoAnswer  CallStatus = "NoAnswer"
	CallVoicemail CallStatus = "Voicemail"
)

// CallRole identifies which party a provider callback refers to.
type CallRole string

const (
	RoleBuyer CallRole = "buyer"
	RoleAgent CallRole = "agent"
)

var knownLifecycle = map[LifecycleStatus]struct{}{
	LifecycleNewLead:           {},
	LifecycleAwaitingAgentCall: {},
	LifecycleConfirmedClaimed:  {},
	LifecycleNeedsFollowUp:     {},
	LifecycleUnresponsive:      {},
}

var knownCallStatuses = map[CallStatus]struct{}{
	CallPending:   {},
	CallRinging:   {},
	CallAnswered:  {},
	CallNoAnswer:  {},
	CallVoicemail: {},
}

// IsKnown reports whether s is one of the declared lifecycle statuses.
func (s LifecycleStatus) IsKnown() bool {
	_, ok := knownLifecycle[s]
	return ok
}

// IsKnown reports whether s is one of the declared call statuses.
func (s CallStatus) IsKnown() bool {
	_, ok := knownCallStatuses[s]
	return ok
}

// ParseCallRole accepts "buyer" or "agent" in any case.
func ParseCallRole(value string) (CallRole, bool) {
	switch CallRole(strings.ToLower(strings.TrimSpace(value))) {
	case RoleBuyer:
		return RoleBuyer, true
	case RoleAgent:
		return RoleAgent, true
	default:
		return "", false
	}
}
