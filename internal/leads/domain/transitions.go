package domain

import "slices"

// Allowed transitions per status type. Writing the current value again is
// always allowed so that repeated deliveries stay idempotent.

var lifecycleTransitions = map[LifecycleStatus][]LifecycleStatus{
	LifecycleNewLead:           {LifecycleAwaitingAgentCall, LifecycleConfirmedClaimed, LifecycleNeedsFollowUp, LifecycleUnresponsive},
	LifecycleAwaitingAgentCall: {LifecycleConfirmedClaimed, LifecycleNeedsFollowUp, LifecycleUnresponsive, LifecycleNewLead},
	LifecycleNeedsFollowUp:     {LifecycleAwaitingAgentCall, LifecycleConfirmedClaimed, LifecycleUnresponsive, LifecycleNewLead},
	// A late answered callback may still claim an expired lead.
	LifecycleUnresponsive:     {LifecycleConfirmedClaimed},
	LifecycleConfirmedClaimed: {},
}

var callTransitions = map[CallStatus][]CallStatus{
	CallPending:   {CallRinging, CallAnswered, CallNoAnswer, CallVoicemail},
	CallRinging:   {CallAnswered, CallNoAnswer, CallVoicemail},
	CallNoAnswer:  {CallAnswered, CallVoicemail},
	CallVoicemail: {CallAnswered},
	CallAnswered:  {},
}

var resolutionTransitions = map[ResolutionStatus][]ResolutionStatus{
	ResolutionPending:    {ResolutionResolved, ResolutionUnresolved},
	ResolutionUnresolved: {ResolutionResolved},
	ResolutionResolved:   {},
}

// CanTransitionLifecycle reports whether from -> to is allowed.
func CanTransitionLifecycle(from, to LifecycleStatus) bool {
	return allowed(lifecycleTransitions, from, to)
}

// CanTransitionCall reports whether a call leg may move from -> to.
func CanTransitionCall(from, to CallStatus) bool {
	return allowed(callTransitions, from, to)
}

// CanTransitionResolution reports whether from -> to is allowed.
// Resolved is absorbing.
func CanTransitionResolution(from, to ResolutionStatus) bool {
	return allowed(resolutionTransitions, from, to)
}

// IsTerminalCall reports whether no further transition can leave s.
func IsTerminalCall(s CallStatus) bool {
	next, ok := callTransitions[s]
	return ok && len(next) == 0
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	next, ok := table[from]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	for _, candidate := range next {
		if candidate == to {
			return true
		}
	}
	return false
}

// CallSourcesFor lists every call status from which to can be written.
func CallSourcesFor(to CallStatus) []CallStatus {
	return sourcesFor(callTransitions, to)
}

// LifecycleSourcesFor lists every lifecycle status from which to can be written.
func LifecycleSourcesFor(to LifecycleStatus) []LifecycleStatus {
	return sourcesFor(lifecycleTransitions, to)
}

// ResolutionSourcesFor lists every resolution status from which to can be written.
func ResolutionSourcesFor(to ResolutionStatus) []ResolutionStatus {
	return sourcesFor(resolutionTransitions, to)
}

func sourcesFor[S ~string](table map[S][]S, to S) []S {
	out := make([]S, 0, len(table))
	for from := range table {
		if allowed(table, from, to) {
			out = append(out, from)
		}
	}
	slices.Sort(out)
	return out
}
