// Package leadevents builds domain events from lead snapshots.
package leadevents

import (
	"tour_portal_backend/internal/events"
	"tour_portal_backend/internal/leads/domain"
)

// StateChanged describes lead after step changed it.
func StateChanged(lead domain.Lead, step string) events.LeadStateChanged {
	return events.LeadStateChanged{
		BaseEvent:        events.NewBaseEvent(),
		LeadID:           lead.ID,
		AgentID:          lead.AgentID,
		Step:             step,
		LifecycleStatus:  string(lead.LifecycleStatus),
		ResolutionStatus: string(lead.ResolutionStatus),
		BuyerCallStatus:  string(lead.BuyerCallStatus),
		AgentCallStatus:  string(lead.AgentCallStatus),
		VoicemailLeft:    lead.VoicemailLeft,
	}
}

// AgentMissed reports that the current agent did not pick up.
func AgentMissed(lead domain.Lead) events.AgentMissedLead {
	return events.AgentMissedLead{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          lead.ID,
		AgentID:         lead.AgentID,
		ListingID:       lead.ListingID,
		AgentCallStatus: string(lead.AgentCallStatus),
	}
}
