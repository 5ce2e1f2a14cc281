package management

import (
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/transport"
)

// ToLeadResponse converts a domain lead to its transport representation.
func ToLeadResponse(lead domain.Lead) transport.LeadResponse {
	return transport.LeadResponse{
		ID:               lead.ID,
		BuyerID:          lead.BuyerID,
		AgentID:          lead.AgentID,
		ListingID:        lead.ListingID,
		ServiceArea:      lead.ServiceArea,
		RequestedAt:      lead.RequestedAt,
		LifecycleStatus:  string(lead.LifecycleStatus),
		ExpiryStatus:     string(lead.ExpiryStatus),
		ResolutionStatus: string(lead.ResolutionStatus),
		BuyerCallStatus:  string(lead.BuyerCallStatus),
		AgentCallStatus:  string(lead.AgentCallStatus),
		VoicemailLeft:    lead.VoicemailLeft,
		BuyerCallAt:      lead.BuyerCallAt,
		AgentCallAt:      lead.AgentCallAt,
		CreatedAt:        lead.CreatedAt,
		UpdatedAt:        lead.UpdatedAt,
	}
}

func toStatusResponse(status domain.Status) transport.LeadStatusResponse {
	return transport.LeadStatusResponse{
		LeadID:           status.LeadID,
		AgentID:          status.AgentID,
		LifecycleStatus:  string(status.LifecycleStatus),
		ExpiryStatus:     string(status.ExpiryStatus),
		ResolutionStatus: string(status.ResolutionStatus),
		BuyerCallStatus:  string(status.BuyerCallStatus),
		AgentCallStatus:  string(status.AgentCallStatus),
		VoicemailLeft:    status.VoicemailLeft,
		TimeLeftSeconds:  int64(status.TimeLeft.Seconds()),
	}
}

func toRejectionList(records []domain.RejectionRecord) transport.RejectionListResponse {
	items := make([]transport.RejectionResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, transport.RejectionResponse{
			ID:        rec.ID,
			AgentID:   rec.AgentID,
			Reason:    rec.Reason,
			CreatedAt: rec.CreatedAt,
		})
	}
	return transport.RejectionListResponse{Items: items, Total: len(items)}
}
