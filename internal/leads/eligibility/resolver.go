// Package eligibility picks the next agent a stale lead can be offered to.
package eligibility

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/ports"

	"github.com/google/uuid"
)

// candidatePage is how many candidates are fetched per lookup. The directory
// already filters excluded ids; the page leaves room for the local re-check.
const candidatePage = 5

// Resolver selects agents from the lead's service area that have not handled
// the lead before.
type Resolver struct {
	directory ports.AgentDirectory
}

func New(directory ports.AgentDirectory) *Resolver {
	return &Resolver{directory: directory}
}

// NextAgent returns the first eligible agent in directory order, or ok=false
// when every agent in the area has been excluded. The lead's current agent is
// always excluded.
func (r *Resolver) NextAgent(ctx context.Context, lead domain.Lead, excluded []uuid.UUID) (domain.Agent, bool, error) {
	area := strings.TrimSpace(lead.ServiceArea)
	if area == "" {
		return domain.Agent{}, false, nil
	}

	exclude := ExcludedSet(lead.AgentID, excluded)
	candidates, err := r.directory.FindAgentsByServiceArea(ctx, area, exclude, candidatePage)
	if err != nil {
		return domain.Agent{}, false, fmt.Errorf("find agents in %s: %w", area, err)
	}

	for _, agent := range candidates {
		if agent.ServiceArea != area || slices.Contains(exclude, agent.ID) {
			continue
		}
		return agent, true, nil
	}
	return domain.Agent{}, false, nil
}

// ExcludedSet merges the current agent with previously rejected agents,
// dropping duplicates and nil ids while keeping first-seen order.
func ExcludedSet(current uuid.UUID, rejected []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(rejected)+1)
	if current != uuid.Nil {
		out = append(out, current)
	}
	for _, id := range rejected {
		if id == uuid.Nil || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
