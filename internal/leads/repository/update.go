package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tour_portal_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type setField struct {
	enabled bool
	column  string
	value   any
}

// updateQuery builds the guarded UPDATE for a patch. Every precondition, and
// every allowed source status for the written values, is part of the WHERE
// clause so the check and the write happen in one statement.
func updateQuery(id uuid.UUID, patch domain.LeadPatch, guard domain.Guard) (string, []any) {
	setClauses := []string{}
	where := []string{}
	args := []any{}
	argIdx := 1

	fields := []setField{
		{patch.LifecycleStatus != nil, "lifecycle_status", derefString(patch.LifecycleStatus)},
		{patch.ExpiryStatus != nil, "expiry_status", derefString(patch.ExpiryStatus)},
		{patch.ResolutionStatus != nil, "resolution_status", derefString(patch.ResolutionStatus)},
		{patch.BuyerCallStatus != nil, "buyer_call_status", derefString(patch.BuyerCallStatus)},
		{patch.AgentCallStatus != nil, "agent_call_status", derefString(patch.AgentCallStatus)},
		{patch.VoicemailLeft != nil, "voicemail_left", patch.VoicemailLeft},
		{patch.BuyerCallRef != nil, "buyer_call_ref", patch.BuyerCallRef},
		{patch.AgentCallRef != nil, "agent_call_ref", patch.AgentCallRef},
		{patch.BuyerCallAt != nil, "buyer_call_at", patch.BuyerCallAt},
		{patch.AgentCallAt != nil, "agent_call_at", patch.AgentCallAt},
	}

	for _, field := range fields {
		if !field.enabled {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field.column, argIdx))
		args = append(args, field.value)
		argIdx++
	}
	setClauses = append(setClauses, "updated_at = now()")

	addCondition := func(format string, value any) {
		where = append(where, fmt.Sprintf(format, argIdx))
		args = append(args, value)
		argIdx++
	}

	addCondition("id = $%d", id)

	if guard.RequireUnresolved {
		where = append(where, "resolution_status <> 'Resolved'")
	}
	if guard.RequireActive {
		where = append(where, "expiry_status = 'Active'")
	}
	if guard.AgentID != nil {
		addCondition("agent_id = $%d", *guard.AgentID)
	}
	if len(guard.AgentCallStatusIn) > 0 {
		addCondition("agent_call_status = ANY($%d)", toStrings(guard.AgentCallStatusIn))
	}
	if len(guard.BuyerCallStatusIn) > 0 {
		addCondition("buyer_call_status = ANY($%d)", toStrings(guard.BuyerCallStatusIn))
	}
	if guard.AgentCallRef != nil {
		addCondition("agent_call_ref = $%d", *guard.AgentCallRef)
	}
	if guard.BuyerCallRef != nil {
		addCondition("buyer_call_ref = $%d", *guard.BuyerCallRef)
	}

	if patch.LifecycleStatus != nil {
		addCondition("lifecycle_status = ANY($%d)", toStrings(domain.LifecycleSourcesFor(*patch.LifecycleStatus)))
	}
	if patch.ResolutionStatus != nil {
		addCondition("resolution_status = ANY($%d)", toStrings(domain.ResolutionSourcesFor(*patch.ResolutionStatus)))
	}
	if patch.BuyerCallStatus != nil {
		addCondition("buyer_call_status = ANY($%d)", toStrings(domain.CallSourcesFor(*patch.BuyerCallStatus)))
	}
	if patch.AgentCallStatus != nil {
		addCondition("agent_call_status = ANY($%d)", toStrings(domain.CallSourcesFor(*patch.AgentCallStatus)))
	}
	if patch.ExpiryStatus != nil && *patch.ExpiryStatus == domain.ExpiryActive {
		where = append(where, "expiry_status = 'Active'")
	}

	query := fmt.Sprintf(`
		UPDATE tour_leads SET %s
		WHERE %s
		RETURNING %s
	`, strings.Join(setClauses, ", "), strings.Join(where, " AND "), leadColumns)

	return query, args
}

// Update applies patch when guard holds. A missing lead yields NotFound; a lead
// that exists but fails a precondition yields Conflict.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, patch domain.LeadPatch, guard domain.Guard) (domain.Lead, error) {
	query, args := updateQuery(id, patch, guard)

	lead, err := scanLead(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tour_leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.Lead{}, err
	}
	if !exists {
		return domain.Lead{}, notFound()
	}
	return domain.Lead{}, stale()
}

func derefString[S ~string](value *S) string {
	if value == nil {
		return ""
	}
	return string(*value)
}

func toStrings[S ~string](values []S) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
