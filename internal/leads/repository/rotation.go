package repository

import (
	"context"
	"errors"
	"time"

	"tour_portal_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ClaimActiveLeadsOlderThan leases a batch of stale leads. Rows locked or leased
// by another sweeper are skipped; the least recently swept leads go first so a
// slow batch never starves the rest.
func (r *Repository) ClaimActiveLeadsOlderThan(ctx context.Context, cutoff time.Time, limit int, lease time.Duration) ([]domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM tour_leads
			WHERE expiry_status = 'Active'
				AND resolution_status <> 'Resolved'
				AND lifecycle_status <> 'ConfirmedClaimed'
				AND requested_at <= $1
				AND (sweep_claimed_until IS NULL OR sweep_claimed_until <= now())
			ORDER BY last_swept_at ASC NULLS FIRST, requested_at ASC, id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tour_leads l
		SET sweep_claimed_until = now() + make_interval(secs => $3),
			last_swept_at = now()
		FROM due
		WHERE l.id = due.id
		RETURNING `+prefixedLeadColumns("l"),
		cutoff, limit, lease.Seconds())
	if err != nil {
		return nil, err
	}

	leads, err := collectLeads(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return leads, nil
}

// Reassign inserts the rejection and moves the lead to toAgentID in one
// transaction. The agent-call fields are reset for the new agent and the
// sweep lease is extended by hold; requested_at never moves, so without the
// lease another sweeper would rotate the lead again straight away.
// Resolution is left as it is.
func (r *Repository) Reassign(ctx context.Context, rec domain.RejectionRecord, toAgentID uuid.UUID, hold time.Duration) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertRejection(ctx, tx, rec); err != nil {
		return domain.Lead{}, err
	}

	lead, err := scanLead(tx.QueryRow(ctx, `
		UPDATE tour_leads
		SET agent_id = $3,
			lifecycle_status = 'NewLead',
			agent_call_status = 'Pending',
			agent_call_ref = NULL,
			agent_call_at = NULL,
			voicemail_left = false,
			sweep_claimed_until = now() + make_interval(secs => $4),
			updated_at = now()
		WHERE id = $1
			AND agent_id = $2
			AND expiry_status = 'Active'
			AND resolution_status <> 'Resolved'
			AND NOT EXISTS (
				SELECT 1 FROM lead_rejections WHERE lead_id = $1 AND agent_id = $3
			)
		RETURNING `+leadColumns,
		rec.LeadID, rec.AgentID, toAgentID, hold.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, r.classifyMiss(ctx, rec.LeadID)
	}
	if err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// Expire marks the lead Expired and Unresponsive. It never touches resolution.
func (r *Repository) Expire(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE tour_leads
		SET expiry_status = 'Expired',
			lifecycle_status = 'Unresponsive',
			sweep_claimed_until = NULL,
			updated_at = now()
		WHERE id = $1
			AND agent_id = $2
			AND expiry_status = 'Active'
			AND resolution_status <> 'Resolved'
			AND lifecycle_status <> 'ConfirmedClaimed'
		RETURNING `+leadColumns,
		leadID, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, r.classifyMiss(ctx, leadID)
	}
	return lead, err
}

func (r *Repository) classifyMiss(ctx context.Context, leadID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tour_leads WHERE id = $1)`, leadID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return notFound()
	}
	return stale()
}
