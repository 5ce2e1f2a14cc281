// Package repository is the Postgres lead store.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("lead not found")
	ErrStaleState    = errors.New("lead state changed")
	ErrAlreadyExists = errors.New("lead already exists")
)

var leadColumnList = []string{
	"id", "buyer_id", "agent_id", "listing_id", "service_area", "requested_at",
	"lifecycle_status", "expiry_status", "resolution_status", "buyer_call_status", "agent_call_status",
	"voicemail_left", "buyer_call_ref", "agent_call_ref", "buyer_call_at", "agent_call_at", "created_at", "updated_at",
}

var leadColumns = strings.Join(leadColumnList, ", ")

func prefixedLeadColumns(alias string) string {
	cols := make([]string, len(leadColumnList))
	for i, col := range leadColumnList {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Compile-time check that Repository implements the lead store port.
var _ ports.LeadStore = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tour_leads (
			id, buyer_id, agent_id, listing_id, service_area, requested_at,
			lifecycle_status, expiry_status, resolution_status, buyer_call_status, agent_call_status, voicemail_left
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+leadColumns,
		lead.ID, lead.BuyerID, lead.AgentID, lead.ListingID, lead.ServiceArea, lead.RequestedAt,
		lead.LifecycleStatus, lead.ExpiryStatus, lead.ResolutionStatus, lead.BuyerCallStatus, lead.AgentCallStatus, lead.VoicemailLeft,
	)

	created, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, apperr.Wrap(apperr.KindConflict, "lead already exists", ErrAlreadyExists)
	}
	if err != nil {
		return domain.Lead{}, err
	}
	return created, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM tour_leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, notFound()
	}
	return lead, err
}

// ListActiveLeadsOlderThan returns active, unclaimed-by-agent leads requested at or before cutoff, oldest first.
func (r *Repository) ListActiveLeadsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM tour_leads
		WHERE expiry_status = 'Active'
			AND resolution_status <> 'Resolved'
			AND lifecycle_status <> 'ConfirmedClaimed'
			AND requested_at <= $1
		ORDER BY requested_at ASC, id ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}

func notFound() error {
	return apperr.Wrap(apperr.KindNotFound, "lead not found", ErrNotFound)
}

func stale() error {
	return apperr.Wrap(apperr.KindConflict, "lead state changed", ErrStaleState)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (domain.Lead, error) {
	var (
		lead       domain.Lead
		lifecycle  string
		expiry     string
		resolution string
		buyerCall  string
		agentCall  string
	)
	err := row.Scan(
		&lead.ID, &lead.BuyerID, &lead.AgentID, &lead.ListingID, &lead.ServiceArea, &lead.RequestedAt,
		&lifecycle, &expiry, &resolution, &buyerCall, &agentCall,
		&lead.VoicemailLeft, &lead.BuyerCallRef, &lead.AgentCallRef, &lead.BuyerCallAt, &lead.AgentCallAt,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.LifecycleStatus = domain.LifecycleStatus(lifecycle)
	lead.ExpiryStatus = domain.ExpiryStatus(expiry)
	lead.ResolutionStatus = domain.ResolutionStatus(resolution)
	lead.BuyerCallStatus = domain.CallStatus(buyerCall)
	lead.AgentCallStatus = domain.CallStatus(agentCall)
	return lead, nil
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	items := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}
