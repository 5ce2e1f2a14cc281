// Package directory reads agents, buyers and listings owned by the rest of the
// marketplace. The lead engine only ever reads from these tables.
package directory

import (
	"context"
	"errors"

	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("directory entry not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ ports.AgentDirectory = (*Repository)(nil)

// FindAgentsByServiceArea returns active agents in area, skipping excludeIDs,
// ordered by creation time then id.
func (r *Repository) FindAgentsByServiceArea(ctx context.Context, area string, excludeIDs []uuid.UUID, limit int) ([]domain.Agent, error) {
	if excludeIDs == nil {
		excludeIDs = []uuid.UUID{}
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, phone, service_area
		FROM agents
		WHERE service_area = $1
			AND active
			AND NOT (id = ANY($2))
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, area, excludeIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]domain.Agent, 0)
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.ServiceArea); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return agents, nil
}

func (r *Repository) GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error) {
	var a domain.Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, service_area FROM agents WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Phone, &a.ServiceArea)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, apperr.Wrap(apperr.KindNotFound, "agent not found", ErrNotFound)
	}
	return a, err
}

func (r *Repository) GetBuyer(ctx context.Context, id uuid.UUID) (domain.Buyer, error) {
	var b domain.Buyer
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, phone FROM buyers WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Buyer{}, apperr.Wrap(apperr.KindNotFound, "buyer not found", ErrNotFound)
	}
	return b, err
}

func (r *Repository) GetListing(ctx context.Context, id uuid.UUID) (domain.Listing, error) {
	var l domain.Listing
	err := r.pool.QueryRow(ctx, `
		SELECT id, agent_id, address, service_area FROM listings WHERE id = $1
	`, id).Scan(&l.ID, &l.AgentID, &l.Address, &l.ServiceArea)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, apperr.Wrap(apperr.KindNotFound, "listing not found", ErrNotFound)
	}
	return l, err
}
