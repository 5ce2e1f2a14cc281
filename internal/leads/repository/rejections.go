package repository

import (
	"context"

	"tour_portal_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateRejection appends a rejection record. Recording the same agent twice
// for a lead is a no-op.
func (r *Repository) CreateRejection(ctx context.Context, rec domain.RejectionRecord) error {
	return insertRejection(ctx, r.pool, rec)
}

func insertRejection(ctx context.Context, q execer, rec domain.RejectionRecord) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO lead_rejections (id, lead_id, agent_id, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lead_id, agent_id) DO NOTHING
	`, id, rec.LeadID, rec.AgentID, rec.Reason)
	return err
}

// ListRejections returns the rejection history of a lead, oldest first.
func (r *Repository) ListRejections(ctx context.Context, leadID uuid.UUID) ([]domain.RejectionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, agent_id, reason, created_at
		FROM lead_rejections
		WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.RejectionRecord, 0)
	for rows.Next() {
		var rec domain.RejectionRecord
		if err := rows.Scan(&rec.ID, &rec.LeadID, &rec.AgentID, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}
