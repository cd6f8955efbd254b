package postgres

import (
	"context"
	"errors"
	"fmt"

	"link-tracker/internal/domain"
	"link-tracker/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// visitRepository is the PostgreSQL visit log
type visitRepository struct {
	db querier
}

// NewVisitRepository creates a new PostgreSQL visit repository
func NewVisitRepository(db *pgxpool.Pool) repository.VisitRepository {
	return &visitRepository{db: db}
}

// Create inserts a new visit event. The link row is share-locked for the
// insert, so a visit is never written behind a concurrent DeleteByLink.
func (r *visitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	query := `
		WITH link AS (
			SELECT id FROM links WHERE id = $1 FOR SHARE
		)
		INSERT INTO visits (
			link_id, ip, user_agent, referrer,
			country, region, city, created_at
		)
		SELECT link.id, $2::varchar, $3::text, $4::text, $5::varchar, $6::varchar, $7::varchar, $8::timestamptz
		FROM link
		RETURNING id
	`

	err := r.db.QueryRow(
		ctx,
		query,
		visit.LinkID,
		visit.IP,
		visit.UserAgent,
		visit.Referrer,
		visit.Country,
		visit.Region,
		visit.City,
		visit.CreatedAt,
	).Scan(&visit.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to record visit: %w", err)
	}

	return nil
}

// ListByLink returns the full visit history of a link, newest first
func (r *visitRepository) ListByLink(ctx context.Context, linkID int64) ([]*domain.Visit, error) {
	query := `
		SELECT id, link_id, ip, user_agent, referrer,
		       country, region, city, created_at
		FROM visits
		WHERE link_id = $1
		ORDER BY id DESC
	`

	rows, err := r.db.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to get visits: %w", err)
	}
	defer rows.Close()

	visits := []*domain.Visit{}
	for rows.Next() {
		v := &domain.Visit{}
		err := rows.Scan(
			&v.ID,
			&v.LinkID,
			&v.IP,
			&v.UserAgent,
			&v.Referrer,
			&v.Country,
			&v.Region,
			&v.City,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visits: %w", err)
	}

	return visits, nil
}

// DeleteByLink locks the link row first; inside a transaction that makes
// concurrent Create calls for the link wait until the delete commits.
func (r *visitRepository) DeleteByLink(ctx context.Context, linkID int64) error {
	if _, err := r.db.Exec(ctx, `SELECT id FROM links WHERE id = $1 FOR UPDATE`, linkID); err != nil {
		return fmt.Errorf("failed to lock link: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM visits WHERE link_id = $1`, linkID); err != nil {
		return fmt.Errorf("failed to delete visits: %w", err)
	}
	return nil
}

func (r *visitRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `SELECT id FROM links FOR UPDATE`); err != nil {
		return fmt.Errorf("failed to lock links: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM visits`); err != nil {
		return fmt.Errorf("failed to delete visits: %w", err)
	}
	return nil
}
