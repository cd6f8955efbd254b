package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"link-tracker/internal/domain"
	"link-tracker/internal/repository"
)

type visitRepository struct {
	db querier
}

// NewVisitRepository creates a SQLite visit log
func NewVisitRepository(db *sql.DB) repository.VisitRepository {
	return &visitRepository{db: db}
}

func (r *visitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	// Selecting from links makes the insert a no-op once the link is gone
	query := `
		INSERT INTO visits (link_id, ip, user_agent, referrer, country, region, city, created_at)
		SELECT id, ?, ?, ?, ?, ?, ?, ?
		FROM links
		WHERE id = ?
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		visit.IP,
		visit.UserAgent,
		visit.Referrer,
		visit.Country,
		visit.Region,
		visit.City,
		visit.CreatedAt,
		visit.LinkID,
	).Scan(&visit.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to record visit: %w", err)
	}

	return nil
}

func (r *visitRepository) ListByLink(ctx context.Context, linkID int64) ([]*domain.Visit, error) {
	query := `
		SELECT id, link_id, ip, user_agent, referrer, country, region, city, created_at
		FROM visits
		WHERE link_id = ?
		ORDER BY id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
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

func (r *visitRepository) DeleteByLink(ctx context.Context, linkID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM visits WHERE link_id = ?`, linkID); err != nil {
		return fmt.Errorf("failed to delete visits: %w", err)
	}
	return nil
}

func (r *visitRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM visits`); err != nil {
		return fmt.Errorf("failed to delete visits: %w", err)
	}
	return nil
}
