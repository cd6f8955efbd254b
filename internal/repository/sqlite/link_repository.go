package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"link-tracker/internal/domain"
	"link-tracker/internal/repository"
)

type linkRepository struct {
	db querier
}

// NewLinkRepository creates a SQLite link repository
func NewLinkRepository(db *sql.DB) repository.LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *domain.Link) error {
	query := `
		INSERT INTO links (slug, target_url, created_at)
		VALUES (?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query, link.Slug, link.TargetURL, link.CreatedAt).Scan(&link.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSlugConflict
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetBySlug(ctx context.Context, slug string) (*domain.Link, error) {
	query := `
		SELECT id, slug, target_url, created_at
		FROM links
		WHERE slug = ?
	`

	link := &domain.Link{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&link.ID,
		&link.Slug,
		&link.TargetURL,
		&link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

func (r *linkRepository) List(ctx context.Context) ([]*domain.Link, error) {
	query := `
		SELECT id, slug, target_url, created_at
		FROM links
		ORDER BY id DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := []*domain.Link{}
	for rows.Next() {
		link := &domain.Link{}
		if err := rows.Scan(&link.ID, &link.Slug, &link.TargetURL, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

func (r *linkRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *linkRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM links`); err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}
	return nil
}
