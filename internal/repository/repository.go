package repository

import (
	"context"

	"link-tracker/internal/domain"
)

// LinkRepository defines data access for tracking links.
// Implementations translate engine errors into domain.ErrNotFound and
// domain.ErrSlugConflict so callers can branch with errors.Is.
type LinkRepository interface {
	// Create inserts the link and sets link.ID.
	// Returns domain.ErrSlugConflict when the slug is taken.
	Create(ctx context.Context, link *domain.Link) error

	// GetBySlug returns domain.ErrNotFound when no link has that slug
	GetBySlug(ctx context.Context, slug string) (*domain.Link, error)

	// List returns every link, most recently created first
	List(ctx context.Context) ([]*domain.Link, error)

	// Delete removes a single link. It does not touch visits; run it in a
	// Transactor together with VisitRepository.DeleteByLink.
	Delete(ctx context.Context, id int64) error

	DeleteAll(ctx context.Context) error
}

// VisitRepository defines data access for the visit log.
// Visits are append-only; they are only ever removed in bulk.
type VisitRepository interface {
	// Create inserts the visit and sets visit.ID.
	// Returns domain.ErrNotFound when visit.LinkID no longer exists.
	Create(ctx context.Context, visit *domain.Visit) error

	// ListByLink returns the visits of a link, most recent first
	ListByLink(ctx context.Context, linkID int64) ([]*domain.Visit, error)

	DeleteByLink(ctx context.Context, linkID int64) error

	DeleteAll(ctx context.Context) error
}

// Transactor runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(links LinkRepository, visits VisitRepository) error) error
}
