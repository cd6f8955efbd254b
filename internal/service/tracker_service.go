package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"
	"link-tracker/internal/repository"
	"link-tracker/pkg/logger"
	"link-tracker/pkg/validator"

	"github.com/sethvargo/go-retry"
)

// DefaultSlugAttempts bounds CreateLink when generated slugs keep colliding
const DefaultSlugAttempts = 5

// Cache is an optional read-through cache for slug lookups.
// A miss is (nil, nil).
type Cache interface {
	GetLink(ctx context.Context, slug string) (*domain.Link, error)
	SetLink(ctx context.Context, link *domain.Link) error
	DeleteLink(ctx context.Context, slug string) error
	Clear(ctx context.Context) error
}

// SlugGenerator produces candidate slugs; uniqueness is enforced by the store
type SlugGenerator interface {
	Generate() (string, error)
}

// GeoResolver maps an IP to a location. It must not fail: unknown is all-null.
type GeoResolver interface {
	Lookup(ctx context.Context, ip string) domain.Location
}

// TrackerService coordinates the link store, the visit log, the geo
// resolver and the cache. Handlers talk to this, never to repositories.
type TrackerService struct {
	links        repository.LinkRepository
	visits       repository.VisitRepository
	tx           repository.Transactor
	slugs        SlugGenerator
	geo          GeoResolver
	cache        Cache
	cacheEnabled bool
	logger       *logger.Logger
	slugAttempts int
}

// NewTrackerService creates a tracker service. cache may be nil.
// Deletes go through tx so a link and its visits disappear together.
func NewTrackerService(
	links repository.LinkRepository,
	visits repository.VisitRepository,
	tx repository.Transactor,
	slugs SlugGenerator,
	geo GeoResolver,
	cache Cache,
	log *logger.Logger,
) *TrackerService {
	cacheEnabled := cache != nil
	if cache == nil {
		cache = NopCache{}
	}
	return &TrackerService{
		links:        links,
		visits:       visits,
		tx:           tx,
		slugs:        slugs,
		geo:          geo,
		cache:        cache,
		cacheEnabled: cacheEnabled,
		logger:       log,
		slugAttempts: DefaultSlugAttempts,
	}
}

// WithSlugAttempts sets how many slugs CreateLink tries before giving up
func (s *TrackerService) WithSlugAttempts(n int) *TrackerService {
	if n >= 1 {
		s.slugAttempts = n
	}
	return s
}

// CreateLink normalizes targetURL and stores it under a fresh slug.
// A slug collision is retried with a new slug; other store errors are not.
func (s *TrackerService) CreateLink(ctx context.Context, targetURL string) (*domain.Link, error) {
	normalized, err := validator.NormalizeTargetURL(targetURL)
	if err != nil {
		return nil, err
	}

	var link *domain.Link
	backoff := retry.WithMaxRetries(uint64(s.slugAttempts-1), retry.NewConstant(time.Millisecond))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		slug, err := s.slugs.Generate()
		if err != nil {
			return fmt.Errorf("failed to generate slug: %w", err)
		}

		candidate := domain.NewLink(normalized, slug)
		if err := s.links.Create(ctx, candidate); err != nil {
			if errors.Is(err, domain.ErrSlugConflict) {
				metrics.RecordSlugCollision()
				s.logger.WithContext(ctx).Warn("Slug collision, retrying", "slug", slug)
				return retry.RetryableError(err)
			}
			return err
		}

		link = candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlugConflict) {
			return nil, fmt.Errorf("no free slug after %d attempts: %w", s.slugAttempts, err)
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	metrics.RecordLinkCreated()

	if err := s.cache.SetLink(ctx, link); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to cache link", "slug", link.Slug, "error", err)
	}

	return link, nil
}

// GetLink resolves a slug, checking the cache before the store.
// Returns domain.ErrNotFound for unknown slugs.
func (s *TrackerService) GetLink(ctx context.Context, slug string) (*domain.Link, error) {
	cached, err := s.cache.GetLink(ctx, slug)
	if err != nil {
		s.logger.WithContext(ctx).Warn("Link cache read failed", "slug", slug, "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	link, err := s.links.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if !s.cacheEnabled {
		return link, nil
	}
	if err := s.cache.SetLink(ctx, link); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to cache link", "slug", slug, "error", err)
		return link, nil
	}

	// A DeleteLink between the read and the fill evicts before the fill
	// lands, so re-read the store and drop the entry if the link is gone.
	current, err := s.links.GetBySlug(ctx, slug)
	if err != nil || current.ID != link.ID {
		s.evict(ctx, slug)
	}
	if err != nil {
		return nil, err
	}

	return current, nil
}

// ListLinks returns all links, newest first
func (s *TrackerService) ListLinks(ctx context.Context) ([]*domain.Link, error) {
	links, err := s.links.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

// RecordVisit geolocates the visitor and appends one visit for link.
// Returns domain.ErrNotFound when the link was deleted after it was resolved.
func (s *TrackerService) RecordVisit(ctx context.Context, link *domain.Link, visitor domain.Visitor) (*domain.Visit, error) {
	visit := domain.NewVisit(link.ID, visitor).WithLocation(s.geo.Lookup(ctx, visitor.IP))

	if err := s.visits.Create(ctx, visit); err != nil {
		metrics.RecordVisitFailure()
		if errors.Is(err, domain.ErrNotFound) {
			s.evict(ctx, link.Slug)
			return nil, fmt.Errorf("link %s was deleted: %w", link.Slug, err)
		}
		return nil, fmt.Errorf("failed to record visit for %s: %w", link.Slug, err)
	}

	metrics.RecordVisitRecorded()
	return visit, nil
}

// Stats returns a link with its visit history and aggregates
func (s *TrackerService) Stats(ctx context.Context, slug string) (*domain.LinkStats, error) {
	link, err := s.links.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	visits, err := s.visits.ListByLink(ctx, link.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get visits: %w", err)
	}

	return domain.NewLinkStats(link, visits), nil
}

// DeleteLink removes a link and its visits in one transaction
func (s *TrackerService) DeleteLink(ctx context.Context, slug string) error {
	link, err := s.links.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(links repository.LinkRepository, visits repository.VisitRepository) error {
		if err := visits.DeleteByLink(ctx, link.ID); err != nil {
			return fmt.Errorf("failed to delete visits: %w", err)
		}
		return links.Delete(ctx, link.ID)
	})
	if err != nil {
		return err
	}

	s.evict(ctx, slug)
	return nil
}

// CleanLogs removes a link's visits and keeps the link
func (s *TrackerService) CleanLogs(ctx context.Context, slug string) error {
	link, err := s.links.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if err := s.visits.DeleteByLink(ctx, link.ID); err != nil {
		return fmt.Errorf("failed to delete visits: %w", err)
	}

	return nil
}

// DeleteAll removes every visit and then every link in one transaction
func (s *TrackerService) DeleteAll(ctx context.Context) error {
	err := s.tx.WithinTx(ctx, func(links repository.LinkRepository, visits repository.VisitRepository) error {
		if err := visits.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to delete visits: %w", err)
		}
		if err := links.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to delete links: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.cache.Clear(ctx); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to clear link cache", "error", err)
	}

	return nil
}

func (s *TrackerService) evict(ctx context.Context, slug string) {
	if err := s.cache.DeleteLink(ctx, slug); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to evict link", "slug", slug, "error", err)
	}
}

// NopCache is used when Redis is disabled
type NopCache struct{}

func (NopCache) GetLink(context.Context, string) (*domain.Link, error) { return nil, nil }
func (NopCache) SetLink(context.Context, *domain.Link) error           { return nil }
func (NopCache) DeleteLink(context.Context, string) error              { return nil }
func (NopCache) Clear(context.Context) error                           { return nil }
