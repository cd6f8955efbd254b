package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"link-tracker/internal/domain"
	"link-tracker/internal/repository"
	"link-tracker/pkg/logger"
	"link-tracker/pkg/validator"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==================== MOCKS ====================

type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) Create(ctx context.Context, link *domain.Link) error {
	args := m.Called(ctx, link)
	if args.Error(0) == nil {
		link.ID = 1
	}
	return args.Error(0)
}

func (m *MockLinkRepository) GetBySlug(ctx context.Context, slug string) (*domain.Link, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockLinkRepository) List(ctx context.Context) ([]*domain.Link, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Link), args.Error(1)
}

func (m *MockLinkRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLinkRepository) DeleteAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockVisitRepository struct {
	mock.Mock
}

func (m *MockVisitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	return m.Called(ctx, visit).Error(0)
}

func (m *MockVisitRepository) ListByLink(ctx context.Context, linkID int64) ([]*domain.Visit, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Visit), args.Error(1)
}

func (m *MockVisitRepository) DeleteByLink(ctx context.Context, linkID int64) error {
	return m.Called(ctx, linkID).Error(0)
}

func (m *MockVisitRepository) DeleteAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetLink(ctx context.Context, slug string) (*domain.Link, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockCache) SetLink(ctx context.Context, link *domain.Link) error {
	return m.Called(ctx, link).Error(0)
}

func (m *MockCache) DeleteLink(ctx context.Context, slug string) error {
	return m.Called(ctx, slug).Error(0)
}

func (m *MockCache) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockGeoResolver struct {
	mock.Mock
}

func (m *MockGeoResolver) Lookup(ctx context.Context, ip string) domain.Location {
	return m.Called(ctx, ip).Get(0).(domain.Location)
}

// sequenceGenerator returns the given slugs in order
type sequenceGenerator struct {
	slugs []string
	calls int
}

func (g *sequenceGenerator) Generate() (string, error) {
	slug := g.slugs[g.calls%len(g.slugs)]
	g.calls++
	return slug, nil
}

type failingGenerator struct{}

func (failingGenerator) Generate() (string, error) {
	return "", errors.New("entropy exhausted")
}

// fakeTransactor hands the fixture's mocks to fn and counts transactions
type fakeTransactor struct {
	links  repository.LinkRepository
	visits repository.VisitRepository
	calls  int
}

func (t *fakeTransactor) WithinTx(_ context.Context, fn func(repository.LinkRepository, repository.VisitRepository) error) error {
	t.calls++
	return fn(t.links, t.visits)
}

type fixture struct {
	links  *MockLinkRepository
	visits *MockVisitRepository
	tx     *fakeTransactor
	cache  *MockCache
	geo    *MockGeoResolver
}

func newFixture() *fixture {
	f := &fixture{
		links:  new(MockLinkRepository),
		visits: new(MockVisitRepository),
		cache:  new(MockCache),
		geo:    new(MockGeoResolver),
	}
	f.tx = &fakeTransactor{links: f.links, visits: f.visits}
	return f
}

func (f *fixture) service(slugs SlugGenerator) *TrackerService {
	return NewTrackerService(f.links, f.visits, f.tx, slugs, f.geo, f.cache, logger.NewWithWriter("error", io.Discard))
}

// ==================== TESTS ====================

func TestCreateLink_NormalizesScheme(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture()
	svc := f.service(&sequenceGenerator{slugs: []string{"abc123"}})

	f.links.On("Create", mock.Anything, mock.AnythingOfType("*domain.Link")).Return(nil)
	f.cache.On("SetLink", mock.Anything, mock.AnythingOfType("*domain.Link")).Return(nil)

	// Act
	link, err := svc.CreateLink(ctx, "  example.com ")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "abc123", link.Slug)
	assert.Equal(t, "https://example.com", link.TargetURL)
	assert.Equal(t, int64(1), link.ID)
	f.links.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestCreateLink_KeepsExplicitScheme(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(&sequenceGenerator{slugs: []string{"abc123"}})

	f.links.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.cache.On("SetLink", mock.Anything, mock.Anything).Return(nil)

	link, err := svc.CreateLink(ctx, "http://example.com/path?q=1")

	require.NoError(t, err)
	assert.Equal(t, "http://example.com/path?q=1", link.TargetURL)
}

func TestCreateLink_EmptyURL(t *testing.T) {
	f := newFixture()
	svc := f.service(&sequenceGenerator{slugs: []string{"abc123"}})

	link, err := svc.CreateLink(context.Background(), "   ")

	assert.ErrorIs(t, err, validator.ErrEmptyURL)
	assert.Nil(t, link)
	f.links.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateLink_RetriesOnSlugCollision(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture()
	gen := &sequenceGenerator{slugs: []string{"taken1", "taken2", "free01"}}
	svc := f.service(gen)

	f.links.On("Create", mock.Anything, mock.MatchedBy(func(l *domain.Link) bool { return l.Slug != "free01" })).
		Return(domain.ErrSlugConflict).Twice()
	f.links.On("Create", mock.Anything, mock.MatchedBy(func(l *domain.Link) bool { return l.Slug == "free01" })).
		Return(nil).Once()
	f.cache.On("SetLink", mock.Anything, mock.Anything).Return(nil)

	// Act
	link, err := svc.CreateLink(ctx, "example.com")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "free01", link.Slug)
	assert.Equal(t, 3, gen.calls)
	f.links.AssertExpectations(t)
}

func TestCreateLink_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	gen := &sequenceGenerator{slugs: []string{"same"}}
	svc := f.service(gen).WithSlugAttempts(3)

	f.links.On("Create", mock.Anything, mock.Anything).Return(domain.ErrSlugConflict)

	link, err := svc.CreateLink(ctx, "example.com")

	assert.Nil(t, link)
	assert.ErrorIs(t, err, domain.ErrSlugConflict)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Equal(t, 3, gen.calls)
	f.cache.AssertNotCalled(t, "SetLink", mock.Anything, mock.Anything)
}

func TestCreateLink_StoreErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	gen := &sequenceGenerator{slugs: []string{"abc123"}}
	svc := f.service(gen)

	f.links.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := svc.CreateLink(ctx, "example.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, gen.calls)
}

func TestCreateLink_GeneratorFailure(t *testing.T) {
	f := newFixture()
	svc := f.service(failingGenerator{})

	_, err := svc.CreateLink(context.Background(), "example.com")

	assert.ErrorContains(t, err, "entropy exhausted")
}

func TestCreateLink_CacheFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	svc := f.service(&sequenceGenerator{slugs: []string{"abc123"}})

	f.links.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.cache.On("SetLink", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	link, err := svc.CreateLink(context.Background(), "example.com")

	require.NoError(t, err)
	assert.NotNil(t, link)
}

func TestGetLink_CacheHit(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)
	cached := &domain.Link{ID: 9, Slug: "abc123", TargetURL: "https://example.com"}

	f.cache.On("GetLink", ctx, "abc123").Return(cached, nil)

	// Act
	link, err := svc.GetLink(ctx, "abc123")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, cached, link)
	f.links.AssertNotCalled(t, "GetBySlug", mock.Anything, mock.Anything)
}

func TestGetLink_CacheMissFillsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)
	stored := &domain.Link{ID: 9, Slug: "abc123", TargetURL: "https://example.com"}

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetBySlug", ctx, "abc123").Return(stored, nil)
	f.cache.On("SetLink", ctx, stored).Return(nil)

	link, err := svc.GetLink(ctx, "abc123")

	require.NoError(t, err)
	assert.Equal(t, stored, link)
	f.cache.AssertExpectations(t)
}

func TestGetLink_LinkDeletedDuringFillIsEvicted(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)
	stored := &domain.Link{ID: 9, Slug: "abc123", TargetURL: "https://example.com"}

	f.cache.On("GetLink", ctx, "abc123").Return(nil, nil)
	f.links.On("GetBySlug", ctx, "abc123").Return(stored, nil).Once()
	f.cache.On("SetLink", ctx, stored).Return(nil)
	// a DeleteLink commits between the first read and the fill
	f.links.On("GetBySlug", ctx, "abc123").Return(nil, domain.ErrNotFound).Once()
	f.cache.On("DeleteLink", ctx, "abc123").Return(nil).Once()

	// Act
	link, err := svc.GetLink(ctx, "abc123")

	// Assert
	assert.Nil(t, link)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.cache.AssertExpectations(t)
	f.links.AssertExpectations(t)
}

func TestGetLink_CacheErrorFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)
	stored := &domain.Link{ID: 9, Slug: "abc123"}

	f.cache.On("GetLink", ctx, "abc123").Return(nil, errors.New("redis down"))
	f.links.On("GetBySlug", ctx, "abc123").Return(stored, nil)
	f.cache.On("SetLink", ctx, stored).Return(errors.New("redis down"))

	link, err := svc.GetLink(ctx, "abc123")

	require.NoError(t, err)
	assert.Equal(t, stored, link)
}

func TestGetLink_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	f.cache.On("GetLink", ctx, "nope").Return(nil, nil)
	f.links.On("GetBySlug", ctx, "nope").Return(nil, domain.ErrNotFound)

	_, err := svc.GetLink(ctx, "nope")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.cache.AssertNotCalled(t, "SetLink", mock.Anything, mock.Anything)
}

func TestRecordVisit_AttachesLocation(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)
	link := &domain.Link{ID: 4, Slug: "abc123"}
	loc := domain.Location{Country: null.StringFrom("United States"), City: null.StringFrom("Mountain View")}

	f.geo.On("Lookup", ctx, "8.8.8.8").Return(loc)
	f.visits.On("Create", ctx, mock.MatchedBy(func(v *domain.Visit) bool {
		return v.LinkID == 4 && v.IP == "8.8.8.8" && v.Country.String == "United States" && !v.Referrer.Valid
	})).Return(nil)

	// Act
	visit, err := svc.RecordVisit(ctx, link, domain.Visitor{IP: "8.8.8.8", UserAgent: "curl/8.0"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Mountain View", visit.City.String)
	assert.False(t, visit.Region.Valid)
	f.visits.AssertExpectations(t)
}

func TestRecordVisit_UnknownLocationStillRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	f.geo.On("Lookup", ctx, "10.0.0.1").Return(domain.UnknownLocation())
	f.visits.On("Create", ctx, mock.Anything).Return(nil)

	visit, err := svc.RecordVisit(ctx, &domain.Link{ID: 1}, domain.Visitor{IP: "10.0.0.1", Referrer: "https://ref.example"})

	require.NoError(t, err)
	assert.False(t, visit.Country.Valid)
	assert.Equal(t, "https://ref.example", visit.Referrer.String)
}

func TestRecordVisit_StoreFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	f.geo.On("Lookup", ctx, mock.Anything).Return(domain.UnknownLocation())
	f.visits.On("Create", ctx, mock.Anything).Return(errors.New("database is locked"))

	visit, err := svc.RecordVisit(ctx, &domain.Link{ID: 1, Slug: "abc123"}, domain.Visitor{IP: "8.8.8.8"})

	assert.Nil(t, visit)
	assert.ErrorContains(t, err, "database is locked")
}

func TestRecordVisit_DeletedLinkIsEvicted(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)
	link := &domain.Link{ID: 1, Slug: "abc123"}

	f.geo.On("Lookup", ctx, mock.Anything).Return(domain.UnknownLocation())
	f.visits.On("Create", ctx, mock.Anything).Return(domain.ErrNotFound)
	f.cache.On("DeleteLink", ctx, "abc123").Return(nil).Once()

	visit, err := svc.RecordVisit(ctx, link, domain.Visitor{IP: "8.8.8.8"})

	assert.Nil(t, visit)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.cache.AssertExpectations(t)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)
	link := &domain.Link{ID: 2, Slug: "abc123"}
	visits := []*domain.Visit{
		{ID: 3, LinkID: 2, IP: "8.8.8.8", Country: null.StringFrom("United States")},
		{ID: 2, LinkID: 2, IP: "8.8.8.8", Country: null.StringFrom("United States")},
		{ID: 1, LinkID: 2, IP: "1.1.1.1"},
	}

	f.links.On("GetBySlug", ctx, "abc123").Return(link, nil)
	f.visits.On("ListByLink", ctx, int64(2)).Return(visits, nil)

	stats, err := svc.Stats(ctx, "abc123")

	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalVisits)
	assert.Equal(t, 2, stats.UniqueVisitors)
	assert.Equal(t, int64(2), stats.Countries["United States"])
	assert.Equal(t, int64(3), stats.Visits[0].ID)
}

func TestStats_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	f.links.On("GetBySlug", ctx, "nope").Return(nil, domain.ErrNotFound)

	_, err := svc.Stats(ctx, "nope")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteLink_RemovesVisitsThenLink(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)
	link := &domain.Link{ID: 5, Slug: "abc123"}

	f.links.On("GetBySlug", ctx, "abc123").Return(link, nil)
	deleteVisits := f.visits.On("DeleteByLink", ctx, int64(5)).Return(nil)
	f.links.On("Delete", ctx, int64(5)).Return(nil).NotBefore(deleteVisits)
	f.cache.On("DeleteLink", ctx, "abc123").Return(nil)

	// Act
	err := svc.DeleteLink(ctx, "abc123")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, f.tx.calls)
	f.links.AssertExpectations(t)
	f.visits.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestDeleteLink_FailedDeleteKeepsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	f.links.On("GetBySlug", ctx, "abc123").Return(&domain.Link{ID: 5, Slug: "abc123"}, nil)
	f.visits.On("DeleteByLink", ctx, int64(5)).Return(nil)
	f.links.On("Delete", ctx, int64(5)).Return(errors.New("database is locked"))

	err := svc.DeleteLink(ctx, "abc123")

	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, 1, f.tx.calls)
	f.cache.AssertNotCalled(t, "DeleteLink", mock.Anything, mock.Anything)
}

func TestDeleteLink_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	f.links.On("GetBySlug", ctx, "nope").Return(nil, domain.ErrNotFound)

	err := svc.DeleteLink(ctx, "nope")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.visits.AssertNotCalled(t, "DeleteByLink", mock.Anything, mock.Anything)
}

func TestCleanLogs_KeepsLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	f.links.On("GetBySlug", ctx, "abc123").Return(&domain.Link{ID: 5, Slug: "abc123"}, nil)
	f.visits.On("DeleteByLink", ctx, int64(5)).Return(nil)

	err := svc.CleanLogs(ctx, "abc123")

	require.NoError(t, err)
	f.links.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.visits.AssertExpectations(t)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	deleteVisits := f.visits.On("DeleteAll", ctx).Return(nil)
	f.links.On("DeleteAll", ctx).Return(nil).NotBefore(deleteVisits)
	f.cache.On("Clear", ctx).Return(nil)

	require.NoError(t, svc.DeleteAll(ctx))

	assert.Equal(t, 1, f.tx.calls)
	f.links.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestDeleteAll_VisitFailureStops(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := f.service(nil)

	f.visits.On("DeleteAll", ctx).Return(errors.New("locked"))

	err := svc.DeleteAll(ctx)

	assert.ErrorContains(t, err, "locked")
	f.links.AssertNotCalled(t, "DeleteAll", mock.Anything)
	f.cache.AssertNotCalled(t, "Clear", mock.Anything)
}

func TestNewTrackerService_NilCache(t *testing.T) {
	ctx := context.Background()
	links := new(MockLinkRepository)
	visits := new(MockVisitRepository)
	tx := &fakeTransactor{links: links, visits: visits}
	svc := NewTrackerService(links, visits, tx, nil, new(MockGeoResolver), nil, logger.NewWithWriter("error", io.Discard))
	stored := &domain.Link{ID: 1, Slug: "abc123"}

	links.On("GetBySlug", ctx, "abc123").Return(stored, nil).Once()

	link, err := svc.GetLink(ctx, "abc123")

	require.NoError(t, err)
	assert.Equal(t, stored, link)
	links.AssertExpectations(t)
}
