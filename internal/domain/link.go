package domain

import (
	"errors"
	"time"
)

// Link maps a short slug to the URL a visitor is redirected to.
// A Link owns no visits directly: visits reference it by ID only, so removing
// a Link means removing its visits first (see TrackerService.DeleteLink).
type Link struct {
	ID        int64     `json:"id"`         // Assigned by the store on insert
	Slug      string    `json:"slug"`       // Unique, URL-safe identifier (e.g. "aB3_x-")
	TargetURL string    `json:"target_url"` // Always carries an http/https scheme
	CreatedAt time.Time `json:"created_at"`
}

// Domain errors - repositories translate driver errors into these so callers
// can branch with errors.Is regardless of the backing engine
var (
	ErrNotFound     = errors.New("link not found")
	ErrSlugConflict = errors.New("slug already exists")
)

// NewLink creates a Link that has not been persisted yet
func NewLink(targetURL, slug string) *Link {
	return &Link{
		Slug:      slug,
		TargetURL: targetURL,
		CreatedAt: time.Now().UTC(),
	}
}

// TrackingPath is the path visitors open to be counted and redirected
func (l *Link) TrackingPath() string {
	return "/t/" + l.Slug
}
