package domain

import (
	"testing"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
)

func TestNewLinkStats(t *testing.T) {
	link := &Link{ID: 1, Slug: "abc123", TargetURL: "https://example.com"}
	visits := []*Visit{
		{LinkID: 1, IP: "8.8.8.8", Country: null.StringFrom("United States")},
		{LinkID: 1, IP: "8.8.8.8", Country: null.StringFrom("United States")},
		{LinkID: 1, IP: "1.1.1.1", Country: null.StringFrom("Australia")},
		{LinkID: 1, IP: "10.0.0.1"},
	}

	stats := NewLinkStats(link, visits)

	assert.Equal(t, link, stats.Link)
	assert.Equal(t, 4, stats.TotalVisits)
	assert.Equal(t, 3, stats.UniqueVisitors)
	assert.Equal(t, map[string]int64{"United States": 2, "Australia": 1}, stats.Countries)
}

func TestNewLinkStats_NoVisits(t *testing.T) {
	stats := NewLinkStats(&Link{ID: 1}, nil)

	assert.NotNil(t, stats.Visits)
	assert.Empty(t, stats.Visits)
	assert.Zero(t, stats.TotalVisits)
	assert.Zero(t, stats.UniqueVisitors)
	assert.Empty(t, stats.Countries)
}
