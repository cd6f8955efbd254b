package store

import (
	"context"
	"testing"

	"link-tracker/internal/config"
	"link-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{
		Driver: config.DriverSQLite,
		Path:   "file:store_open_test?mode=memory&cache=shared",
	}}

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	link := domain.NewLink("https://example.com", "store1")
	require.NoError(t, s.Links.Create(context.Background(), link))

	visit := domain.NewVisit(link.ID, domain.Visitor{IP: "8.8.8.8"})
	assert.NoError(t, s.Visits.Create(context.Background(), visit))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "mongo"}})

	assert.ErrorContains(t, err, "unsupported store driver")
}
