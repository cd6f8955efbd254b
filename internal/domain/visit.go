package domain

import (
	"time"

	"github.com/guregu/null"
)

// Visit is one recorded redirect. It is written once and never updated.
// Nullable columns use null.String so that SQL NULL and JSON null line up.
type Visit struct {
	ID        int64       `json:"id"`
	LinkID    int64       `json:"link_id"`
	IP        string      `json:"ip"`
	UserAgent string      `json:"user_agent"`
	Referrer  null.String `json:"referrer"`
	Country   null.String `json:"country"`
	Region    null.String `json:"region"`
	City      null.String `json:"city"`
	CreatedAt time.Time   `json:"created_at"`
}

// Visitor is what the redirect handler knows about the client
type Visitor struct {
	IP        string
	UserAgent string
	Referrer  string
}

// Location is a coarse geolocation. Every field is null when the lookup failed.
type Location struct {
	Country null.String `json:"country"`
	Region  null.String `json:"region"`
	City    null.String `json:"city"`
}

// UnknownLocation is returned by resolvers on any failure
func UnknownLocation() Location {
	return Location{}
}

// NewVisit creates a visit event for the given link
func NewVisit(linkID int64, v Visitor) *Visit {
	return &Visit{
		LinkID:    linkID,
		IP:        v.IP,
		UserAgent: v.UserAgent,
		Referrer:  null.NewString(v.Referrer, v.Referrer != ""),
		CreatedAt: time.Now().UTC(),
	}
}

// WithLocation attaches geolocation data to the visit
func (v *Visit) WithLocation(loc Location) *Visit {
	v.Country = loc.Country
	v.Region = loc.Region
	v.City = loc.City
	return v
}
