package domain

// LinkStats is the stats page payload: the link, its full visit history
// (most recent first) and a few aggregates computed from that history.
type LinkStats struct {
	Link           *Link            `json:"link"`
	Visits         []*Visit         `json:"visits"`
	TotalVisits    int              `json:"total_visits"`
	UniqueVisitors int              `json:"unique_visitors"`
	Countries      map[string]int64 `json:"countries"`
}

// NewLinkStats aggregates the visit history of a link
func NewLinkStats(link *Link, visits []*Visit) *LinkStats {
	if visits == nil {
		visits = []*Visit{}
	}

	ips := make(map[string]struct{}, len(visits))
	countries := make(map[string]int64)
	for _, v := range visits {
		ips[v.IP] = struct{}{}
		if v.Country.Valid && v.Country.String != "" {
			countries[v.Country.String]++
		}
	}

	return &LinkStats{
		Link:           link,
		Visits:         visits,
		TotalVisits:    len(visits),
		UniqueVisitors: len(ips),
		Countries:      countries,
	}
}
