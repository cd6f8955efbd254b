// Package geo resolves visitor IP addresses to a coarse location using the
// ipwho.is JSON API (or any service answering in the same shape).
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"

	"github.com/guregu/null"
)

// DefaultTimeout bounds a single lookup
const DefaultTimeout = 5 * time.Second

// Resolver looks up IP locations over HTTP. Lookup never returns an error:
// any failure yields domain.UnknownLocation(), and a lookup is never retried.
type Resolver struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver creates a resolver querying baseURL + ip, e.g. "http://ipwho.is/8.8.8.8"
func NewResolver(baseURL string, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Resolver{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
	}
}

type lookupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// Lookup returns the location of ip. Private, loopback and malformed
// addresses are not sent to the remote service.
func (r *Resolver) Lookup(ctx context.Context, ip string) domain.Location {
	if !isPublicIP(ip) {
		metrics.RecordGeoLookup("skipped")
		return domain.UnknownLocation()
	}

	start := time.Now()
	loc, err := r.lookup(ctx, ip)
	metrics.GeoLookupDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RecordGeoLookup("failed")
		r.logger.Warn("Geo lookup failed", "ip", ip, "error", err)
		return domain.UnknownLocation()
	}

	metrics.RecordGeoLookup("ok")
	return loc
}

func (r *Resolver) lookup(ctx context.Context, ip string) (domain.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+url.PathEscape(ip), nil)
	if err != nil {
		return domain.Location{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Location{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Location{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Success {
		return domain.Location{}, fmt.Errorf("lookup rejected: %s", out.Message)
	}

	return domain.Location{
		Country: nullIfBlank(out.Country),
		Region:  nullIfBlank(out.Region),
		City:    nullIfBlank(out.City),
	}, nil
}

func nullIfBlank(s string) null.String {
	s = strings.TrimSpace(s)
	return null.NewString(s, s != "")
}

func isPublicIP(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() ||
		parsed.IsPrivate() ||
		parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() ||
		parsed.IsMulticast())
}
