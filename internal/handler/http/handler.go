package http

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"
	"link-tracker/pkg/logger"
	"link-tracker/pkg/validator"

	qrcode "github.com/skip2/go-qrcode"
)

// TrackerService defines the service methods needed by the handler
type TrackerService interface {
	CreateLink(ctx context.Context, targetURL string) (*domain.Link, error)
	GetLink(ctx context.Context, slug string) (*domain.Link, error)
	ListLinks(ctx context.Context) ([]*domain.Link, error)
	RecordVisit(ctx context.Context, link *domain.Link, visitor domain.Visitor) (*domain.Visit, error)
	Stats(ctx context.Context, slug string) (*domain.LinkStats, error)
	DeleteLink(ctx context.Context, slug string) error
	CleanLogs(ctx context.Context, slug string) error
	DeleteAll(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	tracker TrackerService
	logger  *logger.Logger
	baseURL string // Prefix for tracking URLs (e.g. "http://localhost:8080")
}

// NewHandler creates a new HTTP handler
func NewHandler(tracker TrackerService, log *logger.Logger, baseURL string) *Handler {
	return &Handler{
		tracker: tracker,
		logger:  log,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type CreateLinkRequest struct {
	TargetURL string `json:"target_url"`
}

type LinkResponse struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	TargetURL   string    `json:"target_url"`
	TrackingURL string    `json:"tracking_url"`
	StatsURL    string    `json:"stats_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateLinkResponse struct {
	Link  LinkResponse   `json:"link"`
	Links []LinkResponse `json:"links"`
}

type StatsResponse struct {
	Link           LinkResponse     `json:"link"`
	TotalVisits    int              `json:"total_visits"`
	UniqueVisitors int              `json:"unique_visitors"`
	Countries      map[string]int64 `json:"countries"`
	Visits         []*domain.Visit  `json:"visits"`
}

func (h *Handler) toLinkResponse(link *domain.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		Slug:        link.Slug,
		TargetURL:   link.TargetURL,
		TrackingURL: h.baseURL + link.TrackingPath(),
		StatsURL:    h.baseURL + "/stats/" + link.Slug,
		CreatedAt:   link.CreatedAt,
	}
}

func (h *Handler) toLinkResponses(links []*domain.Link) []LinkResponse {
	out := make([]LinkResponse, 0, len(links))
	for _, link := range links {
		out = append(out, h.toLinkResponse(link))
	}
	return out
}

// Home handles GET /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{
		"service": "link-tracker",
		"tracker": h.baseURL + "/tracker",
	}, "")
}

// ListLinks handles GET /tracker
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.tracker.ListLinks(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error("Failed to list links", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list links")
		return
	}

	respondSuccess(w, http.StatusOK, h.toLinkResponses(links), "")
}

// CreateLink handles POST /tracker.
// The target URL comes from a JSON body or from the target_url form field.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	targetURL, err := readTargetURL(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	link, err := h.tracker.CreateLink(r.Context(), targetURL)
	if err != nil {
		if errors.Is(err, validator.ErrEmptyURL) || errors.Is(err, validator.ErrInvalidURL) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithContext(r.Context()).Error("Failed to create link", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create link")
		return
	}

	links, err := h.tracker.ListLinks(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error("Failed to list links", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list links")
		return
	}

	h.logger.WithContext(r.Context()).Info("Link created", "slug", link.Slug, "target_url", link.TargetURL)

	respondSuccess(w, http.StatusCreated, CreateLinkResponse{
		Link:  h.toLinkResponse(link),
		Links: h.toLinkResponses(links),
	}, "Link created successfully")
}

func readTargetURL(r *http.Request) (string, error) {
	defer r.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req CreateLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.TargetURL, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.PostForm.Get("target_url"), nil
}

// Redirect handles GET /t/{slug}: record one visit, then 302 to the target.
// A failed visit write is logged; the visitor is redirected regardless.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	link, err := h.tracker.GetLink(r.Context(), slug)
	if err != nil {
		h.respondLookupError(w, r, err, slug)
		return
	}

	visitor := domain.Visitor{
		IP:        extractIP(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	}

	if _, err := h.tracker.RecordVisit(r.Context(), link, visitor); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.respondLookupError(w, r, err, slug)
			return
		}
		h.logger.WithContext(r.Context()).Error("Failed to record visit", "slug", slug, "error", err)
	}

	metrics.RecordRedirect()
	http.Redirect(w, r, link.TargetURL, http.StatusFound)
}

// Stats handles GET /stats/{slug}
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	stats, err := h.tracker.Stats(r.Context(), slug)
	if err != nil {
		h.respondLookupError(w, r, err, slug)
		return
	}

	respondSuccess(w, http.StatusOK, StatsResponse{
		Link:           h.toLinkResponse(stats.Link),
		TotalVisits:    stats.TotalVisits,
		UniqueVisitors: stats.UniqueVisitors,
		Countries:      stats.Countries,
		Visits:         stats.Visits,
	}, "")
}

// DeleteLink handles GET /delete/{slug}
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	if err := h.tracker.DeleteLink(r.Context(), slug); err != nil {
		h.respondAdminError(w, r, err, slug)
		return
	}

	h.logger.WithContext(r.Context()).Info("Link deleted", "slug", slug)
	http.Redirect(w, r, "/tracker", http.StatusFound)
}

// CleanLogs handles GET /clean/{slug}
func (h *Handler) CleanLogs(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	if err := h.tracker.CleanLogs(r.Context(), slug); err != nil {
		h.respondAdminError(w, r, err, slug)
		return
	}

	h.logger.WithContext(r.Context()).Info("Visit log cleared", "slug", slug)
	http.Redirect(w, r, "/stats/"+slug, http.StatusFound)
}

// DeleteAll handles GET /delete_all
func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.DeleteAll(r.Context()); err != nil {
		h.logger.WithContext(r.Context()).Error("Failed to delete all data", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.WithContext(r.Context()).Warn("All links and visits deleted")
	http.Redirect(w, r, "/tracker", http.StatusFound)
}

// QRCode handles GET /qr/{slug} with a PNG of the tracking URL
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	link, err := h.tracker.GetLink(r.Context(), slug)
	if err != nil {
		h.respondLookupError(w, r, err, slug)
		return
	}

	png, err := qrcode.Encode(h.baseURL+link.TrackingPath(), qrcode.Medium, 256)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("Failed to render QR code", "slug", slug, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// HealthCheck handles GET /health/live
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) respondLookupError(w http.ResponseWriter, r *http.Request, err error, slug string) {
	if errors.Is(err, domain.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Link not found")
		return
	}
	h.logger.WithContext(r.Context()).Error("Failed to load link", "slug", slug, "error", err)
	respondError(w, http.StatusInternalServerError, "Internal server error")
}

// respondAdminError answers the delete/clean routes in plain text
func (h *Handler) respondAdminError(w http.ResponseWriter, r *http.Request, err error, slug string) {
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}
	h.logger.WithContext(r.Context()).Error("Admin operation failed", "slug", slug, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
