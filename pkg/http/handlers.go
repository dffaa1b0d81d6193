package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"link-shortener/pkg/logging"
	"link-shortener/pkg/middleware"
	"link-shortener/pkg/service"
	"link-shortener/pkg/storage"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	linkService      *service.LinkService
	analyticsService *service.AnalyticsService
	baseURL          string
	logger           *logging.Logger
}

func NewHandler(linkService *service.LinkService, analyticsService *service.AnalyticsService, baseURL string, logger *logging.Logger) *Handler {
	return &Handler{
		linkService:      linkService,
		analyticsService: analyticsService,
		baseURL:          strings.TrimRight(baseURL, "/"),
		logger:           logger,
	}
}

// LinkResponse is the wire shape of a ShortLink, built by explicit field
// mapping rather than exposing the storage model directly.
type LinkResponse struct {
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CustomAlias *string    `json:"custom_alias,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	FaviconURL  string     `json:"favicon_url"`
	Tags        []string   `json:"tags"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ListLinksResponse struct {
	Count    int64           `json:"count"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Results  []*LinkResponse `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) toLinkResponse(link *storage.ShortLink) *LinkResponse {
	tags := link.Tags
	if tags == nil {
		tags = []string{}
	}
	return &LinkResponse{
		ShortCode:   link.Code,
		ShortURL:    h.baseURL + "/r/" + link.Code,
		OriginalURL: link.OriginalURL,
		CustomAlias: link.CustomAlias,
		Title:       link.Title,
		Description: link.Description,
		FaviconURL:  link.FaviconURL,
		Tags:        tags,
		IsActive:    link.IsActive,
		ExpiresAt:   link.ExpiresAt,
		ClickCount:  link.ClickCount,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
	}
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	link, err := h.linkService.CreateLink(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toLinkResponse(link))
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)
	tag := r.URL.Query().Get("tag")

	links, total, err := h.linkService.ListLinks(r.Context(), tag, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results := make([]*LinkResponse, 0, len(links))
	for _, link := range links {
		results = append(results, h.toLinkResponse(link))
	}
	writeJSON(w, http.StatusOK, &ListLinksResponse{
		Count:    total,
		Page:     page,
		PageSize: pageSize,
		Results:  results,
	})
}

func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	link, err := h.linkService.GetLink(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toLinkResponse(link))
}

func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req service.UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	link, err := h.linkService.UpdateLink(r.Context(), code, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toLinkResponse(link))
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.linkService.DeleteLink(r.Context(), code); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	click := service.ClickInfo{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	}

	target, err := h.linkService.Resolve(r.Context(), code, click)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	view, err := h.analyticsService.GetAnalytics(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// writeError maps the service error taxonomy onto HTTP statuses. Policy and
// validation rejections are user-visible, not server faults; only unexpected
// errors get logged as such.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *service.ValidationError
	var goneErr *service.GoneError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Error()})
	case errors.Is(err, service.ErrDuplicateAlias):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "alias already taken"})
	case errors.Is(err, service.ErrTierLimitExceeded), errors.Is(err, service.ErrPremiumFeatureRequired):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: userMessage(err)})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.As(err, &goneErr):
		writeJSON(w, http.StatusGone, errorResponse{Error: goneErr.Error()})
	case errors.Is(err, service.ErrOwnerRequired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// userMessage strips the sentinel suffix from wrapped policy denials so the
// client sees the human-readable reason.
func userMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func SetupRoutes(r *chi.Mux, handler *Handler, auth *middleware.AuthMiddleware) {
	r.Get("/health", handler.HealthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Post("/links", handler.CreateLink)
		r.Get("/links", handler.ListLinks)
		r.Get("/links/{code}", handler.GetLink)
		r.Put("/links/{code}", handler.UpdateLink)
		r.Delete("/links/{code}", handler.DeleteLink)
		r.Get("/links/{code}/analytics", handler.GetAnalytics)
	})
	r.Get("/r/{code}", handler.Redirect)
}
