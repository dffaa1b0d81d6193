package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"link-shortener/pkg/cache"
	"link-shortener/pkg/logging"
	"link-shortener/pkg/middleware"
	"link-shortener/pkg/storage"
	"link-shortener/pkg/tier"
)

// DefaultExpiryDays is applied when a create request has no explicit expiry.
// Links never default to "never expires".
const DefaultExpiryDays = 180

// maxOriginalURLLength bounds the stored target URL.
const maxOriginalURLLength = 500

// cacheTTLCap bounds staleness after manual deactivation or edits, even for
// links whose own expiry is far away.
const cacheTTLCap = time.Hour

// TaskDispatcher is the fire-and-forget side of the async pipeline. Enqueue
// never blocks and its outcome never affects the enqueuing request.
type TaskDispatcher interface {
	EnqueueMetadataFetch(code string)
	EnqueueClick(code, ip, userAgent, referrer string)
}

type LinkService struct {
	storage    storage.LinkStorage
	cache      cache.LinkCacheInterface
	dispatcher TaskDispatcher
	logger     *logging.Logger
}

func NewLinkService(storage storage.LinkStorage, cache cache.LinkCacheInterface, dispatcher TaskDispatcher, logger *logging.Logger) *LinkService {
	return &LinkService{
		storage:    storage,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

type CreateLinkRequest struct {
	OriginalURL string     `json:"original_url"`
	CustomAlias *string    `json:"custom_alias,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (s *LinkService) CreateLink(ctx context.Context, req *CreateLinkRequest) (*storage.ShortLink, error) {
	account := middleware.GetAccountFromContext(ctx)
	if account == nil {
		return nil, ErrOwnerRequired
	}

	if err := s.validateOriginalURL(ctx, req.OriginalURL); err != nil {
		return nil, err
	}

	alias := normalizeAlias(req.CustomAlias)
	if alias != nil && !ValidateAlias(*alias) {
		return nil, &ValidationError{Field: "custom_alias", Reason: "must be 1-50 chars of [a-zA-Z0-9_-] and not a reserved word"}
	}

	activeLinks, err := s.storage.CountActiveByOwner(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	if denial := tier.AuthorizeCreate(account.Tier, activeLinks, alias != nil); denial != nil {
		if denial.Kind == tier.DenyFeature {
			return nil, fmt.Errorf("%s: %w", denial.Reason, ErrPremiumFeatureRequired)
		}
		return nil, fmt.Errorf("%s: %w", denial.Reason, ErrTierLimitExceeded)
	}

	now := time.Now()
	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		t := now.Add(DefaultExpiryDays * 24 * time.Hour)
		expiresAt = &t
	}

	link := &storage.ShortLink{
		OriginalURL: req.OriginalURL,
		CustomAlias: alias,
		OwnerID:     &account.ID,
		Tags:        req.Tags,
		IsActive:    true,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The store checks for a code collision and inserts atomically. A taken
	// alias is the caller's problem; a generated code that loses the insert
	// race to a concurrent create just gets regenerated.
	for {
		if alias != nil {
			link.Code = *alias
		} else {
			link.Code, err = s.generateUniqueCode(ctx)
			if err != nil {
				return nil, err
			}
		}
		err = s.storage.Create(ctx, link)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrCodeTaken) {
			return nil, err
		}
		if alias != nil {
			return nil, ErrDuplicateAlias
		}
	}

	code := link.Code
	s.logger.LogLinkOperation(ctx, "create", code, true)

	// Metadata backfill happens out of band; the response carries empty
	// title/description/favicon until the job completes.
	s.dispatcher.EnqueueMetadataFetch(code)

	return link, nil
}

// generateUniqueCode retries on collision, growing the code length after a
// fixed number of attempts so near-exhaustion degrades instead of spinning.
func (s *LinkService) generateUniqueCode(ctx context.Context) (string, error) {
	length := DefaultCodeLength
	for {
		for attempt := 0; attempt < maxAttemptsPerLength; attempt++ {
			code, err := GenerateCode(length)
			if err != nil {
				return "", err
			}
			existing, err := s.storage.GetByCode(ctx, code)
			if err != nil {
				return "", err
			}
			if existing == nil {
				return code, nil
			}
		}
		length++
	}
}

// ClickInfo carries the request attributes the click job records.
type ClickInfo struct {
	IP        string
	UserAgent string
	Referrer  string
}

// Resolve maps a short code to its target URL for a redirect. Cache hit skips
// the store entirely; a miss loads, checks active/expiry, and refills the
// cache with a TTL that never outlives the record's own expiry. The click is
// tracked asynchronously on every successful resolution.
func (s *LinkService) Resolve(ctx context.Context, code string, click ClickInfo) (string, error) {
	target, ok, err := s.cache.Get(ctx, code)
	if err != nil {
		// A degraded cache must not take down the redirect path.
		s.logger.Warn(ctx, "cache read failed", "code", code, "error", err)
	}
	if !ok {
		link, err := s.storage.GetByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to load link: %w", err)
		}
		if link == nil {
			return "", ErrNotFound
		}
		if !link.IsActive {
			return "", &GoneError{Reason: GoneInactive}
		}
		if link.ExpiresAt != nil && time.Now().After(*link.ExpiresAt) {
			// The sweep job may not have run yet; expiry wins regardless.
			return "", &GoneError{Reason: GoneExpired}
		}

		target = link.OriginalURL

		ttl := cacheTTLCap
		if link.ExpiresAt != nil {
			if remaining := time.Until(*link.ExpiresAt); remaining < ttl {
				ttl = remaining
			}
		}
		if ttl > 0 {
			if err := s.cache.Set(ctx, code, target, ttl); err != nil {
				s.logger.Warn(ctx, "cache write failed", "code", code, "error", err)
			}
		}
	}

	s.dispatcher.EnqueueClick(code, click.IP, click.UserAgent, click.Referrer)

	return target, nil
}

// GetLink returns a link to its owner. Links owned by someone else are
// reported as not found rather than forbidden.
func (s *LinkService) GetLink(ctx context.Context, code string) (*storage.ShortLink, error) {
	account := middleware.GetAccountFromContext(ctx)
	if account == nil {
		return nil, ErrOwnerRequired
	}
	link, err := s.storage.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil || link.OwnerID == nil || *link.OwnerID != account.ID {
		return nil, ErrNotFound
	}
	return link, nil
}

func (s *LinkService) ListLinks(ctx context.Context, tag string, page, pageSize int) ([]*storage.ShortLink, int64, error) {
	account := middleware.GetAccountFromContext(ctx)
	if account == nil {
		return nil, 0, ErrOwnerRequired
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return s.storage.ListByOwner(ctx, account.ID, tag, page, pageSize)
}

type UpdateLinkRequest struct {
	OriginalURL *string    `json:"original_url,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

func (s *LinkService) UpdateLink(ctx context.Context, code string, req *UpdateLinkRequest) (*storage.ShortLink, error) {
	link, err := s.GetLink(ctx, code)
	if err != nil {
		return nil, err
	}

	urlChanged := false
	if req.OriginalURL != nil && *req.OriginalURL != link.OriginalURL {
		if err := s.validateOriginalURL(ctx, *req.OriginalURL); err != nil {
			return nil, err
		}
		link.OriginalURL = *req.OriginalURL
		urlChanged = true
	}
	if req.ExpiresAt != nil {
		link.ExpiresAt = req.ExpiresAt
	}
	if req.IsActive != nil {
		link.IsActive = *req.IsActive
	}
	if req.Tags != nil {
		link.Tags = req.Tags
	}

	if err := s.storage.Update(ctx, link); err != nil {
		return nil, err
	}

	// The store is the source of truth; never leave a stale entry past a write.
	if err := s.cache.Delete(ctx, code); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed", "code", code, "error", err)
	}

	if urlChanged {
		// Stored metadata describes the old target now; fetch it again.
		s.dispatcher.EnqueueMetadataFetch(code)
	}

	s.logger.LogLinkOperation(ctx, "update", code, true)
	return link, nil
}

func (s *LinkService) DeleteLink(ctx context.Context, code string) error {
	if _, err := s.GetLink(ctx, code); err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, code); err != nil {
		return err
	}

	// Invalidate after the store delete: a redirect racing the other order
	// could refill the cache and keep the dead link resolvable for a full TTL.
	if err := s.cache.Delete(ctx, code); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed", "code", code, "error", err)
	}
	s.logger.LogLinkOperation(ctx, "delete", code, true)
	return nil
}

func (s *LinkService) validateOriginalURL(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "original_url", Reason: "required"}
	}
	if len(rawURL) > maxOriginalURLLength {
		return &ValidationError{Field: "original_url", Reason: "exceeds 500 characters"}
	}

	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return &ValidationError{Field: "original_url", Reason: "not a well-formed URL"}
	}

	s.logger.LogURLValidation(ctx, true, parsedURL.Scheme)

	// SSRF prevention: whitelist schemes
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "original_url", Reason: "only http and https schemes allowed"}
	}

	// Block private/reserved IPs and localhost
	host := strings.Split(parsedURL.Host, ":")[0] // Remove port
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return &ValidationError{Field: "original_url", Reason: "private, loopback, or link-local addresses not allowed"}
		}
		if ip.IsMulticast() || ip.IsUnspecified() {
			return &ValidationError{Field: "original_url", Reason: "multicast or unspecified address"}
		}
	} else {
		hostLower := strings.ToLower(host)
		if strings.Contains(hostLower, "localhost") || strings.Contains(hostLower, "127.0.0.1") || strings.Contains(hostLower, "0.0.0.0") {
			return &ValidationError{Field: "original_url", Reason: "localhost or zero address not allowed"}
		}
	}

	return nil
}

func normalizeAlias(alias *string) *string {
	if alias == nil || *alias == "" {
		return nil
	}
	return alias
}
