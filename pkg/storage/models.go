package storage

import (
	"time"

	"github.com/google/uuid"
)

// ShortLink is the persistent record behind a short code. Metadata fields
// stay empty until the async metadata job fills them in.
type ShortLink struct {
	Code        string     `json:"short_code" db:"code"`
	OriginalURL string     `json:"original_url" db:"original_url"`
	CustomAlias *string    `json:"custom_alias,omitempty" db:"custom_alias"`
	OwnerID     *uuid.UUID `json:"owner_id,omitempty" db:"owner_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	FaviconURL  string     `json:"favicon_url" db:"favicon_url"`
	Tags        []string   `json:"tags" db:"-"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ClickCount  int64      `json:"click_count" db:"click_count"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ClickEvent is an append-only log entry, one per redirect. Country and city
// default to "Unknown" when GeoIP enrichment is skipped or fails.
type ClickEvent struct {
	ID        int64     `json:"id" db:"id"`
	LinkCode  string    `json:"link_code" db:"link_code"`
	ClickedAt time.Time `json:"clicked_at" db:"clicked_at"`
	IPAddress *string   `json:"ip_address,omitempty" db:"ip_address"`
	Country   string    `json:"country" db:"country"`
	City      string    `json:"city" db:"city"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	Referrer  string    `json:"referrer" db:"referrer"`
}

// CountryCount is one row of the per-country click breakdown.
type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// DayCount is one row of the daily click time series. Date is YYYY-MM-DD.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}
