package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrCodeTaken is returned by Create when the short code already exists.
// The check and the insert happen in one transaction.
var ErrCodeTaken = errors.New("short code already taken")

type LinkStorage interface {
	Create(ctx context.Context, link *ShortLink) error
	GetByCode(ctx context.Context, code string) (*ShortLink, error)
	Update(ctx context.Context, link *ShortLink) error
	UpdateMetadata(ctx context.Context, code, title, description, faviconURL string) error
	Delete(ctx context.Context, code string) error
	IncrementClickCount(ctx context.Context, code string) error
	ListByOwner(ctx context.Context, owner uuid.UUID, tag string, page, pageSize int) ([]*ShortLink, int64, error)
	CountActiveByOwner(ctx context.Context, owner uuid.UUID) (int64, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type ClickStorage interface {
	InsertClick(ctx context.Context, click *ClickEvent) error
	CountClicksByCountry(ctx context.Context, code string) ([]CountryCount, error)
	CountClicksByDay(ctx context.Context, code string) ([]DayCount, error)
}
