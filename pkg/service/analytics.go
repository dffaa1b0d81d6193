package service

import (
	"context"
	"time"

	"link-shortener/pkg/middleware"
	"link-shortener/pkg/storage"
	"link-shortener/pkg/tier"
)

// AnalyticsView is the tiered analytics response. Locations and TimeSeries
// stay nil for Free accounts.
type AnalyticsView struct {
	TotalClicks int64                  `json:"total_clicks"`
	CreatedAt   time.Time              `json:"created_at"`
	Locations   []storage.CountryCount `json:"locations,omitempty"`
	TimeSeries  []storage.DayCount     `json:"time_series,omitempty"`
}

type AnalyticsService struct {
	links  storage.LinkStorage
	clicks storage.ClickStorage
}

func NewAnalyticsService(links storage.LinkStorage, clicks storage.ClickStorage) *AnalyticsService {
	return &AnalyticsService{links: links, clicks: clicks}
}

// GetAnalytics returns click analytics for a link the caller owns. The total
// reads the denormalized click counter the redirect path maintains, so it is
// cheap and consistent with what redirects observe.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, code string) (*AnalyticsView, error) {
	account := middleware.GetAccountFromContext(ctx)
	if account == nil {
		return nil, ErrOwnerRequired
	}

	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil || link.OwnerID == nil || *link.OwnerID != account.ID {
		return nil, ErrNotFound
	}

	view := &AnalyticsView{
		TotalClicks: link.ClickCount,
		CreatedAt:   link.CreatedAt,
	}

	scope := tier.AnalyticsScopeFor(account.Tier)
	if scope.Locations {
		view.Locations, err = s.clicks.CountClicksByCountry(ctx, code)
		if err != nil {
			return nil, err
		}
	}
	if scope.TimeSeries {
		view.TimeSeries, err = s.clicks.CountClicksByDay(ctx, code)
		if err != nil {
			return nil, err
		}
	}
	return view, nil
}
