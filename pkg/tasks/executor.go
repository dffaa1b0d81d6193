package tasks

import (
	"context"
	"time"

	"link-shortener/pkg/geoip"
	"link-shortener/pkg/logging"
	"link-shortener/pkg/preview"
	"link-shortener/pkg/storage"
)

// Executor runs individual jobs. Every Run method swallows its errors after
// logging; job failure is invisible to the request that scheduled it.
type Executor struct {
	links     storage.LinkStorage
	clicks    storage.ClickStorage
	previewer preview.Fetcher
	geo       geoip.Resolver
	logger    *logging.Logger
}

func NewExecutor(links storage.LinkStorage, clicks storage.ClickStorage, previewer preview.Fetcher, geo geoip.Resolver, logger *logging.Logger) *Executor {
	return &Executor{
		links:     links,
		clicks:    clicks,
		previewer: previewer,
		geo:       geo,
		logger:    logger,
	}
}

// RunMetadataFetch asks the preview service for the link's title,
// description, and favicon and writes them back. Best effort: a deleted
// link, a network error, or a non-200 all end the job quietly, and there is
// no retry at this layer.
func (e *Executor) RunMetadataFetch(ctx context.Context, code string) {
	link, err := e.links.GetByCode(ctx, code)
	if err != nil {
		e.logger.Error(ctx, "metadata job: load failed", "code", code, "error", err)
		return
	}
	if link == nil {
		// Deleted before the job ran.
		return
	}

	meta, err := e.previewer.Fetch(ctx, link.OriginalURL)
	if err != nil {
		e.logger.Warn(ctx, "metadata job: fetch failed", "code", code, "error", err)
		e.logger.LogJob("metadata_fetch", code, false)
		return
	}

	// Write only the preview columns. The row read above is stale by now if
	// an edit or the sweep ran while the fetch was in flight; a full-row save
	// would revert those writes.
	if err := e.links.UpdateMetadata(ctx, code, meta.Title, meta.Description, meta.FaviconURL); err != nil {
		e.logger.Error(ctx, "metadata job: save failed", "code", code, "error", err)
		e.logger.LogJob("metadata_fetch", code, false)
		return
	}
	e.logger.LogJob("metadata_fetch", code, true)
}

// RunClick atomically increments the click counter and appends one
// ClickEvent. GeoIP enrichment failing or being skipped never drops the
// record; a link deleted before the job runs makes it a silent no-op.
func (e *Executor) RunClick(ctx context.Context, code, ip, userAgent, referrer string) {
	link, err := e.links.GetByCode(ctx, code)
	if err != nil {
		e.logger.Error(ctx, "click job: load failed", "code", code, "error", err)
		return
	}
	if link == nil {
		return
	}

	if err := e.links.IncrementClickCount(ctx, code); err != nil {
		e.logger.Error(ctx, "click job: increment failed", "code", code, "error", err)
		return
	}

	loc := geoip.Location{Country: geoip.Unknown, City: geoip.Unknown}
	if ip != "" {
		loc = e.geo.Lookup(ctx, ip)
	}

	click := &storage.ClickEvent{
		LinkCode:  code,
		ClickedAt: time.Now(),
		Country:   loc.Country,
		City:      loc.City,
		UserAgent: userAgent,
		Referrer:  referrer,
	}
	if ip != "" {
		click.IPAddress = &ip
	}

	if err := e.clicks.InsertClick(ctx, click); err != nil {
		e.logger.Error(ctx, "click job: insert failed", "code", code, "error", err)
		e.logger.LogJob("track_click", code, false)
		return
	}
	e.logger.LogJob("track_click", code, true)
}
