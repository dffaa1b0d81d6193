package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"link-shortener/pkg/middleware"
	"link-shortener/pkg/storage"
	"link-shortener/pkg/tier"

	"link-shortener/pkg/logging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations for testing

type mockLinkStorage struct {
	links              map[string]*storage.ShortLink
	getCalls           int
	collideFirst       int // force this many collision responses from GetByCode
	createCollideFirst int // force this many ErrCodeTaken responses from Create
}

func newMockLinkStorage() *mockLinkStorage {
	return &mockLinkStorage{links: make(map[string]*storage.ShortLink)}
}

func (m *mockLinkStorage) Create(ctx context.Context, link *storage.ShortLink) error {
	if m.createCollideFirst > 0 {
		m.createCollideFirst--
		return storage.ErrCodeTaken
	}
	if _, exists := m.links[link.Code]; exists {
		return storage.ErrCodeTaken
	}
	cp := *link
	m.links[link.Code] = &cp
	return nil
}

func (m *mockLinkStorage) GetByCode(ctx context.Context, code string) (*storage.ShortLink, error) {
	m.getCalls++
	if m.collideFirst > 0 {
		m.collideFirst--
		return &storage.ShortLink{Code: code}, nil
	}
	if link, exists := m.links[code]; exists {
		cp := *link
		return &cp, nil
	}
	return nil, nil
}

func (m *mockLinkStorage) Update(ctx context.Context, link *storage.ShortLink) error {
	cp := *link
	m.links[link.Code] = &cp
	return nil
}

func (m *mockLinkStorage) UpdateMetadata(ctx context.Context, code, title, description, faviconURL string) error {
	if link, exists := m.links[code]; exists {
		link.Title = title
		link.Description = description
		link.FaviconURL = faviconURL
	}
	return nil
}

func (m *mockLinkStorage) Delete(ctx context.Context, code string) error {
	delete(m.links, code)
	return nil
}

func (m *mockLinkStorage) IncrementClickCount(ctx context.Context, code string) error {
	if link, exists := m.links[code]; exists {
		link.ClickCount++
	}
	return nil
}

func (m *mockLinkStorage) ListByOwner(ctx context.Context, owner uuid.UUID, tag string, page, pageSize int) ([]*storage.ShortLink, int64, error) {
	var result []*storage.ShortLink
	for _, link := range m.links {
		if link.OwnerID == nil || *link.OwnerID != owner {
			continue
		}
		if tag != "" && !contains(link.Tags, tag) {
			continue
		}
		result = append(result, link)
	}
	return result, int64(len(result)), nil
}

func (m *mockLinkStorage) CountActiveByOwner(ctx context.Context, owner uuid.UUID) (int64, error) {
	var count int64
	for _, link := range m.links {
		if link.OwnerID != nil && *link.OwnerID == owner && link.IsActive {
			count++
		}
	}
	return count, nil
}

func (m *mockLinkStorage) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	for _, link := range m.links {
		if link.IsActive && link.ExpiresAt != nil && link.ExpiresAt.Before(now) {
			link.IsActive = false
			count++
		}
	}
	return count, nil
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

type cacheEntry struct {
	target string
	ttl    time.Duration
}

type mockLinkCache struct {
	entries map[string]cacheEntry
	deletes []string
}

func newMockLinkCache() *mockLinkCache {
	return &mockLinkCache{entries: make(map[string]cacheEntry)}
}

func (m *mockLinkCache) Get(ctx context.Context, code string) (string, bool, error) {
	if entry, ok := m.entries[code]; ok {
		return entry.target, true, nil
	}
	return "", false, nil
}

func (m *mockLinkCache) Set(ctx context.Context, code string, targetURL string, ttl time.Duration) error {
	m.entries[code] = cacheEntry{target: targetURL, ttl: ttl}
	return nil
}

func (m *mockLinkCache) Delete(ctx context.Context, code string) error {
	m.deletes = append(m.deletes, code)
	delete(m.entries, code)
	return nil
}

type mockDispatcher struct {
	metadataCodes []string
	clickCodes    []string
}

func (m *mockDispatcher) EnqueueMetadataFetch(code string) {
	m.metadataCodes = append(m.metadataCodes, code)
}

func (m *mockDispatcher) EnqueueClick(code, ip, userAgent, referrer string) {
	m.clickCodes = append(m.clickCodes, code)
}

func newTestService() (*LinkService, *mockLinkStorage, *mockLinkCache, *mockDispatcher) {
	st := newMockLinkStorage()
	c := newMockLinkCache()
	d := &mockDispatcher{}
	logger := logging.NewLogger(logging.LevelError)
	return NewLinkService(st, c, d, logger), st, c, d
}

func ctxWithAccount(t tier.Tier) (context.Context, uuid.UUID) {
	id := uuid.New()
	ctx := middleware.WithAccount(context.Background(), &middleware.Account{ID: id, Tier: t})
	return ctx, id
}

func TestCreateLinkDefaults(t *testing.T) {
	svc, st, _, d := newTestService()
	ctx, owner := ctxWithAccount(tier.Free)

	link, err := svc.CreateLink(ctx, &CreateLinkRequest{OriginalURL: "https://a.example/x"})
	require.NoError(t, err)

	assert.Len(t, link.Code, DefaultCodeLength)
	assert.Equal(t, "https://a.example/x", link.OriginalURL)
	assert.Equal(t, owner, *link.OwnerID)
	assert.True(t, link.IsActive)
	assert.Zero(t, link.ClickCount)
	assert.Empty(t, link.Title)

	// Missing expiry defaults to 180 days out, not "never"
	require.NotNil(t, link.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(DefaultExpiryDays*24*time.Hour), *link.ExpiresAt, time.Minute)

	assert.Contains(t, st.links, link.Code)
	assert.Equal(t, []string{link.Code}, d.metadataCodes)
}

func TestCreateLinkFreeTierCap(t *testing.T) {
	svc, st, _, _ := newTestService()
	ctx, owner := ctxWithAccount(tier.Free)

	for i := 0; i < tier.FreeLinkCap; i++ {
		code, _ := GenerateCode(DefaultCodeLength)
		st.links[code] = &storage.ShortLink{Code: code, OwnerID: &owner, IsActive: true}
	}

	_, err := svc.CreateLink(ctx, &CreateLinkRequest{OriginalURL: "https://a.example/x"})
	assert.ErrorIs(t, err, ErrTierLimitExceeded)
	assert.Len(t, st.links, tier.FreeLinkCap) // nothing persisted
}

func TestCreateLinkCustomAliasTiering(t *testing.T) {
	alias := "promo1"

	svc, st, _, _ := newTestService()
	freeCtx, _ := ctxWithAccount(tier.Free)
	_, err := svc.CreateLink(freeCtx, &CreateLinkRequest{OriginalURL: "https://a.example/x", CustomAlias: &alias})
	assert.ErrorIs(t, err, ErrPremiumFeatureRequired)
	assert.Empty(t, st.links) // nothing persisted

	premiumCtx, _ := ctxWithAccount(tier.Premium)
	link, err := svc.CreateLink(premiumCtx, &CreateLinkRequest{OriginalURL: "https://a.example/x", CustomAlias: &alias})
	require.NoError(t, err)
	assert.Equal(t, "promo1", link.Code)

	// Same alias again collides
	_, err = svc.CreateLink(premiumCtx, &CreateLinkRequest{OriginalURL: "https://b.example/y", CustomAlias: &alias})
	assert.ErrorIs(t, err, ErrDuplicateAlias)
}

func TestCreateLinkValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx, _ := ctxWithAccount(tier.Premium)

	badAlias := "not ok!"
	tests := []struct {
		name string
		req  *CreateLinkRequest
	}{
		{"empty url", &CreateLinkRequest{OriginalURL: ""}},
		{"not a url", &CreateLinkRequest{OriginalURL: "not-a-valid-url"}},
		{"bad scheme", &CreateLinkRequest{OriginalURL: "ftp://a.example/file"}},
		{"localhost", &CreateLinkRequest{OriginalURL: "http://localhost/x"}},
		{"private ip", &CreateLinkRequest{OriginalURL: "http://192.168.1.1/x"}},
		{"too long", &CreateLinkRequest{OriginalURL: "https://a.example/" + strings.Repeat("x", 500)}},
		{"bad alias", &CreateLinkRequest{OriginalURL: "https://a.example/x", CustomAlias: &badAlias}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateLink(ctx, tt.req)
			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestCreateLinkRequiresAccount(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.CreateLink(context.Background(), &CreateLinkRequest{OriginalURL: "https://a.example/x"})
	assert.ErrorIs(t, err, ErrOwnerRequired)
}

func TestCreateLinkRetriesLostInsertRace(t *testing.T) {
	svc, st, _, _ := newTestService()
	ctx, _ := ctxWithAccount(tier.Free)

	// A concurrent create can take the code between the generator's
	// existence check and the insert. Without an alias that is not the
	// caller's fault; the service picks a new code and tries again.
	st.createCollideFirst = 2
	link, err := svc.CreateLink(ctx, &CreateLinkRequest{OriginalURL: "https://a.example/x"})
	require.NoError(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateAlias)
	assert.Len(t, link.Code, DefaultCodeLength)
	assert.Contains(t, st.links, link.Code)
}

func TestGenerateUniqueCodeGrowsAfterCollisions(t *testing.T) {
	svc, st, _, _ := newTestService()

	// Exhaust every attempt at the default length
	st.collideFirst = maxAttemptsPerLength + 1
	code, err := svc.generateUniqueCode(context.Background())
	require.NoError(t, err)
	assert.Len(t, code, DefaultCodeLength+1)
}

func TestResolveCacheHitSkipsStore(t *testing.T) {
	svc, st, c, d := newTestService()
	c.entries["abc123"] = cacheEntry{target: "https://a.example/x"}

	target, err := svc.Resolve(context.Background(), "abc123", ClickInfo{IP: "203.0.113.9"})
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/x", target)
	assert.Zero(t, st.getCalls)
	assert.Equal(t, []string{"abc123"}, d.clickCodes) // click tracked on hits too
}

func TestResolveCacheMissPopulatesBoundedTTL(t *testing.T) {
	svc, st, c, d := newTestService()
	expires := time.Now().Add(30 * time.Minute)
	st.links["abc123"] = &storage.ShortLink{
		Code: "abc123", OriginalURL: "https://a.example/x", IsActive: true, ExpiresAt: &expires,
	}

	target, err := svc.Resolve(context.Background(), "abc123", ClickInfo{})
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/x", target)

	entry, ok := c.entries["abc123"]
	require.True(t, ok)
	// TTL never outlives the record's own expiry
	assert.LessOrEqual(t, entry.ttl, 30*time.Minute)
	assert.Greater(t, entry.ttl, 29*time.Minute)
	assert.Equal(t, []string{"abc123"}, d.clickCodes)
}

func TestResolveCacheTTLCappedAtOneHour(t *testing.T) {
	svc, st, c, _ := newTestService()
	expires := time.Now().Add(240 * time.Hour)
	st.links["abc123"] = &storage.ShortLink{
		Code: "abc123", OriginalURL: "https://a.example/x", IsActive: true, ExpiresAt: &expires,
	}

	_, err := svc.Resolve(context.Background(), "abc123", ClickInfo{})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, c.entries["abc123"].ttl)
}

func TestResolveTerminalStates(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	t.Run("not found", func(t *testing.T) {
		svc, _, _, d := newTestService()
		_, err := svc.Resolve(context.Background(), "nosuch", ClickInfo{})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, d.clickCodes)
	})

	t.Run("inactive", func(t *testing.T) {
		svc, st, _, d := newTestService()
		st.links["gone01"] = &storage.ShortLink{Code: "gone01", OriginalURL: "https://a.example/x", IsActive: false}
		_, err := svc.Resolve(context.Background(), "gone01", ClickInfo{})
		var goneErr *GoneError
		require.ErrorAs(t, err, &goneErr)
		assert.Equal(t, GoneInactive, goneErr.Reason)
		assert.Empty(t, d.clickCodes)
	})

	t.Run("expired before sweep", func(t *testing.T) {
		svc, st, c, d := newTestService()
		// Sweep has not run yet: is_active is still true
		st.links["late01"] = &storage.ShortLink{Code: "late01", OriginalURL: "https://a.example/x", IsActive: true, ExpiresAt: &past}
		_, err := svc.Resolve(context.Background(), "late01", ClickInfo{})
		var goneErr *GoneError
		require.ErrorAs(t, err, &goneErr)
		assert.Equal(t, GoneExpired, goneErr.Reason)
		assert.Empty(t, d.clickCodes)
		assert.Empty(t, c.entries)
	})
}

func TestUpdateLinkInvalidatesCacheAndRefetchesMetadata(t *testing.T) {
	svc, st, c, d := newTestService()
	ctx, owner := ctxWithAccount(tier.Premium)
	st.links["abc123"] = &storage.ShortLink{
		Code: "abc123", OriginalURL: "https://a.example/x", OwnerID: &owner, IsActive: true,
	}
	c.entries["abc123"] = cacheEntry{target: "https://a.example/x"}

	newURL := "https://b.example/y"
	link, err := svc.UpdateLink(ctx, "abc123", &UpdateLinkRequest{OriginalURL: &newURL})
	require.NoError(t, err)

	assert.Equal(t, newURL, link.OriginalURL)
	assert.Equal(t, newURL, st.links["abc123"].OriginalURL)
	assert.Contains(t, c.deletes, "abc123")
	assert.Equal(t, []string{"abc123"}, d.metadataCodes)
}

func TestUpdateLinkUnchangedURLSkipsMetadata(t *testing.T) {
	svc, st, _, d := newTestService()
	ctx, owner := ctxWithAccount(tier.Premium)
	st.links["abc123"] = &storage.ShortLink{
		Code: "abc123", OriginalURL: "https://a.example/x", OwnerID: &owner, IsActive: true,
	}

	inactive := false
	_, err := svc.UpdateLink(ctx, "abc123", &UpdateLinkRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, st.links["abc123"].IsActive)
	assert.Empty(t, d.metadataCodes)
}

func TestUpdateLinkOwnership(t *testing.T) {
	svc, st, _, _ := newTestService()
	_, otherOwner := ctxWithAccount(tier.Premium)
	st.links["abc123"] = &storage.ShortLink{
		Code: "abc123", OriginalURL: "https://a.example/x", OwnerID: &otherOwner, IsActive: true,
	}

	ctx, _ := ctxWithAccount(tier.Premium)
	newURL := "https://b.example/y"
	_, err := svc.UpdateLink(ctx, "abc123", &UpdateLinkRequest{OriginalURL: &newURL})
	// Not owned reads as not found, never as forbidden
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLinkInvalidatesCache(t *testing.T) {
	svc, st, c, _ := newTestService()
	ctx, owner := ctxWithAccount(tier.Free)
	st.links["abc123"] = &storage.ShortLink{
		Code: "abc123", OriginalURL: "https://a.example/x", OwnerID: &owner, IsActive: true,
	}
	c.entries["abc123"] = cacheEntry{target: "https://a.example/x"}

	require.NoError(t, svc.DeleteLink(ctx, "abc123"))
	assert.NotContains(t, st.links, "abc123")
	assert.Contains(t, c.deletes, "abc123")
}

// deleteOrderCache records whether the link was still in the store each time
// the cache entry was dropped.
type deleteOrderCache struct {
	*mockLinkCache
	st           *mockLinkStorage
	linkAtDelete []bool
}

func (c *deleteOrderCache) Delete(ctx context.Context, code string) error {
	_, present := c.st.links[code]
	c.linkAtDelete = append(c.linkAtDelete, present)
	return c.mockLinkCache.Delete(ctx, code)
}

func TestDeleteLinkInvalidatesCacheAfterStoreDelete(t *testing.T) {
	st := newMockLinkStorage()
	c := &deleteOrderCache{mockLinkCache: newMockLinkCache(), st: st}
	svc := NewLinkService(st, c, &mockDispatcher{}, logging.NewLogger(logging.LevelError))

	ctx, owner := ctxWithAccount(tier.Free)
	st.links["abc123"] = &storage.ShortLink{
		Code: "abc123", OriginalURL: "https://a.example/x", OwnerID: &owner, IsActive: true,
	}
	c.entries["abc123"] = cacheEntry{target: "https://a.example/x"}

	require.NoError(t, svc.DeleteLink(ctx, "abc123"))

	// Invalidation must come after the store delete; the other order leaves a
	// window where a redirect refills the cache for a deleted link.
	require.Equal(t, []bool{false}, c.linkAtDelete)
	assert.NotContains(t, st.links, "abc123")
	assert.Empty(t, c.entries)
}
