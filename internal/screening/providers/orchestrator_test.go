package providers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) FetchCandidates(ctx context.Context, provider string, listTypes []models.ListType, hint models.Subject) ([]models.WatchlistEntity, error) {
	args := m.Called(ctx, provider, listTypes, hint)
	var out []models.WatchlistEntity
	if v := args.Get(0); v != nil {
		out = v.([]models.WatchlistEntity)
	}
	return out, args.Error(1)
}

func setupProviders(t *testing.T, configs ...models.ProviderConfig) *storage.MemoryStore {
	store := storage.NewMemoryStore()
	for i := range configs {
		require.NoError(t, store.SaveProvider(context.Background(), &configs[i]))
	}
	return store
}

func newRequest(providers ...string) *models.ScreeningRequest {
	return &models.ScreeningRequest{
		ID:        "req-1",
		Subject:   models.Subject{Name: "John Doe", DateOfBirth: "1980-01-01", Nationality: "US"},
		Providers: providers,
		Priority:  models.PriorityNormal,
		Status:    models.StatusInProgress,
	}
}

func TestOrchestrator_ExactMatchFromStoreGateway(t *testing.T) {
	store := setupProviders(t, models.ProviderConfig{Name: "ofac", Enabled: true, TimeoutMs: 1000})
	require.NoError(t, store.SaveEntity(context.Background(), &models.WatchlistEntity{
		ID: "ofac-1", Name: "John Doe", DateOfBirth: "1980-01-01", Nationality: "US",
		ListType: models.ListTypeSanctions, SourceProvider: "ofac", IsActive: true,
	}))
	require.NoError(t, store.SaveEntity(context.Background(), &models.WatchlistEntity{
		ID: "ofac-2", Name: "Zebulon Quartz", ListType: models.ListTypeSanctions, SourceProvider: "ofac", IsActive: true,
	}))

	orch := NewOrchestrator(NewStoreGateway(store), store, zap.NewNop().Sugar(), nil)
	outcome, err := orch.Screen(context.Background(), newRequest("ofac"))
	require.NoError(t, err)

	require.Len(t, outcome.Matches, 1)
	m := outcome.Matches[0]
	assert.Equal(t, models.MatchLevelExact, m.MatchLevel)
	assert.Equal(t, 1.0, m.ConfidenceScore)
	assert.Equal(t, "req-1", m.RequestID)
	assert.Equal(t, "ofac", m.SourceProvider)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, []string{"ofac"}, outcome.ProvidersSucceeded)
	assert.Empty(t, outcome.ProviderErrors)
}

func TestOrchestrator_IsolatesProviderFailures(t *testing.T) {
	store := setupProviders(t,
		models.ProviderConfig{Name: "ofac", Enabled: true},
		models.ProviderConfig{Name: "worldcheck", Enabled: true},
	)
	gw := &mockGateway{}
	gw.On("FetchCandidates", mock.Anything, "ofac", mock.Anything, mock.Anything).Return([]models.WatchlistEntity{
		{ID: "e1", Name: "John Doe", ListType: models.ListTypeSanctions},
	}, nil)
	gw.On("FetchCandidates", mock.Anything, "worldcheck", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	outcome, err := NewOrchestrator(gw, store, zap.NewNop().Sugar(), nil).Screen(context.Background(), newRequest("ofac", "worldcheck"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ofac"}, outcome.ProvidersSucceeded)
	assert.Equal(t, []string{"ofac", "worldcheck"}, outcome.Attempted)
	assert.Equal(t, "connection refused", outcome.ProviderErrors["worldcheck"])
	assert.Len(t, outcome.Matches, 1)
	gw.AssertExpectations(t)
}

func TestOrchestrator_AllProvidersFail(t *testing.T) {
	store := setupProviders(t,
		models.ProviderConfig{Name: "ofac", Enabled: true},
		models.ProviderConfig{Name: "worldcheck", Enabled: true},
	)
	gw := &mockGateway{}
	gw.On("FetchCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	outcome, err := NewOrchestrator(gw, store, zap.NewNop().Sugar(), nil).Screen(context.Background(), newRequest("ofac", "worldcheck"))
	assert.ErrorIs(t, err, models.ErrAllProvidersFailed)
	require.NotNil(t, outcome)
	assert.Len(t, outcome.ProviderErrors, 2)
	assert.Empty(t, outcome.Matches)
	assert.Empty(t, outcome.ProvidersSucceeded)
}

func TestOrchestrator_SkipsUnknownAndDisabledProviders(t *testing.T) {
	store := setupProviders(t,
		models.ProviderConfig{Name: "ofac", Enabled: false},
	)
	gw := &mockGateway{}

	orch := NewOrchestrator(gw, store, zap.NewNop().Sugar(), nil)
	_, err := orch.Screen(context.Background(), newRequest("ofac", "nonexistent"))
	assert.ErrorIs(t, err, models.ErrNoUsableProviders)
	gw.AssertNotCalled(t, "FetchCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	usable, err := orch.Usable(context.Background(), []string{"ofac", "nonexistent"})
	require.NoError(t, err)
	assert.Empty(t, usable)
}

func TestOrchestrator_ProviderTimeout(t *testing.T) {
	store := setupProviders(t,
		models.ProviderConfig{Name: "slow", Enabled: true, TimeoutMs: 30},
		models.ProviderConfig{Name: "fast", Enabled: true, TimeoutMs: 1000},
	)
	gw := GatewayFunc(func(ctx context.Context, provider string, _ []models.ListType, _ models.Subject) ([]models.WatchlistEntity, error) {
		if provider == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []models.WatchlistEntity{{ID: "e1", Name: "John Doe", ListType: models.ListTypePEP}}, nil
	})

	start := time.Now()
	outcome, err := NewOrchestrator(gw, store, zap.NewNop().Sugar(), nil).Screen(context.Background(), newRequest("slow", "fast"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"fast"}, outcome.ProvidersSucceeded)
	assert.Contains(t, outcome.ProviderErrors["slow"], "deadline exceeded")
}

func TestOrchestrator_OrdersByProviderThenLevel(t *testing.T) {
	store := setupProviders(t,
		models.ProviderConfig{Name: "a", Enabled: true},
		models.ProviderConfig{Name: "b", Enabled: true},
	)
	gw := GatewayFunc(func(_ context.Context, provider string, _ []models.ListType, _ models.Subject) ([]models.WatchlistEntity, error) {
		if provider == "b" {
			return []models.WatchlistEntity{{ID: "b1", Name: "John Doe", ListType: models.ListTypePEP}}, nil
		}
		return []models.WatchlistEntity{
			{ID: "a-medium", Name: "Jon Dow", ListType: models.ListTypeSanctions},
			{ID: "a-exact", Name: "John Doe", ListType: models.ListTypeSanctions},
		}, nil
	})

	outcome, err := NewOrchestrator(gw, store, zap.NewNop().Sugar(), nil).Screen(context.Background(), newRequest("b", "a"))
	require.NoError(t, err)
	require.Len(t, outcome.Matches, 3)
	assert.Equal(t, "b1", outcome.Matches[0].EntityID)
	assert.Equal(t, "a-exact", outcome.Matches[1].EntityID)
	assert.Equal(t, "a-medium", outcome.Matches[2].EntityID)
	for i, m := range outcome.Matches {
		assert.Equal(t, i, m.Sequence)
	}
}

func TestOrchestrator_FiltersListTypes(t *testing.T) {
	store := setupProviders(t, models.ProviderConfig{
		Name: "ofac", Enabled: true, ListTypes: []models.ListType{models.ListTypeSanctions, models.ListTypePEP},
	})
	gw := GatewayFunc(func(context.Context, string, []models.ListType, models.Subject) ([]models.WatchlistEntity, error) {
		return []models.WatchlistEntity{
			{ID: "s", Name: "John Doe", ListType: models.ListTypeSanctions},
			{ID: "p", Name: "John Doe", ListType: models.ListTypePEP},
			{ID: "m", Name: "John Doe", ListType: models.ListTypeAdverseMedia},
		}, nil
	})
	req := newRequest("ofac")
	req.WatchlistTypes = []models.ListType{models.ListTypeSanctions, models.ListTypeAdverseMedia}

	outcome, err := NewOrchestrator(gw, store, zap.NewNop().Sugar(), nil).Screen(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, outcome.Matches, 1)
	assert.Equal(t, "s", outcome.Matches[0].EntityID)
}

func TestResilientGateway_RetriesUntilSuccess(t *testing.T) {
	store := setupProviders(t, models.ProviderConfig{Name: "ofac", Enabled: true, RetryAttempts: 2})
	gw := &mockGateway{}
	gw.On("FetchCandidates", mock.Anything, "ofac", mock.Anything, mock.Anything).Return(nil, errors.New("503")).Twice()
	gw.On("FetchCandidates", mock.Anything, "ofac", mock.Anything, mock.Anything).Return([]models.WatchlistEntity{{ID: "e1"}}, nil).Once()

	rg := NewResilientGateway(gw, store, zap.NewNop().Sugar(), nil)
	rg.backoff = time.Millisecond

	got, err := rg.FetchCandidates(context.Background(), "ofac", nil, models.Subject{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	gw.AssertNumberOfCalls(t, "FetchCandidates", 3)
}

func TestResilientGateway_GivesUpAfterAttempts(t *testing.T) {
	store := setupProviders(t, models.ProviderConfig{Name: "ofac", Enabled: true, RetryAttempts: 1})
	gw := &mockGateway{}
	gw.On("FetchCandidates", mock.Anything, "ofac", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	rg := NewResilientGateway(gw, store, zap.NewNop().Sugar(), nil)
	rg.backoff = time.Millisecond

	_, err := rg.FetchCandidates(context.Background(), "ofac", nil, models.Subject{})
	assert.EqualError(t, err, "503")
	gw.AssertNumberOfCalls(t, "FetchCandidates", 2)
}

func TestResilientGateway_RateLimit(t *testing.T) {
	store := setupProviders(t, models.ProviderConfig{Name: "ofac", Enabled: true, RateLimitPerMinute: 1})
	gw := GatewayFunc(func(context.Context, string, []models.ListType, models.Subject) ([]models.WatchlistEntity, error) {
		return nil, nil
	})
	rg := NewResilientGateway(gw, store, zap.NewNop().Sugar(), nil)

	_, err := rg.FetchCandidates(context.Background(), "ofac", nil, models.Subject{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = rg.FetchCandidates(ctx, "ofac", nil, models.Subject{})
	assert.ErrorContains(t, err, "rate limited")
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, provider string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, provider)
	for k := range c.entries {
		if len(k) > len(provider) && k[:len(provider)+1] == provider+":" {
			delete(c.entries, k)
		}
	}
	return nil
}

func TestCachedGateway_ServesRepeatedLookupsFromCache(t *testing.T) {
	gw := &mockGateway{}
	gw.On("FetchCandidates", mock.Anything, "ofac", mock.Anything, mock.Anything).Return([]models.WatchlistEntity{
		{ID: "e1", Name: "John Doe", Aliases: []string{"JD"}, ListType: models.ListTypeSanctions},
	}, nil)
	cache := &memoryCache{entries: make(map[string][]byte)}
	cg := NewCachedGateway(gw, cache, time.Minute, zap.NewNop().Sugar(), nil)

	types := []models.ListType{models.ListTypeSanctions}
	first, err := cg.FetchCandidates(context.Background(), "ofac", types, models.Subject{})
	require.NoError(t, err)
	second, err := cg.FetchCandidates(context.Background(), "ofac", types, models.Subject{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	gw.AssertNumberOfCalls(t, "FetchCandidates", 1)

	require.NoError(t, cg.Invalidate(context.Background(), "ofac"))
	_, err = cg.FetchCandidates(context.Background(), "ofac", types, models.Subject{})
	require.NoError(t, err)
	gw.AssertNumberOfCalls(t, "FetchCandidates", 2)
}

func TestCachedGateway_FallsThroughWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	gw := &mockGateway{}
	gw.On("FetchCandidates", mock.Anything, "ofac", mock.Anything, mock.Anything).Return([]models.WatchlistEntity{{ID: "e1"}}, nil)
	cg := NewCachedGateway(gw, NewRedisCache(client, ""), time.Minute, zap.NewNop().Sugar(), nil)

	got, err := cg.FetchCandidates(context.Background(), "ofac", nil, models.Subject{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCacheKey_IgnoresOrder(t *testing.T) {
	a := CacheKey("ofac", []models.ListType{models.ListTypePEP, models.ListTypeSanctions}, nil)
	b := CacheKey("ofac", []models.ListType{models.ListTypeSanctions, models.ListTypePEP}, nil)
	assert.Equal(t, a, b)
	assert.Equal(t, "ofac:all", CacheKey("ofac", nil, nil))

	hint := models.Subject{Name: " John Doe ", Aliases: []string{"JD", "Johnny"}, Nationality: "us"}
	same := models.Subject{Name: "john doe", Aliases: []string{"johnny", "jd"}, Nationality: "US"}
	other := models.Subject{Name: "Viktor Bout"}
	assert.Equal(t, CacheKey("ofac", nil, &hint), CacheKey("ofac", nil, &same))
	assert.NotEqual(t, CacheKey("ofac", nil, &hint), CacheKey("ofac", nil, &other))
	assert.True(t, strings.HasPrefix(CacheKey("ofac", nil, &hint), "ofac:all:"))
}

func TestCachedGateway_KeysByHintForHintAwareGateways(t *testing.T) {
	var calls atomic.Int32
	echo := GatewayFunc(func(_ context.Context, provider string, _ []models.ListType, hint models.Subject) ([]models.WatchlistEntity, error) {
		calls.Add(1)
		return []models.WatchlistEntity{{ID: hint.Name, Name: hint.Name, SourceProvider: provider}}, nil
	})
	cg := NewCachedGateway(echo, &memoryCache{entries: make(map[string][]byte)}, time.Minute, zap.NewNop().Sugar(), nil)
	ctx := context.Background()

	first, err := cg.FetchCandidates(ctx, "ofac", nil, models.Subject{Name: "Alice Clean"})
	require.NoError(t, err)
	second, err := cg.FetchCandidates(ctx, "ofac", nil, models.Subject{Name: "Viktor Bout"})
	require.NoError(t, err)
	again, err := cg.FetchCandidates(ctx, "ofac", nil, models.Subject{Name: "alice clean"})
	require.NoError(t, err)

	assert.Equal(t, "Alice Clean", first[0].Name)
	assert.Equal(t, "Viktor Bout", second[0].Name)
	assert.Equal(t, "Alice Clean", again[0].Name)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCachedGateway_SharesEntriesForStoreGateway(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveProvider(ctx, &models.ProviderConfig{Name: "ofac", Enabled: true}))
	require.NoError(t, store.SaveEntity(ctx, &models.WatchlistEntity{
		ID: "e1", Name: "John Doe", ListType: models.ListTypeSanctions, SourceProvider: "ofac", IsActive: true,
	}))

	inner := NewResilientGateway(NewStoreGateway(store), store, zap.NewNop().Sugar(), nil)
	assert.True(t, inner.IgnoresHint())

	cache := &memoryCache{entries: make(map[string][]byte)}
	cg := NewCachedGateway(inner, cache, time.Minute, zap.NewNop().Sugar(), nil)
	_, err := cg.FetchCandidates(ctx, "ofac", nil, models.Subject{Name: "Alice Clean"})
	require.NoError(t, err)
	_, err = cg.FetchCandidates(ctx, "ofac", nil, models.Subject{Name: "Viktor Bout"})
	require.NoError(t, err)

	assert.Len(t, cache.entries, 1)
	assert.Contains(t, cache.entries, "ofac:all")
}
