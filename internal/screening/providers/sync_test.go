package providers

import (
	"context"
	"testing"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSyncConfigs(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cache := &memoryCache{entries: map[string][]byte{}}
	logger := zap.NewNop().Sugar()

	initial := []models.ProviderConfig{
		{Name: "ofac", Enabled: true, TimeoutMs: 1000},
		{Name: "worldcheck", Enabled: true, TimeoutMs: 2000},
	}
	require.NoError(t, SyncConfigs(ctx, store, initial, cache, logger))
	assert.ElementsMatch(t, []string{"ofac", "worldcheck"}, cache.invalidated)

	cache.invalidated = nil
	require.NoError(t, SyncConfigs(ctx, store, initial, cache, logger))
	assert.Empty(t, cache.invalidated)

	cache.invalidated = nil
	require.NoError(t, SyncConfigs(ctx, store, []models.ProviderConfig{
		{Name: "ofac", Enabled: true, TimeoutMs: 500},
	}, cache, logger))
	assert.ElementsMatch(t, []string{"ofac", "worldcheck"}, cache.invalidated)

	ofac, err := store.GetProvider(ctx, "ofac")
	require.NoError(t, err)
	assert.Equal(t, 500, ofac.TimeoutMs)

	wc, err := store.GetProvider(ctx, "worldcheck")
	require.NoError(t, err)
	assert.False(t, wc.Enabled)
}
