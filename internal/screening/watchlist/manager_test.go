package watchlist

import (
	"context"
	"strings"
	"testing"

	"github.com/Aidin1998/watchlist_screening/internal/screening/events"
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingInvalidator struct {
	providers []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, provider string) error {
	r.providers = append(r.providers, provider)
	return nil
}

func setupManager(t *testing.T) (*Manager, *recordingInvalidator, <-chan events.Event) {
	bus := events.NewBus(zap.NewNop().Sugar())
	ch, unsub := bus.Subscribe(16)
	t.Cleanup(unsub)
	inv := &recordingInvalidator{}
	return NewManager(storage.NewMemoryStore(), bus, inv, zap.NewNop().Sugar()), inv, ch
}

func TestManager_Lifecycle(t *testing.T) {
	mgr, inv, ch := setupManager(t)
	ctx := context.Background()

	added, err := mgr.AddEntity(ctx, &models.WatchlistEntity{
		Name: "John Doe", ListType: models.ListTypeSanctions, SourceProvider: "ofac",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.True(t, added.IsActive)
	assert.False(t, added.LastUpdated.IsZero())

	updated, err := mgr.SetActive(ctx, added.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.False(t, updated.LastUpdated.Before(added.LastUpdated))

	active, err := mgr.ListEntities(ctx, storage.EntityFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, mgr.DeleteEntity(ctx, added.ID))
	_, err = mgr.GetEntity(ctx, added.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, mgr.DeleteEntity(ctx, added.ID), models.ErrNotFound)

	assert.Equal(t, events.TypeEntityAdded, (<-ch).Type)
	assert.Equal(t, events.TypeEntityUpdated, (<-ch).Type)
	deleted := <-ch
	assert.Equal(t, events.TypeEntityDeleted, deleted.Type)
	assert.Equal(t, added.ID, deleted.EntityID)
	assert.Equal(t, []string{"ofac", "ofac", "ofac"}, inv.providers)
}

func TestManager_RejectsInvalidEntities(t *testing.T) {
	mgr, _, _ := setupManager(t)
	ctx := context.Background()

	for name, e := range map[string]*models.WatchlistEntity{
		"no name":     {ListType: models.ListTypePEP, SourceProvider: "wc"},
		"bad list":    {Name: "A", ListType: "gossip", SourceProvider: "wc"},
		"no provider": {Name: "A", ListType: models.ListTypePEP},
		"bad dob":     {Name: "A", ListType: models.ListTypePEP, SourceProvider: "wc", DateOfBirth: "1980"},
	} {
		_, err := mgr.AddEntity(ctx, e)
		assert.ErrorIs(t, err, ErrInvalidEntity, name)
	}
}

func TestLoadSeedAndImport(t *testing.T) {
	doc := `
entities:
  - id: ofac-0001
    name: John Doe
    aliases: [Johnny Doe]
    date_of_birth: "1980-01-01"
    nationality: US
    list_type: sanctions
    source_provider: ofac
  - id: wc-0001
    name: Janet Smith
    list_type: pep
    source_provider: worldcheck
    identifications:
      passport: P123
`
	seed, err := LoadSeed(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, seed, 2)
	assert.Equal(t, []string{"Johnny Doe"}, seed[0].Aliases)
	assert.Equal(t, "P123", seed[1].Identifications["passport"])

	mgr, _, _ := setupManager(t)
	n, err := mgr.Import(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := mgr.GetEntity(context.Background(), "ofac-0001")
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = LoadSeed(strings.NewReader("entities:\n  - name: X\n    list_type: nope\n    source_provider: p\n"))
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestManager_AddEntityKeepsListedIdentity(t *testing.T) {
	mgr, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := mgr.AddEntity(ctx, &models.WatchlistEntity{
		ID: "ofac-0001", Name: "John Doe", ListType: models.ListTypeSanctions, SourceProvider: "ofac",
	})
	require.NoError(t, err)

	_, err = mgr.AddEntity(ctx, &models.WatchlistEntity{
		ID: "ofac-0001", Name: "Someone Else", ListType: models.ListTypePEP, SourceProvider: "ofac",
	})
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	got, err := mgr.GetEntity(ctx, "ofac-0001")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", got.Name)
	assert.Equal(t, models.ListTypeSanctions, got.ListType)
}

func TestManager_ReimportKeepsDeactivation(t *testing.T) {
	mgr, _, _ := setupManager(t)
	ctx := context.Background()
	seed := func() []*models.WatchlistEntity {
		return []*models.WatchlistEntity{
			{ID: "ofac-0001", Name: "John Doe", ListType: models.ListTypeSanctions, SourceProvider: "ofac"},
			{ID: "wc-0001", Name: "Janet Smith", ListType: models.ListTypePEP, SourceProvider: "worldcheck"},
		}
	}

	n, err := mgr.Import(ctx, seed())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	deactivated, err := mgr.SetActive(ctx, "ofac-0001", false)
	require.NoError(t, err)

	n, err = mgr.Import(ctx, seed())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := mgr.GetEntity(ctx, "ofac-0001")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.LastUpdated.Equal(deactivated.LastUpdated))
}
