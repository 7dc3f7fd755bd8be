package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupGormStore(t *testing.T) *GormStore {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("gorm", func(t *testing.T) { fn(t, setupGormStore(t)) })
}

func TestStore_Entities(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, store.SaveEntity(ctx, &models.WatchlistEntity{
			ID: "ofac-1", Name: "John Doe", Aliases: []string{"Johnny"}, ListType: models.ListTypeSanctions,
			SourceProvider: "ofac", IsActive: true, LastUpdated: now,
			Identifications: map[string]string{"passport": "X123"},
		}))
		require.NoError(t, store.SaveEntity(ctx, &models.WatchlistEntity{
			ID: "ofac-2", Name: "Old Entry", ListType: models.ListTypeSanctions, SourceProvider: "ofac", IsActive: false,
		}))
		require.NoError(t, store.SaveEntity(ctx, &models.WatchlistEntity{
			ID: "wc-1", Name: "Jane Roe", ListType: models.ListTypePEP, SourceProvider: "worldcheck", IsActive: true,
		}))

		got, err := store.GetEntity(ctx, "ofac-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"Johnny"}, got.Aliases)
		assert.Equal(t, "X123", got.Identifications["passport"])

		active, err := store.ListEntities(ctx, EntityFilter{SourceProvider: "ofac", ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "ofac-1", active[0].ID)

		peps, err := store.ListEntities(ctx, EntityFilter{ListTypes: []models.ListType{models.ListTypePEP}})
		require.NoError(t, err)
		require.Len(t, peps, 1)
		assert.Equal(t, "wc-1", peps[0].ID)

		require.NoError(t, store.DeleteEntity(ctx, "ofac-2"))
		_, err = store.GetEntity(ctx, "ofac-2")
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.ErrorIs(t, store.DeleteEntity(ctx, "ofac-2"), models.ErrNotFound)
	})
}

func TestStore_RequestCompareAndSet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		req := &models.ScreeningRequest{
			ID:        "req-1",
			Subject:   models.Subject{Name: "John Doe", Aliases: []string{"J. Doe"}},
			Providers: []string{"ofac"},
			Priority:  models.PriorityNormal,
			Status:    models.StatusPending,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.CreateRequest(ctx, req))

		started := time.Now().UTC()
		req.Status = models.StatusInProgress
		req.StartedAt = &started
		require.NoError(t, store.UpdateRequest(ctx, req, models.StatusPending))

		err := store.UpdateRequest(ctx, req, models.StatusPending)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)

		got, err := store.GetRequest(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, got.Status)
		assert.Equal(t, "John Doe", got.Subject.Name)
		assert.Equal(t, []string{"J. Doe"}, got.Subject.Aliases)
		require.NotNil(t, got.StartedAt)

		_, err = store.GetRequest(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStore_ResultsAndMatches(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		matches := []*models.ScreeningMatch{
			{ID: "m-2", RequestID: "req-1", MatchLevel: models.MatchLevelMedium, Sequence: 1, MatchedFields: []string{"partial_name"}},
			{ID: "m-1", RequestID: "req-1", MatchLevel: models.MatchLevelExact, Sequence: 0, MatchedFields: []string{"name"}},
			{ID: "m-3", RequestID: "req-2", MatchLevel: models.MatchLevelLow},
		}
		require.NoError(t, store.SaveMatches(ctx, matches))

		listed, err := store.ListMatchesByRequest(ctx, "req-1")
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, "m-1", listed[0].ID)
		assert.Equal(t, "m-2", listed[1].ID)

		result := &models.ScreeningResult{
			RequestID:         "req-1",
			Status:            models.StatusCompleted,
			TotalMatches:      2,
			MatchesByLevel:    map[models.MatchLevel]int{models.MatchLevelExact: 1, models.MatchLevelMedium: 1},
			MatchesByListType: map[models.ListType]int{},
			RiskScore:         0.75,
			Recommendations:   []string{"review"},
			ProcessedBy:       []string{"ofac"},
			CompletedAt:       time.Now().UTC(),
		}
		require.NoError(t, store.SaveResult(ctx, result))
		assert.Error(t, store.SaveResult(ctx, result), "a request has exactly one result")

		got, err := store.GetResult(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.MatchesByLevel[models.MatchLevelExact])
		assert.Equal(t, []string{"ofac"}, got.ProcessedBy)
		assert.Empty(t, got.Matches)

		_, err = store.GetResult(ctx, "req-2")
		assert.ErrorIs(t, err, models.ErrNotFound)

		earlier := &models.ScreeningResult{RequestID: "req-0", Status: models.StatusFailed, CompletedAt: result.CompletedAt.Add(-time.Minute)}
		require.NoError(t, store.SaveResult(ctx, earlier))
		all, err := store.ListResults(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "req-0", all[0].RequestID)
		assert.Equal(t, "req-1", all[1].RequestID)
	})
}

func TestStore_DispositionIsWrittenOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.SaveMatches(ctx, []*models.ScreeningMatch{{ID: "m-1", RequestID: "req-1"}}))

		first := models.ReviewDisposition{Decision: models.DecisionFalsePositive, ReviewerID: "alice", ReviewedAt: time.Now().UTC()}
		updated, err := store.RecordDisposition(ctx, "m-1", first)
		require.NoError(t, err)
		require.NotNil(t, updated.Disposition)
		assert.Equal(t, models.DecisionFalsePositive, updated.Disposition.Decision)

		second := models.ReviewDisposition{Decision: models.DecisionTruePositive, ReviewerID: "bob", ReviewedAt: time.Now().UTC()}
		_, err = store.RecordDisposition(ctx, "m-1", second)
		assert.ErrorIs(t, err, models.ErrAlreadyReviewed)

		stored, err := store.GetMatch(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", stored.Disposition.ReviewerID)

		_, err = store.RecordDisposition(ctx, "missing", first)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStore_RulesAndProviders(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		rule := &models.ScreeningRule{
			ID: "r1", Name: "exact", Priority: 1, IsActive: true,
			Conditions: []models.RuleCondition{{Field: "matchLevel", Operator: models.OperatorEquals, Value: "exact"}},
			Actions:    []models.RuleAction{{Type: models.ActionNotify, Parameters: map[string]string{"channel": "ops"}}},
		}
		require.NoError(t, store.SaveRule(ctx, rule))

		rules, err := store.ListRules(ctx)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "ops", rules[0].Actions[0].Parameters["channel"])

		require.NoError(t, store.DeleteRule(ctx, "r1"))
		_, err = store.GetRule(ctx, "r1")
		assert.ErrorIs(t, err, models.ErrNotFound)

		require.NoError(t, store.SaveProvider(ctx, &models.ProviderConfig{Name: "ofac", Enabled: true, TimeoutMs: 2000, ListTypes: []models.ListType{models.ListTypeSanctions}}))
		require.NoError(t, store.SaveProvider(ctx, &models.ProviderConfig{Name: "ofac", Enabled: false, TimeoutMs: 2000}))

		p, err := store.GetProvider(ctx, "ofac")
		require.NoError(t, err)
		assert.False(t, p.Enabled)

		providers, err := store.ListProviders(ctx)
		require.NoError(t, err)
		assert.Len(t, providers, 1)

		_, err = store.GetProvider(ctx, "worldcheck")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStore_CreateEntityRefusesExistingID(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.CreateEntity(ctx, &models.WatchlistEntity{
			ID: "ofac-1", Name: "John Doe", ListType: models.ListTypeSanctions, SourceProvider: "ofac",
		}))

		err := store.CreateEntity(ctx, &models.WatchlistEntity{
			ID: "ofac-1", Name: "Someone Else", ListType: models.ListTypePEP, SourceProvider: "ofac",
		})
		assert.ErrorIs(t, err, models.ErrAlreadyExists)

		got, err := store.GetEntity(ctx, "ofac-1")
		require.NoError(t, err)
		assert.Equal(t, "John Doe", got.Name)
		assert.Equal(t, models.ListTypeSanctions, got.ListType)
	})
}

func TestStore_ListRequestsByStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)
		for i, id := range []string{"req-2", "req-1", "req-3"} {
			require.NoError(t, store.CreateRequest(ctx, &models.ScreeningRequest{
				ID:        id,
				Subject:   models.Subject{Name: "John Doe"},
				Priority:  models.PriorityNormal,
				Status:    models.StatusPending,
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		moved, err := store.GetRequest(ctx, "req-3")
		require.NoError(t, err)
		moved.Status = models.StatusInProgress
		require.NoError(t, store.UpdateRequest(ctx, moved, models.StatusPending))

		pending, err := store.ListRequestsByStatus(ctx, models.StatusPending)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "req-2", pending[0].ID)
		assert.Equal(t, "req-1", pending[1].ID)

		running, err := store.ListRequestsByStatus(ctx, models.StatusInProgress)
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, "req-3", running[0].ID)

		done, err := store.ListRequestsByStatus(ctx, models.StatusCompleted)
		require.NoError(t, err)
		assert.Empty(t, done)
	})
}
