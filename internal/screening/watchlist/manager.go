package watchlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/events"
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidEntity is returned for an entity that cannot be listed
var ErrInvalidEntity = errors.New("invalid watchlist entity")

// CacheInvalidator drops cached candidates of a provider
type CacheInvalidator interface {
	Invalidate(ctx context.Context, provider string) error
}

// Manager maintains the ingested watchlist on behalf of the ingestion side
type Manager struct {
	entities    storage.EntityRepository
	publisher   events.Publisher
	invalidator CacheInvalidator
	logger      *zap.SugaredLogger
}

// NewManager creates a watchlist manager. invalidator may be nil.
func NewManager(entities storage.EntityRepository, publisher events.Publisher, invalidator CacheInvalidator, logger *zap.SugaredLogger) *Manager {
	if publisher == nil {
		publisher = events.Nop
	}
	return &Manager{
		entities:    entities,
		publisher:   publisher,
		invalidator: invalidator,
		logger:      logger,
	}
}

// AddEntity lists a new entity. A missing ID is generated; the entity is marked
// active and stamped with the current time. Listed entities are never
// overwritten: an ID already in use fails with models.ErrAlreadyExists.
func (m *Manager) AddEntity(ctx context.Context, entity *models.WatchlistEntity) (*models.WatchlistEntity, error) {
	if err := validateEntity(entity); err != nil {
		return nil, err
	}
	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	entity.IsActive = true
	entity.LastUpdated = time.Now().UTC()

	if err := m.entities.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}
	m.changed(ctx, events.TypeEntityAdded, entity)

	m.logger.Infow("Entity added to watchlist",
		"entity_id", entity.ID,
		"list_type", entity.ListType,
		"provider", entity.SourceProvider)
	return entity, nil
}

// SetActive activates or deactivates an entity, refreshing LastUpdated
func (m *Manager) SetActive(ctx context.Context, id string, active bool) (*models.WatchlistEntity, error) {
	entity, err := m.entities.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	entity.IsActive = active
	entity.LastUpdated = time.Now().UTC()

	if err := m.entities.SaveEntity(ctx, entity); err != nil {
		return nil, err
	}
	m.changed(ctx, events.TypeEntityUpdated, entity)

	m.logger.Infow("Watchlist entity updated",
		"entity_id", entity.ID,
		"is_active", active,
		"last_updated", entity.LastUpdated)
	return entity, nil
}

// DeleteEntity removes an entity from the watchlist
func (m *Manager) DeleteEntity(ctx context.Context, id string) error {
	entity, err := m.entities.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	if err := m.entities.DeleteEntity(ctx, id); err != nil {
		return err
	}
	m.changed(ctx, events.TypeEntityDeleted, entity)

	m.logger.Infow("Entity removed from watchlist", "entity_id", id)
	return nil
}

// GetEntity returns an entity by id
func (m *Manager) GetEntity(ctx context.Context, id string) (*models.WatchlistEntity, error) {
	return m.entities.GetEntity(ctx, id)
}

// ListEntities lists entities matching filter
func (m *Manager) ListEntities(ctx context.Context, filter storage.EntityFilter) ([]*models.WatchlistEntity, error) {
	return m.entities.ListEntities(ctx, filter)
}

// Import lists every entity not yet present, keeping supplied IDs, and returns
// how many were added. Entities already listed keep their stored state.
func (m *Manager) Import(ctx context.Context, entities []*models.WatchlistEntity) (int, error) {
	added := 0
	for i, entity := range entities {
		if _, err := m.AddEntity(ctx, entity); err != nil {
			if errors.Is(err, models.ErrAlreadyExists) {
				m.logger.Debugw("Skipping entity already on watchlist", "entity_id", entity.ID)
				continue
			}
			return added, fmt.Errorf("import entity %d (%s): %w", i, entity.Name, err)
		}
		added++
	}
	return added, nil
}

func (m *Manager) changed(ctx context.Context, t events.Type, entity *models.WatchlistEntity) {
	if m.invalidator != nil {
		if err := m.invalidator.Invalidate(ctx, entity.SourceProvider); err != nil {
			m.logger.Warnw("Failed to invalidate candidate cache", "provider", entity.SourceProvider, "error", err)
		}
	}

	event := events.New(t)
	event.EntityID = entity.ID
	event.Payload["list_type"] = string(entity.ListType)
	event.Payload["source_provider"] = entity.SourceProvider
	event.Payload["is_active"] = entity.IsActive
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warnw("Failed to publish watchlist event", "type", t, "entity_id", entity.ID, "error", err)
	}
}

func validateEntity(entity *models.WatchlistEntity) error {
	if strings.TrimSpace(entity.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntity)
	}
	if !entity.ListType.Valid() {
		return fmt.Errorf("%w: unknown list type %q", ErrInvalidEntity, entity.ListType)
	}
	if strings.TrimSpace(entity.SourceProvider) == "" {
		return fmt.Errorf("%w: source provider is required", ErrInvalidEntity)
	}
	if entity.DateOfBirth != "" {
		if _, err := time.Parse("2006-01-02", entity.DateOfBirth); err != nil {
			return fmt.Errorf("%w: date of birth %q is not YYYY-MM-DD", ErrInvalidEntity, entity.DateOfBirth)
		}
	}
	return nil
}
