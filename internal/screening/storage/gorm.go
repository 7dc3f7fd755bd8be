package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is a Store backed by a relational database through gorm
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates the store and migrates its tables
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreWithoutMigration creates the store over an already migrated schema
func NewGormStoreWithoutMigration(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the screening tables
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.WatchlistEntity{},
		&models.ScreeningRequest{},
		&models.ScreeningResult{},
		&models.ScreeningMatch{},
		&models.ScreeningRule{},
		&models.ProviderConfig{},
	); err != nil {
		return fmt.Errorf("failed to migrate screening tables: %w", err)
	}
	return nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}

// CreateEntity inserts entity unless its id is already present
func (s *GormStore) CreateEntity(ctx context.Context, entity *models.WatchlistEntity) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity)
	if res.Error != nil {
		return fmt.Errorf("failed to create entity %s: %w", entity.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("entity %s: %w", entity.ID, models.ErrAlreadyExists)
	}
	return nil
}

func (s *GormStore) SaveEntity(ctx context.Context, entity *models.WatchlistEntity) error {
	if err := s.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to save entity %s: %w", entity.ID, err)
	}
	return nil
}

func (s *GormStore) GetEntity(ctx context.Context, id string) (*models.WatchlistEntity, error) {
	var entity models.WatchlistEntity
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, notFound(err, "entity", id)
	}
	return &entity, nil
}

func (s *GormStore) DeleteEntity(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.WatchlistEntity{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("entity %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *GormStore) ListEntities(ctx context.Context, filter EntityFilter) ([]*models.WatchlistEntity, error) {
	query := s.db.WithContext(ctx).Model(&models.WatchlistEntity{})
	if filter.SourceProvider != "" {
		query = query.Where("source_provider = ?", filter.SourceProvider)
	}
	if len(filter.ListTypes) > 0 {
		query = query.Where("list_type IN ?", filter.ListTypes)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var entities []*models.WatchlistEntity
	if err := query.Order("id").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return entities, nil
}

func (s *GormStore) CreateRequest(ctx context.Context, request *models.ScreeningRequest) error {
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return fmt.Errorf("failed to create request %s: %w", request.ID, err)
	}
	return nil
}

func (s *GormStore) GetRequest(ctx context.Context, id string) (*models.ScreeningRequest, error) {
	var request models.ScreeningRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, notFound(err, "request", id)
	}
	return &request, nil
}

func (s *GormStore) ListRequestsByStatus(ctx context.Context, status models.RequestStatus) ([]*models.ScreeningRequest, error) {
	var requests []*models.ScreeningRequest
	if err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at").
		Order("id").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s requests: %w", status, err)
	}
	return requests, nil
}

func (s *GormStore) UpdateRequest(ctx context.Context, request *models.ScreeningRequest, from models.RequestStatus) error {
	return updateRequest(s.db.WithContext(ctx), request, from)
}

// FinishRequest stores result, matches and the terminal request in one transaction
func (s *GormStore) FinishRequest(ctx context.Context, request *models.ScreeningRequest, from models.RequestStatus, result *models.ScreeningResult, matches []*models.ScreeningMatch) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateRequest(tx, request, from); err != nil {
			return err
		}
		if err := tx.Create(result).Error; err != nil {
			return fmt.Errorf("failed to save result for request %s: %w", result.RequestID, err)
		}
		for _, m := range matches {
			if err := tx.Save(m).Error; err != nil {
				return fmt.Errorf("failed to save match %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

func updateRequest(db *gorm.DB, request *models.ScreeningRequest, from models.RequestStatus) error {
	res := db.
		Model(request).
		Where("status = ?", from).
		Select("*").
		Updates(request)
	if res.Error != nil {
		return fmt.Errorf("failed to update request %s: %w", request.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.ScreeningRequest
		if err := db.Where("id = ?", request.ID).First(&current).Error; err != nil {
			return notFound(err, "request", request.ID)
		}
		return fmt.Errorf("request %s is %s, expected %s: %w", request.ID, current.Status, from, models.ErrInvalidTransition)
	}
	return nil
}

func (s *GormStore) SaveResult(ctx context.Context, result *models.ScreeningResult) error {
	if err := s.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("failed to save result for request %s: %w", result.RequestID, err)
	}
	return nil
}

func (s *GormStore) GetResult(ctx context.Context, requestID string) (*models.ScreeningResult, error) {
	var result models.ScreeningResult
	if err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&result).Error; err != nil {
		return nil, notFound(err, "result for request", requestID)
	}
	return &result, nil
}

func (s *GormStore) ListResults(ctx context.Context) ([]*models.ScreeningResult, error) {
	var results []*models.ScreeningResult
	if err := s.db.WithContext(ctx).Order("completed_at").Order("request_id").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

func (s *GormStore) SaveMatches(ctx context.Context, matches []*models.ScreeningMatch) error {
	if len(matches) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range matches {
			if err := tx.Save(m).Error; err != nil {
				return fmt.Errorf("failed to save match %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

func (s *GormStore) GetMatch(ctx context.Context, id string) (*models.ScreeningMatch, error) {
	var match models.ScreeningMatch
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&match).Error; err != nil {
		return nil, notFound(err, "match", id)
	}
	return &match, nil
}

func (s *GormStore) ListMatchesByRequest(ctx context.Context, requestID string) ([]*models.ScreeningMatch, error) {
	var matches []*models.ScreeningMatch
	if err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("sequence").
		Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to list matches for request %s: %w", requestID, err)
	}
	return matches, nil
}

// RecordDisposition writes the disposition only while the column is still empty
func (s *GormStore) RecordDisposition(ctx context.Context, matchID string, disposition models.ReviewDisposition) (*models.ScreeningMatch, error) {
	res := s.db.WithContext(ctx).
		Model(&models.ScreeningMatch{ID: matchID}).
		Where("disposition IS NULL").
		Select("Disposition").
		Updates(&models.ScreeningMatch{Disposition: &disposition})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to record disposition for match %s: %w", matchID, res.Error)
	}

	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("match %s: %w", matchID, models.ErrAlreadyReviewed)
	}
	return match, nil
}

func (s *GormStore) SaveRule(ctx context.Context, rule *models.ScreeningRule) error {
	if err := s.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *GormStore) GetRule(ctx context.Context, id string) (*models.ScreeningRule, error) {
	var rule models.ScreeningRule
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, notFound(err, "rule", id)
	}
	return &rule, nil
}

func (s *GormStore) DeleteRule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ScreeningRule{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListRules returns rules by priority, then creation time
func (s *GormStore) ListRules(ctx context.Context) ([]*models.ScreeningRule, error) {
	var rules []*models.ScreeningRule
	if err := s.db.WithContext(ctx).Order("priority").Order("created_at").Order("id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

func (s *GormStore) SaveProvider(ctx context.Context, provider *models.ProviderConfig) error {
	if err := s.db.WithContext(ctx).Save(provider).Error; err != nil {
		return fmt.Errorf("failed to save provider %s: %w", provider.Name, err)
	}
	return nil
}

func (s *GormStore) GetProvider(ctx context.Context, name string) (*models.ProviderConfig, error) {
	var provider models.ProviderConfig
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&provider).Error; err != nil {
		return nil, notFound(err, "provider", name)
	}
	return &provider, nil
}

func (s *GormStore) ListProviders(ctx context.Context) ([]*models.ProviderConfig, error) {
	var providers []*models.ProviderConfig
	if err := s.db.WithContext(ctx).Order("name").Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}
