package storage

import (
	"context"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
)

// EntityFilter narrows an entity listing. Zero values match everything.
type EntityFilter struct {
	SourceProvider string
	ListTypes      []models.ListType
	ActiveOnly     bool
}

func (f EntityFilter) matches(e *models.WatchlistEntity) bool {
	if f.SourceProvider != "" && e.SourceProvider != f.SourceProvider {
		return false
	}
	if f.ActiveOnly && !e.IsActive {
		return false
	}
	if len(f.ListTypes) == 0 {
		return true
	}
	for _, lt := range f.ListTypes {
		if lt == e.ListType {
			return true
		}
	}
	return false
}

// EntityRepository stores watchlist entities
type EntityRepository interface {
	// CreateEntity stores a new entity and fails with ErrAlreadyExists when the id is taken
	CreateEntity(ctx context.Context, entity *models.WatchlistEntity) error
	SaveEntity(ctx context.Context, entity *models.WatchlistEntity) error
	GetEntity(ctx context.Context, id string) (*models.WatchlistEntity, error)
	DeleteEntity(ctx context.Context, id string) error
	ListEntities(ctx context.Context, filter EntityFilter) ([]*models.WatchlistEntity, error)
}

// RequestRepository stores screening requests
type RequestRepository interface {
	CreateRequest(ctx context.Context, request *models.ScreeningRequest) error
	GetRequest(ctx context.Context, id string) (*models.ScreeningRequest, error)
	// ListRequestsByStatus returns requests in the given status, oldest first
	ListRequestsByStatus(ctx context.Context, status models.RequestStatus) ([]*models.ScreeningRequest, error)
	// UpdateRequest persists request only if the stored status still equals from.
	// It returns ErrInvalidTransition when another writer moved the request first.
	UpdateRequest(ctx context.Context, request *models.ScreeningRequest, from models.RequestStatus) error
}

// ResultRepository stores screening results. A request has at most one result.
type ResultRepository interface {
	SaveResult(ctx context.Context, result *models.ScreeningResult) error
	GetResult(ctx context.Context, requestID string) (*models.ScreeningResult, error)
	// ListResults returns results ordered by completion time, oldest first
	ListResults(ctx context.Context) ([]*models.ScreeningResult, error)
}

// MatchRepository stores matches and their review dispositions
type MatchRepository interface {
	SaveMatches(ctx context.Context, matches []*models.ScreeningMatch) error
	GetMatch(ctx context.Context, id string) (*models.ScreeningMatch, error)
	ListMatchesByRequest(ctx context.Context, requestID string) ([]*models.ScreeningMatch, error)
	// RecordDisposition sets the disposition of a match that has none yet.
	RecordDisposition(ctx context.Context, matchID string, disposition models.ReviewDisposition) (*models.ScreeningMatch, error)
}

// RuleRepository stores screening rules
type RuleRepository interface {
	SaveRule(ctx context.Context, rule *models.ScreeningRule) error
	GetRule(ctx context.Context, id string) (*models.ScreeningRule, error)
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]*models.ScreeningRule, error)
}

// ProviderRepository stores provider configuration
type ProviderRepository interface {
	SaveProvider(ctx context.Context, provider *models.ProviderConfig) error
	GetProvider(ctx context.Context, name string) (*models.ProviderConfig, error)
	ListProviders(ctx context.Context) ([]*models.ProviderConfig, error)
}

// Store groups every repository the screening engine needs
type Store interface {
	EntityRepository
	RequestRepository
	ResultRepository
	MatchRepository
	RuleRepository
	ProviderRepository

	// FinishRequest atomically stores the result and matches of a request and
	// persists request in its terminal status, provided the stored status is
	// still from. Nothing is written when it fails.
	FinishRequest(ctx context.Context, request *models.ScreeningRequest, from models.RequestStatus, result *models.ScreeningResult, matches []*models.ScreeningMatch) error
}

func cloneEntity(e *models.WatchlistEntity) *models.WatchlistEntity {
	c := *e
	c.Aliases = append([]string(nil), e.Aliases...)
	if e.Identifications != nil {
		c.Identifications = make(map[string]string, len(e.Identifications))
		for k, v := range e.Identifications {
			c.Identifications[k] = v
		}
	}
	return &c
}

func cloneRequest(r *models.ScreeningRequest) *models.ScreeningRequest {
	c := *r
	c.Subject.Aliases = append([]string(nil), r.Subject.Aliases...)
	c.WatchlistTypes = append([]models.ListType(nil), r.WatchlistTypes...)
	c.Providers = append([]string(nil), r.Providers...)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneMatch(m *models.ScreeningMatch) *models.ScreeningMatch {
	c := *m
	c.MatchedFields = append([]string(nil), m.MatchedFields...)
	c.AppliedRules = append([]string(nil), m.AppliedRules...)
	if m.Disposition != nil {
		d := *m.Disposition
		c.Disposition = &d
	}
	return &c
}

func cloneResult(r *models.ScreeningResult) *models.ScreeningResult {
	c := *r
	c.Matches = nil
	c.Recommendations = append([]string(nil), r.Recommendations...)
	c.ProcessedBy = append([]string(nil), r.ProcessedBy...)
	c.MatchesByLevel = make(map[models.MatchLevel]int, len(r.MatchesByLevel))
	for k, v := range r.MatchesByLevel {
		c.MatchesByLevel[k] = v
	}
	c.MatchesByListType = make(map[models.ListType]int, len(r.MatchesByListType))
	for k, v := range r.MatchesByListType {
		c.MatchesByListType[k] = v
	}
	if r.Errors != nil {
		c.Errors = make(map[string]string, len(r.Errors))
		for k, v := range r.Errors {
			c.Errors[k] = v
		}
	}
	return &c
}

func cloneRule(r *models.ScreeningRule) *models.ScreeningRule {
	c := *r
	c.WatchlistTypes = append([]models.ListType(nil), r.WatchlistTypes...)
	c.Conditions = append([]models.RuleCondition(nil), r.Conditions...)
	c.Actions = make([]models.RuleAction, len(r.Actions))
	for i, a := range r.Actions {
		c.Actions[i] = models.RuleAction{Type: a.Type}
		if a.Parameters != nil {
			c.Actions[i].Parameters = make(map[string]string, len(a.Parameters))
			for k, v := range a.Parameters {
				c.Actions[i].Parameters[k] = v
			}
		}
	}
	return &c
}

func cloneProvider(p *models.ProviderConfig) *models.ProviderConfig {
	c := *p
	c.ListTypes = append([]models.ListType(nil), p.ListTypes...)
	return &c
}
