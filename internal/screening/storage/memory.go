package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
)

// MemoryStore is an in-process Store. Values are copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex

	entities       map[string]*models.WatchlistEntity
	requests       map[string]*models.ScreeningRequest
	results        map[string]*models.ScreeningResult
	matches        map[string]*models.ScreeningMatch
	requestMatches map[string][]string
	rules          map[string]*models.ScreeningRule
	ruleOrder      []string
	providers      map[string]*models.ProviderConfig
	providerOrder  []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:       make(map[string]*models.WatchlistEntity),
		requests:       make(map[string]*models.ScreeningRequest),
		results:        make(map[string]*models.ScreeningResult),
		matches:        make(map[string]*models.ScreeningMatch),
		requestMatches: make(map[string][]string),
		rules:          make(map[string]*models.ScreeningRule),
		providers:      make(map[string]*models.ProviderConfig),
	}
}

func (s *MemoryStore) CreateEntity(_ context.Context, entity *models.WatchlistEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[entity.ID]; exists {
		return fmt.Errorf("entity %s: %w", entity.ID, models.ErrAlreadyExists)
	}
	s.entities[entity.ID] = cloneEntity(entity)
	return nil
}

func (s *MemoryStore) SaveEntity(_ context.Context, entity *models.WatchlistEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.ID] = cloneEntity(entity)
	return nil
}

func (s *MemoryStore) GetEntity(_ context.Context, id string) (*models.WatchlistEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, models.ErrNotFound)
	}
	return cloneEntity(e), nil
}

func (s *MemoryStore) DeleteEntity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[id]; !ok {
		return fmt.Errorf("entity %s: %w", id, models.ErrNotFound)
	}
	delete(s.entities, id)
	return nil
}

func (s *MemoryStore) ListEntities(_ context.Context, filter EntityFilter) ([]*models.WatchlistEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.WatchlistEntity, 0)
	for _, e := range s.entities {
		if filter.matches(e) {
			out = append(out, cloneEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateRequest(_ context.Context, request *models.ScreeningRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[request.ID]; exists {
		return fmt.Errorf("request %s already exists", request.ID)
	}
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (*models.ScreeningRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}
	return cloneRequest(r), nil
}

func (s *MemoryStore) ListRequestsByStatus(_ context.Context, status models.RequestStatus) ([]*models.ScreeningRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ScreeningRequest, 0)
	for _, r := range s.requests {
		if r.Status == status {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateRequest(_ context.Context, request *models.ScreeningRequest, from models.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkStatus(request.ID, from); err != nil {
		return err
	}
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *MemoryStore) checkStatus(id string, from models.RequestStatus) error {
	current, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("request %s is %s, expected %s: %w", id, current.Status, from, models.ErrInvalidTransition)
	}
	return nil
}

// FinishRequest stores result, matches and the terminal request under one lock
func (s *MemoryStore) FinishRequest(_ context.Context, request *models.ScreeningRequest, from models.RequestStatus, result *models.ScreeningResult, matches []*models.ScreeningMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkStatus(request.ID, from); err != nil {
		return err
	}
	if _, exists := s.results[result.RequestID]; exists {
		return fmt.Errorf("result for request %s already exists", result.RequestID)
	}
	s.saveMatches(matches)
	s.results[result.RequestID] = cloneResult(result)
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, result *models.ScreeningResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.RequestID]; exists {
		return fmt.Errorf("result for request %s already exists", result.RequestID)
	}
	s.results[result.RequestID] = cloneResult(result)
	return nil
}

func (s *MemoryStore) GetResult(_ context.Context, requestID string) (*models.ScreeningResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[requestID]
	if !ok {
		return nil, fmt.Errorf("result for request %s: %w", requestID, models.ErrNotFound)
	}
	return cloneResult(r), nil
}

func (s *MemoryStore) ListResults(_ context.Context) ([]*models.ScreeningResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ScreeningResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, cloneResult(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.Before(out[j].CompletedAt)
		}
		return out[i].RequestID < out[j].RequestID
	})
	return out, nil
}

func (s *MemoryStore) SaveMatches(_ context.Context, matches []*models.ScreeningMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveMatches(matches)
	return nil
}

func (s *MemoryStore) saveMatches(matches []*models.ScreeningMatch) {
	for _, m := range matches {
		if _, exists := s.matches[m.ID]; !exists {
			s.requestMatches[m.RequestID] = append(s.requestMatches[m.RequestID], m.ID)
		}
		s.matches[m.ID] = cloneMatch(m)
	}
}

func (s *MemoryStore) GetMatch(_ context.Context, id string) (*models.ScreeningMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, models.ErrNotFound)
	}
	return cloneMatch(m), nil
}

func (s *MemoryStore) ListMatchesByRequest(_ context.Context, requestID string) ([]*models.ScreeningMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.requestMatches[requestID]
	out := make([]*models.ScreeningMatch, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneMatch(s.matches[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) RecordDisposition(_ context.Context, matchID string, disposition models.ReviewDisposition) (*models.ScreeningMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, models.ErrNotFound)
	}
	if m.Disposition != nil {
		return nil, fmt.Errorf("match %s: %w", matchID, models.ErrAlreadyReviewed)
	}
	m.Disposition = &disposition
	return cloneMatch(m), nil
}

func (s *MemoryStore) SaveRule(_ context.Context, rule *models.ScreeningRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; !exists {
		s.ruleOrder = append(s.ruleOrder, rule.ID)
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (s *MemoryStore) GetRule(_ context.Context, id string) (*models.ScreeningRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
	}
	return cloneRule(r), nil
}

func (s *MemoryStore) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
	}
	delete(s.rules, id)
	for i, rid := range s.ruleOrder {
		if rid == id {
			s.ruleOrder = append(s.ruleOrder[:i], s.ruleOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ListRules returns rules in the order they were first saved
func (s *MemoryStore) ListRules(_ context.Context) ([]*models.ScreeningRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ScreeningRule, 0, len(s.ruleOrder))
	for _, id := range s.ruleOrder {
		out = append(out, cloneRule(s.rules[id]))
	}
	return out, nil
}

func (s *MemoryStore) SaveProvider(_ context.Context, provider *models.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.providers[provider.Name]; !exists {
		s.providerOrder = append(s.providerOrder, provider.Name)
	}
	s.providers[provider.Name] = cloneProvider(provider)
	return nil
}

func (s *MemoryStore) GetProvider(_ context.Context, name string) (*models.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", name, models.ErrNotFound)
	}
	return cloneProvider(p), nil
}

func (s *MemoryStore) ListProviders(_ context.Context) ([]*models.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ProviderConfig, 0, len(s.providerOrder))
	for _, name := range s.providerOrder {
		out = append(out, cloneProvider(s.providers[name]))
	}
	return out, nil
}
