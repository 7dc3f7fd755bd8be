package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/analytics"
	"github.com/Aidin1998/watchlist_screening/internal/screening/events"
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/monitoring"
	"github.com/Aidin1998/watchlist_screening/internal/screening/providers"
	"github.com/Aidin1998/watchlist_screening/internal/screening/review"
	"github.com/Aidin1998/watchlist_screening/internal/screening/rules"
	"github.com/Aidin1998/watchlist_screening/internal/screening/scoring"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"github.com/Aidin1998/watchlist_screening/pkg/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/Aidin1998/watchlist_screening/internal/screening/service"

// ErrInterrupted is the cause recorded for a request whose processing stopped
// before it reached a terminal status
var ErrInterrupted = errors.New("screening interrupted before completion")

// DefaultDeadlines bound the provider fan-out of a request by its priority
var DefaultDeadlines = map[models.Priority]time.Duration{
	models.PriorityUrgent: 10 * time.Second,
	models.PriorityHigh:   20 * time.Second,
	models.PriorityNormal: 30 * time.Second,
	models.PriorityLow:    60 * time.Second,
}

// Config tunes the screening service
type Config struct {
	Deadlines map[models.Priority]time.Duration
}

// Enqueuer hands a request over for asynchronous processing
type Enqueuer interface {
	Enqueue(ctx context.Context, requestID string) error
}

// SubmitInput is a screening submission
type SubmitInput struct {
	Subject        models.Subject    `json:"subject"`
	WatchlistTypes []models.ListType `json:"watchlist_types" validate:"omitempty,dive,list_type"`
	Providers      []string          `json:"providers" validate:"omitempty,dive,provider_name"`
	Priority       models.Priority   `json:"priority" validate:"priority"`
}

// Dependencies groups the collaborators of the Service
type Dependencies struct {
	Store        storage.Store
	Orchestrator *providers.Orchestrator
	Rules        *rules.RuleEngine
	Scorer       *scoring.RiskScorer
	Analytics    *analytics.Aggregator
	Review       *review.Workflow
	Publisher    events.Publisher
	Validator    *validation.Validator
	Metrics      *monitoring.PrometheusMetrics
	Logger       *zap.SugaredLogger
}

// Service owns the screening request lifecycle:
// pending -> in_progress -> completed | failed.
type Service struct {
	store        storage.Store
	orchestrator *providers.Orchestrator
	rules        *rules.RuleEngine
	scorer       *scoring.RiskScorer
	analytics    *analytics.Aggregator
	review       *review.Workflow
	publisher    events.Publisher
	validator    *validation.Validator
	metrics      *monitoring.PrometheusMetrics
	logger       *zap.SugaredLogger
	tracer       trace.Tracer

	deadlines map[models.Priority]time.Duration
	enqueuer  Enqueuer
}

// NewService creates the screening service
func NewService(deps Dependencies, cfg Config) *Service {
	deadlines := make(map[models.Priority]time.Duration, len(DefaultDeadlines))
	for p, d := range DefaultDeadlines {
		deadlines[p] = d
	}
	for p, d := range cfg.Deadlines {
		if d > 0 {
			deadlines[p] = d
		}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop
	}

	return &Service{
		store:        deps.Store,
		orchestrator: deps.Orchestrator,
		rules:        deps.Rules,
		scorer:       deps.Scorer,
		analytics:    deps.Analytics,
		review:       deps.Review,
		publisher:    publisher,
		validator:    deps.Validator,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		tracer:       otel.Tracer(tracerName),
		deadlines:    deadlines,
	}
}

// SetEnqueuer makes SubmitScreening hand new requests to e
func (s *Service) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
}

// Deadline returns the fan-out budget for a priority
func (s *Service) Deadline(p models.Priority) time.Duration {
	if d, ok := s.deadlines[p]; ok {
		return d
	}
	return s.deadlines[models.PriorityNormal]
}

// SubmitScreening validates the input and creates a pending request. When an
// enqueuer is set the request is queued for processing. An input naming no
// usable provider is rejected with ErrNoUsableProviders. An empty provider
// list selects every configured provider.
func (s *Service) SubmitScreening(ctx context.Context, input SubmitInput) (*models.ScreeningRequest, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Priority == "" {
		input.Priority = models.PriorityNormal
	}
	if input.Subject.EntityType == "" {
		input.Subject.EntityType = models.EntityTypeIndividual
	}

	names := input.Providers
	if len(names) == 0 {
		configured, err := s.store.ListProviders(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range configured {
			names = append(names, p.Name)
		}
	}
	usable, err := s.orchestrator.Usable(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("providers %v: %w", names, models.ErrNoUsableProviders)
	}

	request := &models.ScreeningRequest{
		ID:             uuid.New().String(),
		Subject:        input.Subject,
		WatchlistTypes: input.WatchlistTypes,
		Providers:      names,
		Priority:       input.Priority,
		Status:         models.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateRequest(ctx, request); err != nil {
		return nil, err
	}

	s.analytics.RecordSubmitted(request.CreatedAt)
	s.metrics.RecordSubmitted(string(request.Priority))
	s.publish(ctx, events.TypeRequestCreated, request, map[string]interface{}{
		"priority":  string(request.Priority),
		"providers": request.Providers,
	})

	s.logger.Infow("Screening request created",
		"request_id", request.ID,
		"priority", request.Priority,
		"providers", request.Providers,
		"watchlist_types", request.WatchlistTypes)

	if s.enqueuer != nil {
		if err := s.enqueuer.Enqueue(ctx, request.ID); err != nil {
			return request, fmt.Errorf("request %s created but not queued: %w", request.ID, err)
		}
	}
	return request, nil
}

// GetRequest returns a request by id
func (s *Service) GetRequest(ctx context.Context, id string) (*models.ScreeningRequest, error) {
	return s.store.GetRequest(ctx, id)
}

// GetResult returns the result of a terminal request with its matches
func (s *Service) GetResult(ctx context.Context, requestID string) (*models.ScreeningResult, error) {
	result, err := s.store.GetResult(ctx, requestID)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.ListMatchesByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	result.Matches = matches
	return result, nil
}

// RecordReview stores a reviewer decision on a match
func (s *Service) RecordReview(ctx context.Context, matchID, reviewerID string, decision models.ReviewDecision, notes string) (*models.ScreeningMatch, error) {
	return s.review.RecordDisposition(ctx, matchID, reviewerID, decision, notes)
}

// GetAnalytics returns the current aggregated statistics
func (s *Service) GetAnalytics() analytics.Snapshot {
	return s.analytics.Snapshot()
}

// Process drives a pending request to completed or failed. Only a pending
// request can be processed; anything else returns ErrInvalidTransition.
func (s *Service) Process(ctx context.Context, requestID string) error {
	request, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, request, models.StatusInProgress); err != nil {
		return err
	}
	s.analytics.RecordStarted()
	s.publish(ctx, events.TypeScreeningStarted, request, nil)

	ctx, cancel := context.WithTimeout(ctx, s.Deadline(request.Priority))
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "service.Process", trace.WithAttributes(
		attribute.String("screening.request_id", request.ID),
		attribute.String("screening.priority", string(request.Priority)),
	))
	defer span.End()

	start := time.Now()
	outcome, screenErr := s.orchestrator.Screen(ctx, request)
	if screenErr != nil {
		span.RecordError(screenErr)
		span.SetStatus(codes.Error, screenErr.Error())
		return s.fail(ctx, request, outcome, screenErr, time.Since(start))
	}

	// Persist the outcome even if the fan-out deadline has just passed.
	ctx = context.WithoutCancel(ctx)

	ruleSet, err := s.store.ListRules(ctx)
	if err != nil {
		return s.fail(ctx, request, outcome, err, time.Since(start))
	}
	matches := s.rules.Apply(ctx, ruleSet, outcome.Matches, request)
	riskScore, recommendations := s.scorer.Score(matches)

	result := &models.ScreeningResult{
		RequestID:       request.ID,
		Status:          models.StatusCompleted,
		Matches:         matches,
		RiskScore:       riskScore,
		Recommendations: recommendations,
		ProcessedBy:     outcome.ProvidersSucceeded,
	}
	if len(outcome.ProviderErrors) > 0 {
		result.Errors = outcome.ProviderErrors
	}
	result.Summarize()
	result.ProcessingTime = time.Since(start)
	result.CompletedAt = time.Now().UTC()

	if err := s.finish(ctx, request, models.StatusCompleted, result, matches); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return err
		}
		return s.fail(ctx, request, outcome, err, time.Since(start))
	}

	reviews := 0
	for _, m := range matches {
		if m.RequiresManualReview {
			reviews++
		}
	}
	s.analytics.RecordCompleted(result.CompletedAt, result.ProcessingTime, result.TotalMatches, reviews)
	s.metrics.RecordFinished(string(request.Priority), string(models.StatusCompleted), result.ProcessingTime.Seconds(), riskScore)
	s.publish(ctx, events.TypeScreeningCompleted, request, map[string]interface{}{
		"total_matches":          result.TotalMatches,
		"risk_score":             riskScore,
		"requires_manual_review": result.RequiresManualReview,
	})
	span.SetAttributes(
		attribute.Int("screening.matches", result.TotalMatches),
		attribute.Float64("screening.risk_score", riskScore),
	)

	s.logger.Infow("Screening completed",
		"request_id", request.ID,
		"total_matches", result.TotalMatches,
		"risk_score", riskScore,
		"requires_manual_review", result.RequiresManualReview,
		"processed_by", result.ProcessedBy,
		"duration", result.ProcessingTime)
	return nil
}

// RecoverInterrupted fails every request left in_progress by a previous run,
// recommending a retry, and returns how many were failed. It must run before
// this process starts working on requests.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	stale, err := s.store.ListRequestsByStatus(ctx, models.StatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("list interrupted requests: %w", err)
	}

	failed := 0
	for _, request := range stale {
		var elapsed time.Duration
		if request.StartedAt != nil {
			elapsed = time.Since(*request.StartedAt)
		}
		if err := s.fail(ctx, request, nil, ErrInterrupted, elapsed); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				continue
			}
			return failed, err
		}
		failed++
	}
	if failed > 0 {
		s.logger.Warnw("Failed interrupted screening requests", "count", failed)
	}
	return failed, nil
}

// fail stores a failed result carrying the captured errors and moves the
// request to failed.
func (s *Service) fail(ctx context.Context, request *models.ScreeningRequest, outcome *providers.Outcome, cause error, elapsed time.Duration) error {
	errs := make(map[string]string)
	if outcome != nil {
		for provider, msg := range outcome.ProviderErrors {
			errs[provider] = msg
		}
	}
	if len(errs) == 0 {
		errs["engine"] = cause.Error()
	}

	ctx = context.WithoutCancel(ctx)

	result := &models.ScreeningResult{
		RequestID:       request.ID,
		Status:          models.StatusFailed,
		Matches:         []*models.ScreeningMatch{},
		Recommendations: []string{scoring.RecommendRetry},
		ProcessedBy:     []string{},
		Errors:          errs,
		ProcessingTime:  elapsed,
		CompletedAt:     time.Now().UTC(),
	}
	result.Summarize()
	if err := s.finish(ctx, request, models.StatusFailed, result, nil); err != nil {
		return fmt.Errorf("save failed result for request %s: %w", request.ID, err)
	}

	s.analytics.RecordFailed()
	s.metrics.RecordFinished(string(request.Priority), string(models.StatusFailed), elapsed.Seconds(), 0)
	s.publish(ctx, events.TypeScreeningFailed, request, map[string]interface{}{
		"errors": errs,
	})

	s.logger.Warnw("Screening failed",
		"request_id", request.ID,
		"errors", errs,
		"cause", cause)
	return nil
}

func (s *Service) transition(ctx context.Context, request *models.ScreeningRequest, next models.RequestStatus) error {
	updated, err := advance(request, next)
	if err != nil {
		return err
	}
	if err := s.store.UpdateRequest(ctx, updated, request.Status); err != nil {
		return err
	}
	*request = *updated
	return nil
}

// finish moves request to a terminal status together with its result and matches
func (s *Service) finish(ctx context.Context, request *models.ScreeningRequest, next models.RequestStatus, result *models.ScreeningResult, matches []*models.ScreeningMatch) error {
	updated, err := advance(request, next)
	if err != nil {
		return err
	}
	if err := s.store.FinishRequest(ctx, updated, request.Status, result, matches); err != nil {
		return err
	}
	*request = *updated
	return nil
}

func advance(request *models.ScreeningRequest, next models.RequestStatus) (*models.ScreeningRequest, error) {
	from := request.Status
	if !from.CanTransitionTo(next) {
		return nil, fmt.Errorf("request %s: %s -> %s: %w", request.ID, from, next, models.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	updated := *request
	updated.Status = next
	if next == models.StatusInProgress {
		updated.StartedAt = &now
	}
	if next.IsTerminal() {
		updated.CompletedAt = &now
	}
	return &updated, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, request *models.ScreeningRequest, payload map[string]interface{}) {
	event := events.New(t)
	event.RequestID = request.ID
	event.Payload["status"] = string(request.Status)
	for k, v := range payload {
		event.Payload[k] = v
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warnw("Failed to publish event", "type", t, "request_id", request.ID, "error", err)
	}
}

// IsValidation reports whether err was caused by invalid caller input
func IsValidation(err error) bool {
	var verrs validation.ValidationErrors
	return errors.As(err, &verrs) || errors.Is(err, models.ErrNoUsableProviders)
}

// GetTrend returns the daily buckets between from and to, inclusive
func (s *Service) GetTrend(from, to time.Time) []analytics.DailyBucket {
	return s.analytics.Trend(from, to)
}
