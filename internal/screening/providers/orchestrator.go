package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/matching"
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/monitoring"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/Aidin1998/watchlist_screening/internal/screening/providers"

// Outcome is the merged result of one fan-out over a request's providers
type Outcome struct {
	Matches            []*models.ScreeningMatch
	ProvidersSucceeded []string
	ProviderErrors     map[string]string
	Attempted          []string
}

// Orchestrator fans a screening request out to its providers and runs the
// entity matcher over the returned candidates.
type Orchestrator struct {
	gateway   Gateway
	providers ProviderLookup
	logger    *zap.SugaredLogger
	metrics   *monitoring.PrometheusMetrics
	tracer    trace.Tracer
}

// NewOrchestrator creates a provider orchestrator
func NewOrchestrator(gateway Gateway, providers ProviderLookup, logger *zap.SugaredLogger, metrics *monitoring.PrometheusMetrics) *Orchestrator {
	return &Orchestrator{
		gateway:   gateway,
		providers: providers,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer(tracerName),
	}
}

// Usable returns the configured, enabled providers among names, in the order
// given and without duplicates. Unknown and disabled providers are skipped.
func (o *Orchestrator) Usable(ctx context.Context, names []string) ([]models.ProviderConfig, error) {
	seen := make(map[string]bool, len(names))
	usable := make([]models.ProviderConfig, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		cfg, err := o.providers.GetProvider(ctx, name)
		if errors.Is(err, models.ErrNotFound) {
			o.logger.Infow("Skipping unknown provider", "provider", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve provider %s: %w", name, err)
		}
		if !cfg.Enabled {
			o.logger.Infow("Skipping disabled provider", "provider", name)
			continue
		}
		usable = append(usable, *cfg)
	}
	return usable, nil
}

type providerResult struct {
	matches []*models.ScreeningMatch
	err     error
}

// Screen queries every usable provider of the request concurrently. A failing
// provider never aborts its siblings. It returns ErrNoUsableProviders when
// nothing could be attempted and ErrAllProvidersFailed, with the outcome
// populated, when every attempt failed.
func (o *Orchestrator) Screen(ctx context.Context, request *models.ScreeningRequest) (*Outcome, error) {
	usable, err := o.Usable(ctx, request.Providers)
	if err != nil {
		return nil, err
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("request %s: %w", request.ID, models.ErrNoUsableProviders)
	}

	results := make([]providerResult, len(usable))
	var g errgroup.Group
	for i := range usable {
		i, cfg := i, usable[i]
		g.Go(func() error {
			matches, err := o.screenProvider(ctx, request, cfg)
			results[i] = providerResult{matches: matches, err: err}
			return nil
		})
	}
	_ = g.Wait()

	outcome := &Outcome{
		Matches:            make([]*models.ScreeningMatch, 0),
		ProvidersSucceeded: make([]string, 0, len(usable)),
		ProviderErrors:     make(map[string]string),
		Attempted:          make([]string, 0, len(usable)),
	}
	for i, cfg := range usable {
		outcome.Attempted = append(outcome.Attempted, cfg.Name)
		if results[i].err != nil {
			outcome.ProviderErrors[cfg.Name] = results[i].err.Error()
			continue
		}
		outcome.ProvidersSucceeded = append(outcome.ProvidersSucceeded, cfg.Name)
		outcome.Matches = append(outcome.Matches, results[i].matches...)
	}
	for seq, m := range outcome.Matches {
		m.Sequence = seq
	}

	if len(outcome.ProvidersSucceeded) == 0 {
		return outcome, fmt.Errorf("request %s: %w", request.ID, models.ErrAllProvidersFailed)
	}
	return outcome, nil
}

func (o *Orchestrator) screenProvider(ctx context.Context, request *models.ScreeningRequest, cfg models.ProviderConfig) ([]*models.ScreeningMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "providers.FetchCandidates", trace.WithAttributes(
		attribute.String("screening.request_id", request.ID),
		attribute.String("screening.provider", cfg.Name),
	))
	defer span.End()

	start := time.Now()
	candidates, err := o.gateway.FetchCandidates(ctx, cfg.Name, request.WatchlistTypes, request.Subject)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.RecordProviderCall(cfg.Name, "error", elapsed.Seconds())
		o.logger.Warnw("Provider screening failed",
			"request_id", request.ID,
			"provider", cfg.Name,
			"duration", elapsed,
			"error", err)
		return nil, err
	}
	o.metrics.RecordProviderCall(cfg.Name, "success", elapsed.Seconds())

	now := time.Now().UTC()
	matches := make([]*models.ScreeningMatch, 0)
	for _, entity := range candidates {
		if !request.WantsListType(entity.ListType) || !cfg.Serves(entity.ListType) {
			continue
		}
		m := matching.Compare(request.Subject, entity)
		if m.MatchLevel == models.MatchLevelNone {
			continue
		}
		m.ID = uuid.New().String()
		m.RequestID = request.ID
		m.SourceProvider = cfg.Name
		m.CreatedAt = now
		matches = append(matches, &m)
		o.metrics.RecordMatch(string(m.MatchLevel), string(m.ListType), m.ConfidenceScore)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchLevel.Rank() != matches[j].MatchLevel.Rank() {
			return matches[i].MatchLevel.Rank() > matches[j].MatchLevel.Rank()
		}
		return matches[i].ConfidenceScore > matches[j].ConfidenceScore
	})

	span.SetAttributes(
		attribute.Int("screening.candidates", len(candidates)),
		attribute.Int("screening.matches", len(matches)),
	)
	o.logger.Infow("Provider screening finished",
		"request_id", request.ID,
		"provider", cfg.Name,
		"candidates", len(candidates),
		"matches", len(matches),
		"duration", elapsed)
	return matches, nil
}
