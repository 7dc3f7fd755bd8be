package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/monitoring"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilientGateway applies each provider's RetryAttempts and RateLimitPerMinute
// to an inner gateway.
type ResilientGateway struct {
	inner     Gateway
	providers ProviderLookup
	logger    *zap.SugaredLogger
	metrics   *monitoring.PrometheusMetrics
	backoff   time.Duration

	mu       sync.Mutex
	limiters map[string]*providerLimiter
}

type providerLimiter struct {
	perMinute int
	limiter   *rate.Limiter
}

// NewResilientGateway wraps inner with per-provider retries and rate limits
func NewResilientGateway(inner Gateway, providers ProviderLookup, logger *zap.SugaredLogger, metrics *monitoring.PrometheusMetrics) *ResilientGateway {
	return &ResilientGateway{
		inner:     inner,
		providers: providers,
		logger:    logger,
		metrics:   metrics,
		backoff:   100 * time.Millisecond,
		limiters:  make(map[string]*providerLimiter),
	}
}

// SetBackoff changes the delay before the first retry. Later retries double it.
func (g *ResilientGateway) SetBackoff(d time.Duration) {
	if d > 0 {
		g.backoff = d
	}
}

// FetchCandidates waits for the provider's rate limiter, then calls the inner
// gateway up to 1+RetryAttempts times with exponential backoff.
// IgnoresHint forwards the hint independence of the wrapped gateway
func (g *ResilientGateway) IgnoresHint() bool {
	return ignoresHint(g.inner)
}

func (g *ResilientGateway) FetchCandidates(ctx context.Context, provider string, listTypes []models.ListType, hint models.Subject) ([]models.WatchlistEntity, error) {
	cfg, err := g.providers.GetProvider(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider, err)
	}

	attempts := 1 + cfg.RetryAttempts
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			g.metrics.RecordProviderRetry(provider)
			delay := g.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("provider %s: %w (last error: %v)", provider, ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}

		if limiter := g.limiterFor(cfg); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("provider %s rate limited: %w", provider, err)
			}
		}

		candidates, err := g.inner.FetchCandidates(ctx, provider, listTypes, hint)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		g.logger.Warnw("Provider call failed",
			"provider", provider,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"error", err)
	}
	return nil, lastErr
}

// limiterFor returns the provider's limiter, rebuilding it when the configured
// rate changed. A non-positive rate means unlimited.
func (g *ResilientGateway) limiterFor(cfg *models.ProviderConfig) *rate.Limiter {
	if cfg.RateLimitPerMinute <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	pl, ok := g.limiters[cfg.Name]
	if !ok || pl.perMinute != cfg.RateLimitPerMinute {
		burst := cfg.RateLimitPerMinute / 60
		if burst < 1 {
			burst = 1
		}
		pl = &providerLimiter{
			perMinute: cfg.RateLimitPerMinute,
			limiter:   rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60.0), burst),
		}
		g.limiters[cfg.Name] = pl
	}
	return pl.limiter
}
