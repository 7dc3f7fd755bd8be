package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"go.uber.org/zap"
)

// Invalidator drops cached candidates of a provider
type Invalidator interface {
	Invalidate(ctx context.Context, provider string) error
}

// SyncConfigs makes the stored provider table match configs. Providers that
// are no longer configured are disabled rather than removed, so requests
// naming them fail cleanly. Cached candidates of every changed provider are
// invalidated when invalidator is set.
func SyncConfigs(ctx context.Context, repo storage.ProviderRepository, configs []models.ProviderConfig, invalidator Invalidator, logger *zap.SugaredLogger) error {
	existing, err := repo.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("list providers: %w", err)
	}
	current := make(map[string]*models.ProviderConfig, len(existing))
	for _, p := range existing {
		current[p.Name] = p
	}

	now := time.Now().UTC()
	configured := make(map[string]bool, len(configs))
	var changed []string
	for i := range configs {
		cfg := configs[i]
		configured[cfg.Name] = true
		if old, ok := current[cfg.Name]; ok && sameConfig(old, &cfg) {
			continue
		}
		cfg.UpdatedAt = now
		if err := repo.SaveProvider(ctx, &cfg); err != nil {
			return fmt.Errorf("save provider %s: %w", cfg.Name, err)
		}
		changed = append(changed, cfg.Name)
	}

	for name, p := range current {
		if configured[name] || !p.Enabled {
			continue
		}
		disabled := *p
		disabled.Enabled = false
		disabled.UpdatedAt = now
		if err := repo.SaveProvider(ctx, &disabled); err != nil {
			return fmt.Errorf("disable provider %s: %w", name, err)
		}
		changed = append(changed, name)
	}

	for _, name := range changed {
		if invalidator == nil {
			break
		}
		if err := invalidator.Invalidate(ctx, name); err != nil {
			logger.Warnw("Failed to invalidate candidate cache", "provider", name, "error", err)
		}
	}

	if len(changed) > 0 {
		logger.Infow("Provider configuration synchronised", "changed", changed, "configured", len(configs))
	}
	return nil
}

func sameConfig(a, b *models.ProviderConfig) bool {
	if a.Enabled != b.Enabled || a.TimeoutMs != b.TimeoutMs ||
		a.RetryAttempts != b.RetryAttempts || a.RateLimitPerMinute != b.RateLimitPerMinute ||
		len(a.ListTypes) != len(b.ListTypes) {
		return false
	}
	for i := range a.ListTypes {
		if a.ListTypes[i] != b.ListTypes[i] {
			return false
		}
	}
	return true
}
