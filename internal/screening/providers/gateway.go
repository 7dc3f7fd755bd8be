package providers

import (
	"context"
	"fmt"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
)

// Gateway fetches candidate watchlist entities from a provider
type Gateway interface {
	FetchCandidates(ctx context.Context, provider string, listTypes []models.ListType, hint models.Subject) ([]models.WatchlistEntity, error)
}

// GatewayFunc adapts a function to the Gateway interface
type GatewayFunc func(ctx context.Context, provider string, listTypes []models.ListType, hint models.Subject) ([]models.WatchlistEntity, error)

// FetchCandidates calls f
func (f GatewayFunc) FetchCandidates(ctx context.Context, provider string, listTypes []models.ListType, hint models.Subject) ([]models.WatchlistEntity, error) {
	return f(ctx, provider, listTypes, hint)
}

// ProviderLookup resolves provider configuration by name
type ProviderLookup interface {
	GetProvider(ctx context.Context, name string) (*models.ProviderConfig, error)
}

// StoreGateway serves candidates from the ingested watchlist repository
type StoreGateway struct {
	entities storage.EntityRepository
}

// NewStoreGateway creates a gateway over an entity repository
func NewStoreGateway(entities storage.EntityRepository) *StoreGateway {
	return &StoreGateway{entities: entities}
}

// IgnoresHint reports that candidates depend only on provider and list types
func (g *StoreGateway) IgnoresHint() bool { return true }

// FetchCandidates returns the active entities the provider published for the requested list types
func (g *StoreGateway) FetchCandidates(ctx context.Context, provider string, listTypes []models.ListType, _ models.Subject) ([]models.WatchlistEntity, error) {
	found, err := g.entities.ListEntities(ctx, storage.EntityFilter{
		SourceProvider: provider,
		ListTypes:      listTypes,
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candidates from %s: %w", provider, err)
	}

	candidates := make([]models.WatchlistEntity, 0, len(found))
	for _, e := range found {
		candidates = append(candidates, *e)
	}
	return candidates, nil
}
