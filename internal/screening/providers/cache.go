package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/monitoring"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by a CandidateCache for an absent key
var ErrCacheMiss = errors.New("candidate cache miss")

// CandidateCache stores encoded candidate lists
type CandidateCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, provider string) error
}

// RedisCache is a CandidateCache backed by Redis
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a Redis candidate cache with keys under prefix
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "screening:candidates"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+":"+key, value, ttl).Err()
}

// Invalidate drops every cached candidate list of a provider
func (c *RedisCache) Invalidate(ctx context.Context, provider string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":"+provider+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// HintIndependent is implemented by gateways whose candidates do not depend
// on the subject hint
type HintIndependent interface {
	IgnoresHint() bool
}

func ignoresHint(g Gateway) bool {
	h, ok := g.(HintIndependent)
	return ok && h.IgnoresHint()
}

// CachedGateway caches candidate lists per provider, list-type selection and
// subject hint. The hint is left out of the key only when the inner gateway
// reports it as HintIndependent. Cache failures fall through to the inner gateway.
type CachedGateway struct {
	inner       Gateway
	cache       CandidateCache
	ttl         time.Duration
	logger      *zap.SugaredLogger
	metrics     *monitoring.PrometheusMetrics
	ignoresHint bool
}

// NewCachedGateway wraps inner with a candidate cache
func NewCachedGateway(inner Gateway, cache CandidateCache, ttl time.Duration, logger *zap.SugaredLogger, metrics *monitoring.PrometheusMetrics) *CachedGateway {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedGateway{
		inner:       inner,
		cache:       cache,
		ttl:         ttl,
		logger:      logger,
		metrics:     metrics,
		ignoresHint: ignoresHint(inner),
	}
}

// CacheKey identifies a provider and list-type selection independent of order.
// A non-nil hint adds a digest of the normalized subject.
func CacheKey(provider string, listTypes []models.ListType, hint *models.Subject) string {
	types := make([]string, 0, len(listTypes))
	for _, lt := range listTypes {
		types = append(types, string(lt))
	}
	sort.Strings(types)
	if len(types) == 0 {
		types = append(types, "all")
	}
	key := fmt.Sprintf("%s:%s", provider, strings.Join(types, ","))
	if hint != nil {
		key += ":" + HintDigest(*hint)
	}
	return key
}

// HintDigest hashes the fields of a subject that can narrow a candidate search.
// Case, surrounding space and alias order do not change the digest.
func HintDigest(subject models.Subject) string {
	aliases := make([]string, 0, len(subject.Aliases))
	for _, a := range subject.Aliases {
		aliases = append(aliases, strings.ToLower(strings.TrimSpace(a)))
	}
	sort.Strings(aliases)

	parts := []string{
		strings.ToLower(strings.TrimSpace(subject.Name)),
		strings.Join(aliases, "\x1e"),
		strings.TrimSpace(subject.DateOfBirth),
		strings.ToUpper(strings.TrimSpace(subject.Nationality)),
		string(subject.EntityType),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

func (g *CachedGateway) FetchCandidates(ctx context.Context, provider string, listTypes []models.ListType, hint models.Subject) ([]models.WatchlistEntity, error) {
	var key string
	if g.ignoresHint {
		key = CacheKey(provider, listTypes, nil)
	} else {
		key = CacheKey(provider, listTypes, &hint)
	}

	data, err := g.cache.Get(ctx, key)
	switch {
	case err == nil:
		var candidates []models.WatchlistEntity
		if jsonErr := json.Unmarshal(data, &candidates); jsonErr == nil {
			g.metrics.RecordCacheLookup("hit")
			return candidates, nil
		}
		g.metrics.RecordCacheLookup("error")
	case errors.Is(err, ErrCacheMiss):
		g.metrics.RecordCacheLookup("miss")
	default:
		g.metrics.RecordCacheLookup("error")
		g.logger.Warnw("Candidate cache read failed", "provider", provider, "error", err)
	}

	candidates, err := g.inner.FetchCandidates(ctx, provider, listTypes, hint)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(candidates); err == nil {
		if err := g.cache.Set(ctx, key, encoded, g.ttl); err != nil {
			g.logger.Warnw("Candidate cache write failed", "provider", provider, "error", err)
		}
	}
	return candidates, nil
}

// Invalidate drops the cached candidates of a provider
func (g *CachedGateway) Invalidate(ctx context.Context, provider string) error {
	return g.cache.Invalidate(ctx, provider)
}
