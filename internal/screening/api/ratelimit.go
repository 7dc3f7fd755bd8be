package api

import (
	"fmt"
	"sync"
	"time"

	commonerrors "github.com/Aidin1998/watchlist_screening/common/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const clientLimiterTTL = 10 * time.Minute

// clientLimiter tracks the token bucket of a single client IP
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter limits API requests per client IP
type IPRateLimiter struct {
	mu          sync.Mutex
	perSecond   rate.Limit
	burst       int
	clients     map[string]*clientLimiter
	lastCleanup time.Time
	errors      *commonerrors.Handler
	logger      *zap.SugaredLogger
}

// NewIPRateLimiter creates a limiter allowing perSecond requests per client
// with the given burst
func NewIPRateLimiter(perSecond float64, burst int, logger *zap.SugaredLogger) *IPRateLimiter {
	if burst <= 0 {
		burst = int(perSecond) + 1
	}
	return &IPRateLimiter{
		perSecond:   rate.Limit(perSecond),
		burst:       burst,
		clients:     make(map[string]*clientLimiter),
		lastCleanup: time.Now(),
		errors:      commonerrors.NewHandler(nil),
		logger:      logger,
	}
}

// Middleware rejects requests over the client's budget with 429
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.allow(ip, time.Now()) {
			l.logger.Warnw("Client rate limit exceeded", "client_ip", ip, "path", c.Request.URL.Path)
			c.Header("Retry-After", "1")
			l.errors.Write(c, commonerrors.NewRateLimitError(
				fmt.Sprintf("more than %.0f requests per second", float64(l.perSecond)), c.Request.URL.Path))
			return
		}
		c.Next()
	}
}

func (l *IPRateLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) > clientLimiterTTL {
		for key, client := range l.clients {
			if now.Sub(client.lastAccess) > clientLimiterTTL {
				delete(l.clients, key)
			}
		}
		l.lastCleanup = now
	}

	client, ok := l.clients[ip]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.clients[ip] = client
	}
	client.lastAccess = now
	return client.limiter.AllowN(now, 1)
}
