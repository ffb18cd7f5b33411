package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitPrefix prefixes limiter counters in Redis
const RateLimitPrefix = "ratelimit"

// RateLimitConfig holds configuration for the per-IP rate limiter
type RateLimitConfig struct {
	// Rate in limiter format, e.g. "300-M"
	Rate string
	// Redis shares counters between API instances. Nil keeps them in memory.
	Redis *redis.Client
}

// RateLimit limits requests per client IP
func RateLimit(cfg RateLimitConfig) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", cfg.Rate, err)
	}

	var store limiter.Store
	if cfg.Redis != nil {
		store, err = sredis.NewStoreWithOptions(cfg.Redis, limiter.StoreOptions{Prefix: RateLimitPrefix})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	return ginlimiter.NewMiddleware(limiter.New(store, rate)), nil
}
