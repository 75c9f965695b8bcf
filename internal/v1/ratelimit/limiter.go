// Package ratelimit throttles room creation and WebSocket connects,
// backed by Redis when available and local memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/config"
	"github.com/quizbattle/quizroom/internal/v1/logging"
	"github.com/quizbattle/quizroom/internal/v1/metrics"
)

// RateLimiter holds the per-concern limiter instances.
type RateLimiter struct {
	apiRooms *limiter.Limiter
	wsIP     *limiter.Limiter
	wsUser   *limiter.Limiter
	store    limiter.Store
}

// NewRateLimiter builds the limiters from the configured rates. A nil
// redisClient falls back to an in-process store.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	apiRoomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid API rooms rate: %w", err)
	}
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}
	wsUserRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsUser)
	if err != nil {
		return nil, fmt.Errorf("invalid WS user rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "✅ Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "⚠️  Rate limiter using Memory store (Redis disabled or unavailable)")
	}

	return &RateLimiter{
		apiRooms: limiter.New(store, apiRoomsRate),
		wsIP:     limiter.New(store, wsIPRate),
		wsUser:   limiter.New(store, wsUserRate),
		store:    store,
	}, nil
}

// RoomCreateMiddleware limits room creation per client IP.
func (rl *RateLimiter) RoomCreateMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		state, err := rl.apiRooms.Get(ctx, c.ClientIP())
		if err != nil {
			// Fail open: availability beats strictness here.
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(state.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(state.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(state.Reset, 10))

		if state.Reached {
			metrics.RateLimitExceeded.WithLabelValues("rooms_create", "ip").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": state.Reset,
			})
			return
		}
		c.Next()
	}
}

// CheckWebSocket gates a connection attempt by client IP before the
// upgrade. Writes the 429 response itself when the limit is hit.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	state, err := rl.wsIP.Get(ctx, c.ClientIP())
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed (IP)", zap.Error(err))
		return true
	}

	if state.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(state.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}
	return true
}

// CheckWebSocketIdentity applies the per-identity connect limit once
// the join payload resolved who is connecting.
func (rl *RateLimiter) CheckWebSocketIdentity(ctx context.Context, identityKey string) error {
	state, err := rl.wsUser.Get(ctx, identityKey)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed (identity)", zap.Error(err))
		return nil
	}

	if state.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "identity").Inc()
		return fmt.Errorf("rate limit exceeded for %s", identityKey)
	}
	return nil
}
