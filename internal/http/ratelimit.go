package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/wallet-bridge/pkg/log"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RedisLimiter is a GCRA limiter shared by every bridge process using the
// same redis.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func NewRedisLimiter(client redis.UniversalClient, perMinute int) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.PerMinute(perMinute),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := l.limiter.Allow(ctx, "onramp:"+key, l.limit)
	if err != nil {
		return false, 0, err
	}
	return res.Allowed > 0, res.RetryAfter, nil
}

// rateLimited rejects callers over the limit with 429. Limiter failures let
// the request through.
func rateLimited(l Limiter) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if l == nil {
			ctx.Next()
			return
		}
		allowed, retryAfter, err := l.Allow(ctx.Request.Context(), ctx.ClientIP())
		if err != nil {
			log.Warnf("http - rate limiter:%v", err)
			ctx.Next()
			return
		}
		if !allowed {
			ctx.Header("Retry-After", strconv.Itoa(int(retryAfter/time.Second)+1))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 4290,
				"msg":  http.StatusText(http.StatusTooManyRequests),
			})
			return
		}
		ctx.Next()
	}
}
