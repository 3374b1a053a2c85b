package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"snapgram/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// CheckRateLimit counts one hit for resource/id in a fixed window.
// Returns true if allowed, false if limit exceeded.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// RateLimit returns a Fiber middleware enforcing limit requests per window.
// It keys by client id when one is known, otherwise by remote IP, and lets
// requests through when Redis is unavailable.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := rateLimitID(c)
		allowed, err := CheckRateLimit(c.UserContext(), rdb, name, id, limit, window)
		if err != nil {
			observability.Logger().WarnContext(c.UserContext(), "rate limit unavailable",
				slog.String("resource", name), slog.Any("error", err))
			return c.Next()
		}
		if !allowed {
			return tooManyRequests(c)
		}
		return c.Next()
	}
}

// LocalRateLimit is the single-process counterpart of RateLimit: a token
// bucket per client (or IP) refilling limit tokens per window.
func LocalRateLimit(limit int, window time.Duration) fiber.Handler {
	l := newLocalLimiter(limit, window, time.Now)
	return func(c *fiber.Ctx) error {
		if !l.allow(rateLimitID(c)) {
			return tooManyRequests(c)
		}
		return c.Next()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiter holds one bucket per id. A bucket idle for a full window has
// refilled, so it is dropped and recreated on the next hit.
type localLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	every     rate.Limit
	burst     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func newLocalLimiter(limit int, window time.Duration, now func() time.Time) *localLimiter {
	return &localLimiter{
		buckets:   make(map[string]*bucket),
		every:     rate.Every(window / time.Duration(limit)),
		burst:     limit,
		window:    window,
		now:       now,
		lastSweep: now(),
	}
}

func (l *localLimiter) allow(id string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}
	b, ok := l.buckets[id]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[id] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for at least one window. Callers hold l.mu.
func (l *localLimiter) sweep(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.buckets, id)
		}
	}
	l.lastSweep = now
}

func (l *localLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func rateLimitID(c *fiber.Ctx) string {
	if cid := ClientID(c); cid != "" {
		return "client:" + cid
	}
	return "ip:" + c.IP()
}

func tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": "rate limit exceeded",
	})
}
