package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/visitlens/visitlens/internal/core"
)

// RateLimitConfig describes the spacing floor and the rolling quota window.
type RateLimitConfig struct {
	// Floor is the minimum spacing between granted requests.
	Floor time.Duration
	// Requests per Window before callers wait for the window to reset.
	Requests int
	Window   time.Duration
	// Jitter added on top of a spacing wait, to desynchronize from other
	// instances hitting the same upstream.
	JitterMin time.Duration
	JitterMax time.Duration
}

// RateLimiter enforces a minimum inter-request spacing plus a rolling quota
// window. Acquire never fails except on context cancellation; it only
// delays. All Acquire calls are strictly ordered under the mutex so
// concurrent callers cannot observe a stale window and both bypass the
// quota.
type RateLimiter struct {
	mu     sync.Mutex
	pacer  *rate.Limiter
	budget core.RateBudget
	cfg    RateLimitConfig

	// Clock and Sleep are injectable for tests.
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Rand   func() float64
	Logger *zap.Logger
}

// NewRateLimiter builds a limiter for the given config.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.Floor <= 0 {
		cfg.Floor = 2 * time.Second
	}
	if cfg.Requests <= 0 {
		cfg.Requests = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		pacer:  rate.NewLimiter(rate.Every(cfg.Floor), 1),
		cfg:    cfg,
		Logger: logger,
	}
}

// Acquire blocks until it is safe to issue one upstream request, then
// records it against the quota window.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	res := l.pacer.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		wait := delay + l.jitter()
		l.Logger.Debug("rate limiter pacing",
			zap.Duration("wait", wait))
		if err := l.sleep(ctx, wait); err != nil {
			res.CancelAt(l.now())
			return err
		}
	}

	now = l.now()
	if l.budget.WindowStart.IsZero() || now.Sub(l.budget.WindowStart) >= l.cfg.Window {
		l.budget.WindowStart = now
		l.budget.RequestsInWindow = 0
	}
	if l.budget.RequestsInWindow >= l.cfg.Requests {
		wait := l.budget.WindowStart.Add(l.cfg.Window).Sub(now)
		l.Logger.Debug("rate limiter quota window exhausted",
			zap.Int("requests", l.budget.RequestsInWindow),
			zap.Duration("wait", wait))
		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
		l.budget.WindowStart = l.now()
		l.budget.RequestsInWindow = 0
	}

	l.budget.RequestsInWindow++
	l.budget.LastRequestAt = l.now()
	return nil
}

// Budget returns a snapshot of the current window state.
func (l *RateLimiter) Budget() core.RateBudget {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.budget
}

func (l *RateLimiter) jitter() time.Duration {
	span := l.cfg.JitterMax - l.cfg.JitterMin
	if span <= 0 {
		return l.cfg.JitterMin
	}
	return l.cfg.JitterMin + time.Duration(l.randFloat()*float64(span))
}

func (l *RateLimiter) randFloat() float64 {
	if l.Rand != nil {
		return l.Rand()
	}
	return rand.Float64()
}

func (l *RateLimiter) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

func (l *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
