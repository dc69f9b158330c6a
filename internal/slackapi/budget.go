package slackapi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Budget is the request budget shared by every concurrent invocation.
// Besides the steady token bucket it carries a pause gate: when Slack
// throttles one call, all callers hold off until the indicated instant.
type Budget struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewBudget(maxBurst int, ratePerMinute float64) *Budget {
	if maxBurst <= 0 {
		maxBurst = 10
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 50
	}
	return &Budget{
		limiter: rate.NewLimiter(rate.Limit(ratePerMinute/60.0), maxBurst),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Wait blocks until a pause (if any) has elapsed and a token is available.
func (b *Budget) Wait(ctx context.Context) error {
	if d := b.PausedFor(); d > 0 {
		if err := b.sleep(ctx, d); err != nil {
			return err
		}
	}
	return b.limiter.Wait(ctx)
}

// Pause holds every caller for at least d. Overlapping pauses keep the later
// deadline.
func (b *Budget) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := b.now().Add(d)
	b.mu.Lock()
	if until.After(b.pausedUntil) {
		b.pausedUntil = until
	}
	b.mu.Unlock()
}

// PausedFor returns how long callers still have to wait, or zero.
func (b *Budget) PausedFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d := b.pausedUntil.Sub(b.now()); d > 0 {
		return d
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
