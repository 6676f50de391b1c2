package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AccountLimiter paces publishes per downstream account so a burst of
// fetched posts from one fast-moving source doesn't trip the downstream
// service's own rate limit. Grounded on the teacher's
// internal/social/ratelimiter.go (one token bucket per platform+account,
// lazily created, guarded by a RWMutex).
type AccountLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewAccountLimiter builds a limiter allowing ratePerMinute publishes per
// minute per account, with a short burst allowance.
func NewAccountLimiter(ratePerMinute int, burst int) *AccountLimiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	if burst <= 0 {
		burst = 5
	}
	return &AccountLimiter{
		limit:    rate.Every(time.Minute / time.Duration(ratePerMinute)),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (a *AccountLimiter) get(accountID string) *rate.Limiter {
	a.mu.RLock()
	l, ok := a.limiters[accountID]
	a.mu.RUnlock()
	if ok {
		return l
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.limiters[accountID]; ok {
		return l
	}
	l = rate.NewLimiter(a.limit, a.burst)
	a.limiters[accountID] = l
	return l
}

// Wait blocks until accountID's bucket has a token to spend, or ctx is done.
func (a *AccountLimiter) Wait(ctx context.Context, accountID string) error {
	if err := a.get(accountID).Wait(ctx); err != nil {
		return fmt.Errorf("publish rate limit wait for account %s: %w", accountID, err)
	}
	return nil
}
