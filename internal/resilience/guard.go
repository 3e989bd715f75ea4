package resilience

import (
	"context"
	"time"

	"github.com/sells-group/atlas-research/internal/model"
)

// Guard applies the shared call policy to every external provider call:
// a per-attempt deadline, retries on transient errors, and a breaker per
// provider. Failures come back as *model.ProviderFailure.
type Guard struct {
	retry    RetryConfig
	breakers *ServiceBreakers
}

// NewGuard creates a Guard.
func NewGuard(retry RetryConfig, circuit CircuitBreakerConfig) *Guard {
	return &Guard{retry: retry, breakers: NewServiceBreakers(circuit)}
}

// Breakers exposes the per-provider breakers for health reporting.
func (g *Guard) Breakers() *ServiceBreakers {
	return g.breakers
}

// Call runs fn for provider/operation under g's policy. timeout bounds each
// attempt; zero means no per-attempt deadline.
func Call[T any](ctx context.Context, g *Guard, provider, operation string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := g.retry
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(provider, operation)
	}
	cb := g.breakers.Get(provider)

	val, err := DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, cb, func(ctx context.Context) (T, error) {
			if timeout <= 0 {
				return fn(ctx)
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return fn(callCtx)
		})
	})
	if err != nil {
		var zero T
		return zero, model.NewProviderFailure(provider, operation, err)
	}
	return val, nil
}
