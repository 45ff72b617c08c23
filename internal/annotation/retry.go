package annotation

import (
	"time"

	"github.com/phrazzld/aves-annotator/internal/config"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how transient failures are retried. The delay before
// retry n is BaseDelay * 2^(n-1), capped at MaxDelay; an item gets at most
// MaxRetries+1 attempts.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// PolicyFromConfig converts the retry configuration section.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
	}
}

// MaxAttempts returns the total number of attempts the policy allows.
func (p RetryPolicy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// backoff builds a fresh backoff; exponential backoffs are stateful and must
// not be shared between items.
func (p RetryPolicy) backoff() retry.Backoff {
	var b retry.Backoff
	if p.BaseDelay > 0 {
		b = retry.NewExponential(p.BaseDelay)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(uint64(p.MaxAttempts()-1), b)
}
