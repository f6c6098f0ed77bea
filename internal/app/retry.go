package app

import (
	"time"

	"github.com/avast/retry-go"

	"guardian-go/internal/guardian"
)

// retryPolicy re-runs whole operations after transient failures.
// Blob insertion is idempotent, so a repeated backup only re-sends what
// the failed attempt did not store.
type retryPolicy struct {
	attempts uint
	delay    time.Duration
	logger   guardian.Logger
}

// withRetry runs fn until it succeeds, fails permanently, or runs out of
// attempts. The error of the last attempt is returned unwrapped so its
// kind survives for exit code mapping.
func (p retryPolicy) withRetry(name string, fn func() error) error {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	err := retry.Do(
		func() error {
			last = fn()
			return last
		},
		retry.Attempts(attempts),
		retry.Delay(p.delay),
		retry.RetryIf(func(err error) bool { return !guardian.IsPermanent(err) }),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("operation failed, retrying", "operation", name, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return last
	}
	return nil
}
