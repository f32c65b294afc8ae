// Package retry decides whether a failed chunk write may be attempted again and how long to
// wait before doing so.
package retry

import (
	"errors"
	"time"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

// MaxBackoff caps the exponential wait between two write attempts.
const MaxBackoff = 10 * time.Second

// RetryPolicy is consulted by the retrying writer after a failed attempt.
type RetryPolicy interface {
	ShouldRetry(err error) bool
	// GetMaxAttempts is the number of retries after the first attempt.
	GetMaxAttempts() int
	// GetBackoffInterval is the wait before retry number attempt (1-based).
	GetBackoffInterval(attempt int) time.Duration
}

// ExponentialPolicy retries errors flagged retryable on a *exception.BatchError, and errors
// whose type name or message matches one of Retryable (see exception.IsErrorOfType).
type ExponentialPolicy struct {
	Attempts  int
	Initial   time.Duration
	Retryable []string
}

var _ RetryPolicy = (*ExponentialPolicy)(nil)

// NewRetryPolicy returns an ExponentialPolicy doubling from initialInterval.
func NewRetryPolicy(maxAttempts int, initialInterval time.Duration, retryableErrors []string) RetryPolicy {
	return &ExponentialPolicy{Attempts: maxAttempts, Initial: initialInterval, Retryable: retryableErrors}
}

// GetMaxAttempts implements RetryPolicy.
func (p *ExponentialPolicy) GetMaxAttempts() int { return p.Attempts }

// ShouldRetry implements RetryPolicy. Nothing is retried when Attempts is zero.
//
// Returns:
//
//	true when err carries the retryable flag of a *exception.BatchError anywhere in its chain,
//	or matches one of Retryable by type name or message.
func (p *ExponentialPolicy) ShouldRetry(err error) bool {
	if err == nil || p.Attempts <= 0 {
		return false
	}
	if be := (*exception.BatchError)(nil); errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	for _, match := range p.Retryable {
		if exception.IsErrorOfType(err, match) {
			return true
		}
	}
	return false
}

// GetBackoffInterval implements RetryPolicy. The wait is Initial for the first retry and doubles
// for every following one, up to MaxBackoff. attempt below 1 yields no wait.
func (p *ExponentialPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 || p.Initial <= 0 {
		return 0
	}
	wait := p.Initial
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= MaxBackoff {
			return MaxBackoff
		}
	}
	return wait
}
