package fetcher

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy controls how Fetch retries a failed page request.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxElapsed     time.Duration
	// Retryable decides whether an attempt error is retried. Nil means IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns three attempts with exponential backoff capped at
// 10s and 30s overall.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		MaxElapsed:     30 * time.Second,
		Retryable:      IsTransient,
	}
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsTransient(err)
	}
	return p.Retryable(err)
}

// backoff builds a fresh schedule; the elapsed-time ceiling starts counting here.
func (p RetryPolicy) backoff() retry.Backoff {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Millisecond
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := retry.NewExponential(initial)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	if p.MaxElapsed > 0 {
		b = retry.WithMaxDuration(p.MaxElapsed, b)
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}
