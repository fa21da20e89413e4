package query

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryFunc decides whether a failed fetch is retried. failureCount is the
// number of failures before this one, so the first call sees 0.
type RetryFunc func(failureCount int, err error) bool

// RetryCount retries up to n times whatever the error.
func RetryCount(n int) RetryFunc {
	return func(failureCount int, _ error) bool {
		return failureCount < n
	}
}

// NoRetry never retries.
func NoRetry(int, error) bool { return false }

// Options is the caching policy of one query.
type Options struct {
	// StaleTime is how long data stays fresh. Zero means always stale.
	StaleTime time.Duration
	// GCTime evicts an entry nobody touched for this long.
	GCTime time.Duration
	// Retry decides per failure; nil never retries.
	Retry RetryFunc
	// RetryBackOff builds the delay policy for one fetch; nil uses
	// DefaultBackOff.
	RetryBackOff func() backoff.BackOff
	// RefetchInterval refetches in the background while Run is active.
	// Zero disables.
	RefetchInterval time.Duration
	// RefetchOnFocus and RefetchOnReconnect opt into Focus and Reconnect.
	RefetchOnFocus     bool
	RefetchOnReconnect bool
}

// DefaultOptions returns 5 minute freshness, 10 minute retention, two
// retries, a 15 minute interval and both refetch triggers.
func DefaultOptions() Options {
	return Options{
		StaleTime:          5 * time.Minute,
		GCTime:             10 * time.Minute,
		Retry:              RetryCount(2),
		RefetchInterval:    15 * time.Minute,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
	}
}

// DefaultBackOff doubles from one second up to thirty seconds.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func (o Options) backOff() backoff.BackOff {
	if o.RetryBackOff != nil {
		return o.RetryBackOff()
	}
	return DefaultBackOff()
}
