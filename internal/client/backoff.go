package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const jitter = 0.2

// retrier hands out reconnect delays until MaxRetries is spent. The delay
// for attempt k is min(initial*2^k, max) with ±20% jitter.
type retrier struct {
	policy   *backoff.ExponentialBackOff
	attempts int
	max      int
}

func newRetrier(opts Options) *retrier {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.InitialDelay
	policy.MaxInterval = opts.MaxDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = jitter
	policy.MaxElapsedTime = 0
	policy.Reset()

	return &retrier{policy: policy, max: opts.MaxRetries}
}

// next returns the delay before the next attempt, or false once the retry
// budget is exhausted
func (r *retrier) next() (time.Duration, bool) {
	if r.attempts >= r.max {
		return 0, false
	}
	r.attempts++
	return r.policy.NextBackOff(), true
}

func (r *retrier) reset() {
	r.attempts = 0
	r.policy.Reset()
}
