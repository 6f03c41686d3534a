// Package retry re-runs backend calls that failed for a transient reason.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/storefront-checkout/commerce"
	"github.com/aswathylr-builds/storefront-checkout/logging"
)

// Policy controls how many times and how fast an operation is retried
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxJitter    time.Duration

	// Jitter returns a value in [0, n). Nil uses math/rand.
	Jitter func(n time.Duration) time.Duration
	// Sleep waits d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy allows at most three attempts
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		MaxJitter:    50 * time.Millisecond,
	}
}

// Classification is the retry decision taken for a failed attempt
type Classification struct {
	Retryable bool
	Reason    string
}

// Classify decides whether err is worth another attempt
func Classify(err error) Classification {
	var cerr *commerce.Error
	if !errors.As(err, &cerr) {
		return Classification{Reason: "unclassified error"}
	}
	if cerr.Transient() {
		if cerr.Code != "" {
			return Classification{Retryable: true, Reason: "transient backend code " + cerr.Code}
		}
		return Classification{Retryable: true, Reason: "transient backend status " + strconv.Itoa(cerr.Status)}
	}
	return Classification{Reason: string(cerr.Kind) + " backend status " + strconv.Itoa(cerr.Status)}
}

// Delay returns the wait before retry number attempt (0-indexed), without jitter
func (p Policy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, fails fatally, or the retry budget is spent.
// The last error is returned unchanged.
func Do[T any](ctx context.Context, policy Policy, logger log.Logger, op func(context.Context) (T, error)) (T, error) {
	logger = logging.OrNop(logger)
	jitter := policy.Jitter
	if jitter == nil {
		jitter = randomJitter
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		c := Classify(err)
		if !c.Retryable || attempt >= policy.MaxRetries {
			return result, err
		}

		delay := policy.Delay(attempt)
		if policy.MaxJitter > 0 {
			delay += jitter(policy.MaxJitter)
		}
		logger.Warn("Retrying backend call",
			"attempt", attempt+1,
			"max_retries", policy.MaxRetries,
			"delay", delay,
			"reason", c.Reason,
			"error", err)

		if serr := sleep(ctx, delay); serr != nil {
			var zero T
			return zero, serr
		}
	}
}

func randomJitter(n time.Duration) time.Duration {
	return rand.N(n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
