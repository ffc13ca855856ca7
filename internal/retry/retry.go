// Package retry bounds attempts for one logical call (one stage for one
// page) and spaces them with exponential backoff plus jitter, so a burst of
// failing pages does not hammer the remote API in lockstep.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pagescribe/pagescribe/internal/common"
)

// Policy fixes the attempt budget and the backoff curve bounds.
type Policy struct {
	MaxAttempts int           // budget for transient failures
	BaseDelay   time.Duration // first backoff interval
	MaxDelay    time.Duration // backoff cap
}

// DefaultPolicy mirrors the run defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// budget returns how many attempts a failure class may consume. Malformed
// responses get one re-ask; rejected, fatal, and unclassified failures get
// no retry at all.
func (p Policy) budget(kind common.Kind) int {
	switch kind {
	case common.KindTransient:
		return p.MaxAttempts
	case common.KindMalformedOutput:
		if p.MaxAttempts < 2 {
			return p.MaxAttempts
		}
		return 2
	default:
		return 1
	}
}

// Do runs op until it succeeds, its failure class runs out of budget, or ctx
// ends. The last classified error is returned rather than raised past the
// caller; attempts reports how many calls were made.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op func(context.Context) (T, error)) (result T, attempts int, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		bo.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		bo.MaxInterval = p.MaxDelay
	}
	bo.MaxElapsedTime = 0 // the attempt budget is the only bound
	bo.Reset()

	for attempts = 1; ; attempts++ {
		result, err = op(ctx)
		if err == nil {
			return result, attempts, nil
		}
		kind := common.KindOf(err)
		if attempts >= p.budget(kind) {
			return result, attempts, err
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return result, attempts, err
		}
		logger.Warn("retry.backoff",
			"attempt", attempts,
			"kind", string(kind),
			"wait_ms", wait.Milliseconds(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return result, attempts, err
		case <-time.After(wait):
		}
	}
}
