package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/shpitdev/community-landscape/pkg/pipeline/core"
	"golang.org/x/time/rate"
)

// processWithRetry calls processor until it succeeds, fails permanently, or exhausts the retry
// budget for the error it returned. Each attempt waits on the shared limiter first.
func processWithRetry[In any, Out any](
	ctx context.Context,
	item In,
	processor func(context.Context, In) (Out, error),
	limiter *rate.Limiter,
	opts Options,
) (Out, error) {
	var out Out
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return out, cerr
		}
		if limiter != nil {
			if werr := limiter.Wait(ctx); werr != nil {
				return out, werr
			}
		}

		out, err = attemptOnce(ctx, item, processor, opts.RequestTimeout)
		switch {
		case err == nil:
			return out, nil
		case ctx.Err() != nil:
			// The caller gave up; report that rather than the attempt's own error.
			return out, ctx.Err()
		case !isTransient(err) || attempt >= retryBudget(opts.MaxRetries, err):
			return out, err
		}

		if serr := sleepCtx(ctx, backoffSleep(opts.BackoffInitial, opts.BackoffMax, opts.BackoffJitterFrac, attempt)); serr != nil {
			return out, serr
		}
	}
}

func attemptOnce[In any, Out any](
	ctx context.Context,
	item In,
	processor func(context.Context, In) (Out, error),
	timeout time.Duration,
) (Out, error) {
	if timeout <= 0 {
		return processor(ctx, item)
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return processor(reqCtx, item)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryBudget is the number of extra attempts err deserves: the pool default, lowered by a
// per-error cap when the error carries one.
func retryBudget(poolRetries int, err error) int {
	budget := max(poolRetries, 0)
	var capped interface{ MaxExtraRetries() int }
	if errors.As(err, &capped) {
		budget = min(budget, max(capped.MaxExtraRetries(), 0))
	}
	return budget
}

// IsTransient reports whether err is worth retrying: an explicit transient marker, a deadline,
// or a network timeout.
func IsTransient(err error) bool {
	return isTransient(err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *core.TransientError
	var lte *core.LimitedTransientError
	var ne net.Error
	switch {
	case errors.As(err, &te), errors.As(err, &lte):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &ne):
		return ne.Timeout()
	}
	return false
}

// backoffSleep doubles initial per attempt up to ceiling, then applies +/- jitterFrac.
func backoffSleep(initial, ceiling time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < ceiling; i++ {
		sleep *= 2
	}
	sleep = min(sleep, ceiling)
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
