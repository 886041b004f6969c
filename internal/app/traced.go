package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shpitdev/community-landscape/internal/pipeline"
	"github.com/shpitdev/community-landscape/pkg/influence"
	"github.com/shpitdev/community-landscape/pkg/pipeline/redact"
	"github.com/shpitdev/community-landscape/pkg/pipeline/worker"
)

// tracedScorer logs every scoring attempt and its outcome.
type tracedScorer struct {
	next           influence.Scorer
	logger         *log.Logger
	maxRetries     int
	requestTimeout time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

func newTracedScorer(next influence.Scorer, logger *log.Logger, opts pipeline.Options) *tracedScorer {
	return &tracedScorer{
		next:           next,
		logger:         logger,
		maxRetries:     opts.MaxRetries,
		requestTimeout: opts.RequestTimeout,
		attempts:       make(map[string]int),
	}
}

func (t *tracedScorer) Score(ctx context.Context, accountID string) (influence.Response, error) {
	accountID = strings.TrimSpace(accountID)
	attempt := t.nextAttempt(accountID)

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Printf(
		"score request: account=%s attempt=%d timeout=%s deadlineIn=%s",
		accountID,
		attempt,
		t.requestTimeout,
		deadlineIn,
	)

	start := time.Now()
	out, err := t.next.Score(ctx, accountID)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		retryable := worker.IsTransient(err)
		willRetry := retryable && attempt <= maxRetryBudgetForErr(t.maxRetries, err)
		t.logger.Printf(
			"score response: account=%s attempt=%d duration=%s status=error retryable=%t willRetry=%t error=%q",
			accountID,
			attempt,
			elapsed,
			retryable,
			willRetry,
			redact.Truncate(redact.Secrets(err.Error()), 300),
		)
		return out, err
	}

	t.logger.Printf(
		"score response: account=%s attempt=%d duration=%s status=%s response=%s",
		accountID,
		attempt,
		elapsed,
		out.Kind,
		summarize(out),
	)
	return out, nil
}

func (t *tracedScorer) nextAttempt(accountID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[accountID]++
	return t.attempts[accountID]
}

func summarize(r influence.Response) string {
	clusters := make([]string, 0, len(r.Clusters))
	for _, c := range r.Clusters {
		clusters = append(clusters, c.Name)
	}
	b, _ := json.Marshal(map[string]any{
		"clusters": clusters,
		"scores":   len(r.Scores),
		"message":  r.Message,
	})
	return string(b)
}

type retryCap interface {
	MaxExtraRetries() int
}

func maxRetryBudgetForErr(defaultMax int, err error) int {
	if defaultMax < 0 {
		defaultMax = 0
	}
	var capErr retryCap
	if errors.As(err, &capErr) {
		capMax := capErr.MaxExtraRetries()
		if capMax < 0 {
			capMax = 0
		}
		if capMax < defaultMax {
			return capMax
		}
	}
	return defaultMax
}
