package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shpitdev/community-landscape/internal/metrics"
	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/pkg/influence"
	"github.com/shpitdev/community-landscape/pkg/pipeline/redact"
	"github.com/shpitdev/community-landscape/pkg/pipeline/worker"
)

type Options struct {
	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64

	// Progress is called once per finished account, on a single goroutine.
	Progress func(Progress)
	Logger   *log.Logger
	Metrics  *metrics.Metrics
}

// Progress reports how many accounts have finished out of the run total.
type Progress struct {
	Completed int
	Total     int
}

// Fraction returns Completed/Total, or 1 for an empty run.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	if p.Completed >= p.Total {
		return 1
	}
	return float64(p.Completed) / float64(p.Total)
}

// FailureKind classifies why an account produced no rows.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureMalformed FailureKind = "malformed"
	FailureIntegrity FailureKind = "integrity"
	FailurePanic     FailureKind = "panic"
)

// Failure is one account the engine could not enrich.
type Failure struct {
	AccountID string
	Username  string
	Kind      FailureKind
	Err       error
}

// Message is the redacted error text, safe to log or persist.
func (f Failure) Message() string {
	if f.Err == nil {
		return ""
	}
	return redact.Secrets(f.Err.Error())
}

// Result is the outcome of one enrichment run.
type Result struct {
	Rows     []Row
	Failures []Failure
	// NotIndexed lists account IDs the scoring service does not know.
	NotIndexed []string
	// Total is the number of distinct accounts processed.
	Total int
}

// FailureSummary counts failures per kind, e.g. "integrity=1 transport=2".
func (r Result) FailureSummary() string {
	if len(r.Failures) == 0 {
		return ""
	}
	counts := make(map[FailureKind]int)
	for _, f := range r.Failures {
		counts[f.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[FailureKind(k)])
	}
	return strings.Join(parts, " ")
}

// Classify maps an enrichment error to its failure kind.
func Classify(err error) FailureKind {
	var pe *worker.PanicError
	switch {
	case errors.As(err, &pe):
		return FailurePanic
	case errors.Is(err, ErrIntegrity):
		return FailureIntegrity
	case errors.Is(err, influence.ErrMalformedResponse):
		return FailureMalformed
	default:
		return FailureTransport
	}
}

type scored struct {
	rows       []Row
	notIndexed bool
}

// EnrichAccounts scores every account and flattens the responses into rows.
//
// Per-account failures are collected in Result.Failures and never fail the run. The returned
// error is non-nil only when ctx is cancelled, in which case no partial Result is returned.
func EnrichAccounts(ctx context.Context, accounts []model.FollowedAccount, scorer influence.Scorer, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	accounts = model.DedupeAccounts(accounts)
	res := Result{Total: len(accounts)}
	if len(accounts) == 0 {
		return res, nil
	}

	processor := func(reqCtx context.Context, a model.FollowedAccount) (scored, error) {
		done := opts.Metrics.StartScore()
		resp, err := scorer.Score(reqCtx, a.ID)
		done()
		if err != nil {
			return scored{}, err
		}
		rows, err := Flatten(a, resp)
		if err != nil {
			return scored{}, err
		}
		return scored{rows: rows, notIndexed: resp.Kind == influence.KindNotIndexed}, nil
	}

	completed := 0
	onResult := func(item worker.Result[model.FollowedAccount, scored]) error {
		completed++
		a := item.Input
		if item.Err != nil {
			f := Failure{AccountID: a.ID, Username: a.Username, Kind: Classify(item.Err), Err: item.Err}
			res.Failures = append(res.Failures, f)
			opts.Metrics.ObserveAccount(string(f.Kind), 0)
			logger.Printf("account failed: id=%s username=%q kind=%s err=%s", a.ID, a.Username, f.Kind, f.Message())
		} else {
			res.Rows = append(res.Rows, item.Output.rows...)
			outcome := metrics.OutcomeScored
			if item.Output.notIndexed {
				outcome = metrics.OutcomeNotIndexed
				res.NotIndexed = append(res.NotIndexed, a.ID)
			}
			opts.Metrics.ObserveAccount(outcome, len(item.Output.rows))
		}

		p := Progress{Completed: completed, Total: len(accounts)}
		opts.Metrics.SetProgress(p.Fraction())
		if opts.Progress != nil {
			opts.Progress(p)
		}
		return nil
	}

	_, err := worker.ProcessAllWithCallback(ctx, accounts, processor, onResult, worker.Options{
		Workers:           opts.Workers,
		MaxRetries:        opts.MaxRetries,
		RequestTimeout:    opts.RequestTimeout,
		RateLimitRPS:      opts.RateLimitRPS,
		BackoffInitial:    200 * time.Millisecond,
		BackoffMax:        2 * time.Second,
		BackoffJitterFrac: 0.2,
	})
	if err != nil {
		return Result{}, err
	}

	sort.Strings(res.NotIndexed)
	sort.SliceStable(res.Failures, func(i, j int) bool { return res.Failures[i].AccountID < res.Failures[j].AccountID })
	return res, nil
}
