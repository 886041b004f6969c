package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shpitdev/community-landscape/internal/follow"
	"github.com/shpitdev/community-landscape/internal/metrics"
	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/internal/pipeline"
	"github.com/shpitdev/community-landscape/internal/store"
	"github.com/shpitdev/community-landscape/pkg/influence"
	"github.com/shpitdev/community-landscape/pkg/pipeline/redact"
	"github.com/shpitdev/community-landscape/pkg/social"
)

// SocialAPI is the part of the social-graph client a run needs.
type SocialAPI interface {
	follow.PageSource
	LookupUser(ctx context.Context, username string) (social.User, error)
}

type Options struct {
	// Refresh discards any cached artifact and recomputes it.
	Refresh bool
	// RetryFailed re-scores only the cached accounts that produced no rows last time.
	RetryFailed bool
	// MaxPages bounds follow-list pagination. 0 is unlimited.
	MaxPages int

	Pipeline pipeline.Options
	Logger   *log.Logger
	Metrics  *metrics.Metrics
}

// Outcome describes one Run.
type Outcome struct {
	RunID    string
	Artifact store.Artifact
	// Cached is true when the artifact came from the store untouched.
	Cached bool
	// Result is the enrichment result of this run; empty for a cache hit.
	Result pipeline.Result
}

// Run produces the community artifact for username: from the store when cached, otherwise
// by resolving the user, retrieving the follow-list, enriching it and saving the result.
func Run(ctx context.Context, username string, api SocialAPI, scorer influence.Scorer, st store.Store, opts Options) (Outcome, error) {
	base := opts.Logger
	if base == nil {
		base = log.New(io.Discard, "", 0)
	}
	runID := uuid.NewString()
	logger := log.New(base.Writer(), fmt.Sprintf("run=%s ", runID), base.Flags()|log.Lmsgprefix)
	runStart := time.Now()

	user, err := store.NormalizeUsername(username)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{RunID: runID}

	if opts.Refresh {
		if err := st.Delete(ctx, user); err != nil {
			return Outcome{}, fmt.Errorf("invalidate cache for @%s: %w", user, err)
		}
		logger.Printf("cache invalidated: username=%s", user)
	} else {
		cached, err := st.Load(ctx, user)
		switch {
		case err == nil && opts.RetryFailed:
			return retryFailed(ctx, cached, scorer, st, opts, logger, out)
		case err == nil:
			opts.Metrics.ObserveCacheHit()
			logger.Printf("cache hit: username=%s following=%d rows=%d createdAt=%s",
				user, len(cached.Following), len(cached.Rows), cached.CreatedAt.Format(time.RFC3339))
			out.Artifact = cached
			out.Cached = true
			return out, nil
		case !errors.Is(err, store.ErrNotFound):
			return Outcome{}, fmt.Errorf("load cache for @%s: %w", user, err)
		}
	}

	logger.Printf(
		"run start: username=%s workers=%d maxRetries=%d timeout=%s rateLimitRPS=%g",
		user,
		opts.Pipeline.Workers,
		opts.Pipeline.MaxRetries,
		opts.Pipeline.RequestTimeout,
		opts.Pipeline.RateLimitRPS,
	)

	resolveStart := time.Now()
	account, err := api.LookupUser(ctx, user)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve @%s: %w", user, err)
	}
	logger.Printf("resolved @%s to id=%s in %s", user, account.ID, time.Since(resolveStart).Round(time.Millisecond))

	followStart := time.Now()
	fetched := 0
	retriever := follow.New(api, follow.Options{
		MaxPages: opts.MaxPages,
		Logger:   logger,
		OnPage: func(page, accounts int) {
			opts.Metrics.ObserveFollowPage(accounts - fetched)
			fetched = accounts
			logger.Printf("following page %d fetched: accounts=%d", page, accounts)
		},
	})
	following, err := retriever.Following(ctx, account.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("retrieve follow-list of @%s: %w", user, err)
	}
	logger.Printf("loaded %d followed accounts in %s", len(following), time.Since(followStart).Round(time.Millisecond))

	res, err := enrich(ctx, following, scorer, opts, logger)
	if err != nil {
		return Outcome{}, err
	}

	rows := res.Rows
	pipeline.SortRows(rows)
	out.Result = res
	out.Artifact = store.Artifact{
		Username:  user,
		UserID:    account.ID,
		Following: following,
		Rows:      rows,
		CreatedAt: time.Now().UTC(),
	}
	if err := save(ctx, st, out.Artifact, logger); err != nil {
		return Outcome{}, err
	}
	logger.Printf("run complete: rows=%d totalDuration=%s", len(rows), time.Since(runStart).Round(time.Millisecond))
	return out, nil
}

func enrich(
	ctx context.Context,
	accounts []model.FollowedAccount,
	scorer influence.Scorer,
	opts Options,
	logger *log.Logger,
) (pipeline.Result, error) {
	enrichStart := time.Now()
	popts := opts.Pipeline
	popts.Logger = logger
	popts.Metrics = opts.Metrics
	userProgress := popts.Progress
	popts.Progress = func(p pipeline.Progress) {
		logger.Printf("progress: completed=%d/%d (%.0f%%) elapsed=%s",
			p.Completed, p.Total, 100*p.Fraction(), time.Since(enrichStart).Round(time.Millisecond))
		if userProgress != nil {
			userProgress(p)
		}
	}

	res, err := pipeline.EnrichAccounts(ctx, accounts, newTracedScorer(scorer, logger, opts.Pipeline), popts)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("enrich: %w", err)
	}
	logger.Printf(
		"enrichment complete: accounts=%d rows=%d notIndexed=%d failed=%d duration=%s",
		res.Total,
		len(res.Rows),
		len(res.NotIndexed),
		len(res.Failures),
		time.Since(enrichStart).Round(time.Millisecond),
	)
	if len(res.Failures) > 0 {
		logger.Printf("failures: %s", res.FailureSummary())
		for _, f := range res.Failures {
			logger.Printf("failed account: id=%s username=%q kind=%s error=%q", f.AccountID, f.Username, f.Kind, redact.Truncate(f.Message(), 300))
		}
	}
	return res, nil
}

func save(ctx context.Context, st store.Store, a store.Artifact, logger *log.Logger) error {
	start := time.Now()
	if err := st.Save(ctx, a); err != nil {
		return fmt.Errorf("save artifact for @%s: %w", a.Username, err)
	}
	logger.Printf("artifact saved: username=%s following=%d rows=%d duration=%s",
		a.Username, len(a.Following), len(a.Rows), time.Since(start).Round(time.Millisecond))
	return nil
}
