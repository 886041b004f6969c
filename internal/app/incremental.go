package app

import (
	"context"
	"log"
	"time"

	"github.com/shpitdev/community-landscape/internal/model"
	"github.com/shpitdev/community-landscape/internal/pipeline"
	"github.com/shpitdev/community-landscape/internal/store"
	"github.com/shpitdev/community-landscape/pkg/influence"
)

// incrementalPlan splits a cached artifact into rows to keep and accounts to re-score.
// An account with no rows at all failed in the run that produced the artifact.
type incrementalPlan struct {
	kept    []pipeline.Row
	pending []model.FollowedAccount
}

func buildIncrementalPlan(a store.Artifact) incrementalPlan {
	covered := make(map[string]struct{}, len(a.Rows))
	for _, r := range a.Rows {
		covered[r.ID] = struct{}{}
	}
	plan := incrementalPlan{kept: append([]pipeline.Row(nil), a.Rows...)}
	for _, acct := range model.DedupeAccounts(a.Following) {
		if _, ok := covered[acct.ID]; !ok {
			plan.pending = append(plan.pending, acct)
		}
	}
	return plan
}

func (p incrementalPlan) apply(fresh []pipeline.Row) []pipeline.Row {
	rows := append(p.kept, fresh...)
	pipeline.SortRows(rows)
	return rows
}

func retryFailed(
	ctx context.Context,
	cached store.Artifact,
	scorer influence.Scorer,
	st store.Store,
	opts Options,
	logger *log.Logger,
	out Outcome,
) (Outcome, error) {
	plan := buildIncrementalPlan(cached)
	logger.Printf(
		"incremental plan: username=%s following=%d cachedRows=%d accountsToScore=%d",
		cached.Username,
		len(cached.Following),
		len(plan.kept),
		len(plan.pending),
	)
	if len(plan.pending) == 0 {
		opts.Metrics.ObserveCacheHit()
		out.Artifact = cached
		out.Cached = true
		return out, nil
	}

	res, err := enrich(ctx, plan.pending, scorer, opts, logger)
	if err != nil {
		return Outcome{}, err
	}
	updated := cached
	updated.Rows = plan.apply(res.Rows)
	updated.CreatedAt = time.Now().UTC()
	if err := save(ctx, st, updated, logger); err != nil {
		return Outcome{}, err
	}
	out.Artifact = updated
	out.Result = res
	return out, nil
}
