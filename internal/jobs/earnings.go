package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
	"github.com/bobmcallan/marketsync/internal/normalize"
)

// EarningsJob aggregates reported earnings. Providers disagree on EPS more
// than on any other figure, so the sweep is the default and EPS conflicts are
// resolved by provider quality score rather than first-wins priority.
type EarningsJob struct {
	base
}

func NewEarningsJob(deps Deps, opts Options) *EarningsJob {
	return &EarningsJob{base: newBase(models.DataTypeEarnings, deps, opts)}
}

var _ interfaces.AggregationJob = (*EarningsJob)(nil)

func (j *EarningsJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		ep, ok := p.(interfaces.EarningsProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}
		return ep.GetEarnings(ctx, symbol)
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, symbol := range order {
		if _, done := results[symbol]; done {
			continue
		}
		var recs []models.EarningsRecord
		var providers []string
		for _, pl := range payloads[symbol] {
			rec, ok := pl.Data.(*models.EarningsRecord)
			if !ok || rec == nil {
				continue
			}
			recs = append(recs, *rec)
			providers = append(providers, pl.Provider)
		}
		if len(recs) == 0 {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned earnings for %s", symbol))
			continue
		}

		merged, contributed := j.mergeEarnings(recs, providers)
		results[symbol] = models.FetchResult{
			Data:     merged,
			Provider: models.JoinProviders(contributed),
			Success:  true,
		}
	}

	return results, nil
}

func (j *EarningsJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}

		recs, ok := res.Data.([]models.EarningsRecord)
		if !ok {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping earnings with unexpected payload shape")
			continue
		}

		for _, rec := range recs {
			if rec.Symbol == "" || rec.FiscalPeriod == "" {
				attempted++
				j.deps.Logger.Warn().
					Str("entity", entity).
					Msg("Skipping earnings with missing natural key")
				continue
			}
			attempted++
			if _, err := j.deps.Gateway.UpsertEarnings(ctx, rec); err != nil {
				j.deps.Logger.Warn().
					Err(err).
					Str("key", rec.Key()).
					Msg("Failed to store earnings")
				continue
			}
			succeeded++
		}
	}

	return j.finishStore(succeeded, attempted), nil
}

// mergeEarnings groups provider records by fiscal period and merges within
// each group. Non-EPS fields follow first-wins priority; EPS values from a
// higher quality-scored provider replace an already-merged value.
func (j *EarningsJob) mergeEarnings(recs []models.EarningsRecord, providers []string) ([]models.EarningsRecord, []string) {
	type slot struct {
		rec       models.EarningsRecord
		epsSource string
		sources   []string
	}
	byKey := make(map[string]*slot)
	var order []string
	var contributed []string

	scoreOf := func(provider string) int {
		return normalize.QualityScore(j.opts.QualityScores, provider)
	}

	for i, rec := range recs {
		provider := providers[i]
		key := rec.Key()
		existing, ok := byKey[key]
		if !ok {
			rec.Provider = provider
			byKey[key] = &slot{rec: rec, epsSource: provider, sources: []string{provider}}
			order = append(order, key)
			contributed = append(contributed, provider)
			continue
		}

		used := false
		dst := &existing.rec
		if dst.ReportDate == nil && rec.ReportDate != nil {
			dst.ReportDate = rec.ReportDate
			used = true
		}
		if dst.RevenueActual == nil && rec.RevenueActual != nil {
			dst.RevenueActual = rec.RevenueActual
			used = true
		}
		if dst.RevenueEstimate == nil && rec.RevenueEstimate != nil {
			dst.RevenueEstimate = rec.RevenueEstimate
			used = true
		}
		if dst.SurprisePct == nil && rec.SurprisePct != nil {
			dst.SurprisePct = rec.SurprisePct
			used = true
		}

		replaceEPS := rec.EPSActual != nil &&
			(dst.EPSActual == nil || scoreOf(provider) > scoreOf(existing.epsSource))
		if replaceEPS {
			dst.EPSActual = rec.EPSActual
			existing.epsSource = provider
			used = true
		}
		if dst.EPSEstimate == nil && rec.EPSEstimate != nil {
			dst.EPSEstimate = rec.EPSEstimate
			used = true
		}

		if used {
			existing.sources = append(existing.sources, provider)
			contributed = append(contributed, provider)
		}
	}

	merged := make([]models.EarningsRecord, 0, len(order))
	for _, key := range order {
		s := byKey[key]
		s.rec.Provider = models.JoinProviders(s.sources)
		merged = append(merged, s.rec)
	}
	sort.Slice(merged, func(a, b int) bool { return merged[a].Key() < merged[b].Key() })
	return merged, contributed
}
