package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// DividendsJob aggregates dividend history. Providers publish the same events
// with different optional fields populated, so the comprehensive sweep is the
// default and events sharing an ex-dividend date are merged field by field.
type DividendsJob struct {
	base
}

func NewDividendsJob(deps Deps, opts Options) *DividendsJob {
	return &DividendsJob{base: newBase(models.DataTypeDividends, deps, opts)}
}

var _ interfaces.AggregationJob = (*DividendsJob)(nil)

func (j *DividendsJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		dp, ok := p.(interfaces.DividendProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}
		recs, err := dp.GetDividends(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return recs, nil
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, symbol := range order {
		if _, done := results[symbol]; done {
			continue
		}
		var sets [][]models.DividendRecord
		var providers []string
		for _, pl := range payloads[symbol] {
			recs, ok := pl.Data.([]models.DividendRecord)
			if !ok || len(recs) == 0 {
				continue
			}
			sets = append(sets, recs)
			providers = append(providers, pl.Provider)
		}
		if len(sets) == 0 {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned dividends for %s", symbol))
			continue
		}

		merged, contributed := mergeDividends(sets, providers)
		results[symbol] = models.FetchResult{
			Data:     merged,
			Provider: models.JoinProviders(contributed),
			Success:  true,
		}
	}

	return results, nil
}

func (j *DividendsJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}

		recs, ok := res.Data.([]models.DividendRecord)
		if !ok {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping dividends with unexpected payload shape")
			continue
		}

		for _, rec := range recs {
			if rec.Symbol == "" || rec.ExDate.IsZero() {
				attempted++
				j.deps.Logger.Warn().
					Str("entity", entity).
					Msg("Skipping dividend with missing natural key")
				continue
			}
			attempted++
			if _, err := j.deps.Gateway.UpsertDividend(ctx, rec); err != nil {
				j.deps.Logger.Warn().
					Err(err).
					Str("key", rec.Key()).
					Msg("Failed to store dividend")
				continue
			}
			succeeded++
		}
	}

	return j.finishStore(succeeded, attempted), nil
}

// mergeDividends folds per-provider dividend sets into one deduplicated set.
// Records sharing symbol+ex_date merge field by field in provider priority
// order; each merged record's Provider lists every contributor joined by "+".
func mergeDividends(sets [][]models.DividendRecord, providers []string) ([]models.DividendRecord, []string) {
	type slot struct {
		rec     models.DividendRecord
		sources []string
	}
	byKey := make(map[string]*slot)
	var order []string
	var contributed []string

	for i, set := range sets {
		provider := providers[i]
		used := false
		for _, rec := range set {
			key := rec.Key()
			existing, ok := byKey[key]
			if !ok {
				rec.Provider = provider
				byKey[key] = &slot{rec: rec, sources: []string{provider}}
				order = append(order, key)
				used = true
				continue
			}
			if fillDividend(&existing.rec, rec) {
				existing.sources = append(existing.sources, provider)
				used = true
			}
		}
		if used {
			contributed = append(contributed, provider)
		}
	}

	merged := make([]models.DividendRecord, 0, len(order))
	for _, key := range order {
		s := byKey[key]
		s.rec.Provider = models.JoinProviders(s.sources)
		merged = append(merged, s.rec)
	}
	sort.Slice(merged, func(a, b int) bool {
		if merged[a].Symbol != merged[b].Symbol {
			return merged[a].Symbol < merged[b].Symbol
		}
		return merged[a].ExDate.Before(merged[b].ExDate)
	})
	return merged, contributed
}

func fillDividend(dst *models.DividendRecord, src models.DividendRecord) bool {
	contributed := false
	if dst.Amount == 0 && src.Amount != 0 {
		dst.Amount = src.Amount
		contributed = true
	}
	if dst.Currency == "" && src.Currency != "" {
		dst.Currency = src.Currency
		contributed = true
	}
	if dst.PayDate == nil && src.PayDate != nil {
		dst.PayDate = src.PayDate
		contributed = true
	}
	if dst.RecordDate == nil && src.RecordDate != nil {
		dst.RecordDate = src.RecordDate
		contributed = true
	}
	if dst.DeclarationDate == nil && src.DeclarationDate != nil {
		dst.DeclarationDate = src.DeclarationDate
		contributed = true
	}
	if dst.Frequency == nil && src.Frequency != nil {
		dst.Frequency = src.Frequency
		contributed = true
	}
	return contributed
}
