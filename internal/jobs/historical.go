package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// HistoricalJob aggregates historical OHLCV bars over a configurable lookback
// window. Bars from one provider are authoritative for the whole window, so
// fallback mode is the default.
type HistoricalJob struct {
	base
}

func NewHistoricalJob(deps Deps, opts Options) *HistoricalJob {
	return &HistoricalJob{base: newBase(models.DataTypeHistoricalPrices, deps, opts)}
}

var _ interfaces.AggregationJob = (*HistoricalJob)(nil)

func (j *HistoricalJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	to := j.now()
	from := to.AddDate(0, 0, -j.opts.LookbackDays)

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		hp, ok := p.(interfaces.HistoricalProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}
		bars, err := hp.GetHistorical(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		return bars, nil
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, symbol := range order {
		if _, done := results[symbol]; done {
			continue
		}
		var bars []models.PriceBar
		var providers []string
		for _, pl := range payloads[symbol] {
			set, ok := pl.Data.([]models.PriceBar)
			if !ok || len(set) == 0 {
				continue
			}
			for i := range set {
				if set[i].Provider == "" {
					set[i].Provider = pl.Provider
				}
			}
			bars = append(bars, set...)
			providers = append(providers, pl.Provider)
		}
		if len(bars) == 0 {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned bars for %s", symbol))
			continue
		}
		results[symbol] = models.FetchResult{
			Data:     bars,
			Provider: models.JoinProviders(providers),
			Success:  true,
		}
	}

	return results, nil
}

func (j *HistoricalJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}

		bars, ok := res.Data.([]models.PriceBar)
		if !ok {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping bars with unexpected payload shape")
			continue
		}

		for _, bar := range mergeBars(bars) {
			if bar.Symbol == "" || bar.Date.IsZero() {
				attempted++
				j.deps.Logger.Warn().
					Str("entity", entity).
					Msg("Skipping bar with missing natural key")
				continue
			}
			if bar.Provider == "" {
				bar.Provider = res.Provider
			}

			attempted++
			if _, err := j.deps.Gateway.UpsertPriceBar(ctx, bar); err != nil {
				j.deps.Logger.Warn().
					Err(err).
					Str("symbol", bar.Symbol).
					Str("date", bar.Date.Format("2006-01-02")).
					Msg("Failed to store price bar")
				continue
			}
			succeeded++
		}
	}

	return j.finishStore(succeeded, attempted), nil
}

// mergeBars deduplicates bars by symbol+date, keeping the more complete bar
// when a provider repeats a date, and returns them in ascending date order.
func mergeBars(bars []models.PriceBar) []models.PriceBar {
	byKey := make(map[string]models.PriceBar, len(bars))
	for _, bar := range bars {
		key := bar.Key()
		existing, ok := byKey[key]
		if !ok || completeness(bar) > completeness(existing) {
			byKey[key] = bar
		}
	}

	merged := make([]models.PriceBar, 0, len(byKey))
	for _, bar := range byKey {
		merged = append(merged, bar)
	}
	sort.Slice(merged, func(a, b int) bool {
		if merged[a].Symbol != merged[b].Symbol {
			return merged[a].Symbol < merged[b].Symbol
		}
		return merged[a].Date.Before(merged[b].Date)
	})
	return merged
}
