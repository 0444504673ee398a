package jobs

import (
	"context"
	"fmt"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// QuotesJob aggregates real-time quote snapshots. One quote per symbol, so
// fallback mode is the default: the first provider that answers wins.
type QuotesJob struct {
	base
}

func NewQuotesJob(deps Deps, opts Options) *QuotesJob {
	return &QuotesJob{base: newBase(models.DataTypeQuotes, deps, opts)}
}

var _ interfaces.AggregationJob = (*QuotesJob)(nil)

func (j *QuotesJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		qp, ok := p.(interfaces.QuoteProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}
		return qp.GetQuote(ctx, symbol)
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, symbol := range order {
		if _, done := results[symbol]; done {
			continue
		}

		// A snapshot is atomic; when sweep mode returns several, the most
		// complete one wins outright rather than mixing prices across
		// providers. Ties keep priority order.
		var best *models.Quote
		bestProvider := ""
		for _, pl := range payloads[symbol] {
			quote, ok := pl.Data.(*models.Quote)
			if !ok || quote == nil {
				continue
			}
			if quote.Provider == "" {
				quote.Provider = pl.Provider
			}
			if best == nil || completeness(quote) > completeness(best) {
				best = quote
				bestProvider = pl.Provider
			}
		}
		if best == nil {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned a quote for %s", symbol))
			continue
		}
		results[symbol] = models.FetchResult{Data: best, Provider: bestProvider, Success: true}
	}

	return results, nil
}

func (j *QuotesJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}

		quote, ok := res.Data.(*models.Quote)
		if !ok || quote == nil {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping quote with unexpected payload shape")
			continue
		}
		if quote.Symbol == "" {
			attempted++
			j.deps.Logger.Warn().
				Str("entity", entity).
				Msg("Skipping quote with missing symbol")
			continue
		}
		if quote.Provider == "" {
			quote.Provider = res.Provider
		}

		attempted++
		if _, err := j.deps.Gateway.UpsertQuote(ctx, *quote); err != nil {
			j.deps.Logger.Warn().
				Err(fmt.Errorf("upsert quote: %w", err)).
				Str("symbol", quote.Symbol).
				Msg("Failed to store quote")
			continue
		}
		succeeded++
	}

	return j.finishStore(succeeded, attempted), nil
}
