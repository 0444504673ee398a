package jobs

import (
	"context"
	"fmt"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// TranscriptsJob aggregates earnings call transcripts. Any single provider's
// transcript is usable on its own, so fallback mode is the default; when two
// records cover the same fiscal period the longer transcript wins.
type TranscriptsJob struct {
	base
}

func NewTranscriptsJob(deps Deps, opts Options) *TranscriptsJob {
	return &TranscriptsJob{base: newBase(models.DataTypeEarningsTranscript, deps, opts)}
}

var _ interfaces.AggregationJob = (*TranscriptsJob)(nil)

func (j *TranscriptsJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		tp, ok := p.(interfaces.TranscriptProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}
		recs, err := tp.GetEarningsTranscripts(ctx, symbol)
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
		var recs []models.EarningsTranscript
		var providers []string
		for _, pl := range payloads[symbol] {
			set, ok := pl.Data.([]models.EarningsTranscript)
			if !ok || len(set) == 0 {
				continue
			}
			for i := range set {
				if set[i].Provider == "" {
					set[i].Provider = pl.Provider
				}
			}
			recs = append(recs, set...)
			providers = append(providers, pl.Provider)
		}
		if len(recs) == 0 {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned transcripts for %s", symbol))
			continue
		}
		results[symbol] = models.FetchResult{
			Data:     recs,
			Provider: models.JoinProviders(providers),
			Success:  true,
		}
	}

	return results, nil
}

func (j *TranscriptsJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	byKey := make(map[string]models.EarningsTranscript)
	var order []string
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}
		recs, ok := res.Data.([]models.EarningsTranscript)
		if !ok {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping transcripts with unexpected payload shape")
			continue
		}
		for _, rec := range recs {
			if rec.Provider == "" {
				rec.Provider = res.Provider
			}
			key := rec.Key()
			existing, seen := byKey[key]
			if !seen {
				byKey[key] = rec
				order = append(order, key)
			} else if len(rec.Text) > len(existing.Text) {
				// the fuller transcript is the more complete record
				byKey[key] = rec
			}
		}
	}

	for _, key := range order {
		rec := byKey[key]
		if rec.Symbol == "" || rec.FiscalPeriod == "" {
			attempted++
			j.deps.Logger.Warn().
				Str("key", key).
				Msg("Skipping transcript with missing natural key")
			continue
		}
		attempted++
		if _, err := j.deps.Gateway.UpsertTranscript(ctx, rec); err != nil {
			j.deps.Logger.Warn().
				Err(err).
				Str("key", key).
				Msg("Failed to store transcript")
			continue
		}
		succeeded++
	}

	return j.finishStore(succeeded, attempted), nil
}
