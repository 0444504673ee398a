package jobs

import (
	"context"
	"fmt"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// CalendarJob aggregates upcoming earnings report dates over a forward
// window. Providers serve the whole window in one call, so responses are
// cached per provider within an invocation and filtered down per symbol.
type CalendarJob struct {
	base
}

func NewCalendarJob(deps Deps, opts Options) *CalendarJob {
	return &CalendarJob{base: newBase(models.DataTypeEarningsCalendar, deps, opts)}
}

var _ interfaces.AggregationJob = (*CalendarJob)(nil)

func (j *CalendarJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	from := j.now()
	to := from.AddDate(0, 0, j.opts.WindowDays)

	windows := newWindowCache[models.EarningsCalendarEntry]()

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		cp, ok := p.(interfaces.EarningsCalendarProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}

		window, err := windows.get(p.Name(), func() ([]models.EarningsCalendarEntry, error) {
			return cp.GetEarningsCalendar(ctx, from, to)
		})
		if err != nil {
			return nil, err
		}

		var entries []models.EarningsCalendarEntry
		for _, e := range window {
			if e.Symbol == symbol {
				entries = append(entries, e)
			}
		}
		return entries, nil
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, symbol := range order {
		if _, done := results[symbol]; done {
			continue
		}
		var entries []models.EarningsCalendarEntry
		var providers []string
		for _, pl := range payloads[symbol] {
			set, ok := pl.Data.([]models.EarningsCalendarEntry)
			if !ok || len(set) == 0 {
				continue
			}
			for i := range set {
				if set[i].Provider == "" {
					set[i].Provider = pl.Provider
				}
			}
			entries = append(entries, set...)
			providers = append(providers, pl.Provider)
		}
		if len(entries) == 0 {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned calendar entries for %s", symbol))
			continue
		}
		results[symbol] = models.FetchResult{
			Data:     entries,
			Provider: models.JoinProviders(providers),
			Success:  true,
		}
	}

	return results, nil
}

func (j *CalendarJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	// Window responses can repeat an entry across entities; dedup on the
	// natural key first, keeping the more complete entry.
	byKey := make(map[string]models.EarningsCalendarEntry)
	var order []string
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}
		entries, ok := res.Data.([]models.EarningsCalendarEntry)
		if !ok {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping calendar entries with unexpected payload shape")
			continue
		}
		for _, e := range entries {
			if e.Provider == "" {
				e.Provider = res.Provider
			}
			key := e.Key()
			existing, seen := byKey[key]
			if !seen {
				byKey[key] = e
				order = append(order, key)
			} else if completeness(e) > completeness(existing) {
				byKey[key] = e
			}
		}
	}

	for _, key := range order {
		e := byKey[key]
		if e.Symbol == "" || e.ReportDate.IsZero() {
			attempted++
			j.deps.Logger.Warn().
				Str("key", key).
				Msg("Skipping calendar entry with missing natural key")
			continue
		}
		attempted++
		if _, err := j.deps.Gateway.UpsertEarningsCalendar(ctx, e); err != nil {
			j.deps.Logger.Warn().
				Err(err).
				Str("key", key).
				Msg("Failed to store calendar entry")
			continue
		}
		succeeded++
	}

	return j.finishStore(succeeded, attempted), nil
}
