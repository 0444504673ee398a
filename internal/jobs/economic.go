package jobs

import (
	"context"
	"fmt"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// EconomicEventsJob aggregates scheduled economic releases over a forward
// window. Entities are country codes; providers serve the whole window in one
// call, cached per provider within an invocation. A final (non-preliminary)
// release always replaces a preliminary one for the same event.
type EconomicEventsJob struct {
	base
}

func NewEconomicEventsJob(deps Deps, opts Options) *EconomicEventsJob {
	return &EconomicEventsJob{base: newBase(models.DataTypeEconomicEvents, deps, opts)}
}

var _ interfaces.AggregationJob = (*EconomicEventsJob)(nil)

func (j *EconomicEventsJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
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

	windows := newWindowCache[models.EconomicEvent]()

	fetch := func(ctx context.Context, p interfaces.Provider, country string) (any, error) {
		ep, ok := p.(interfaces.EconomicEventProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}

		window, err := windows.get(p.Name(), func() ([]models.EconomicEvent, error) {
			return ep.GetEconomicEvents(ctx, from, to)
		})
		if err != nil {
			return nil, err
		}

		var events []models.EconomicEvent
		for _, e := range window {
			if e.Country == country {
				events = append(events, e)
			}
		}
		return events, nil
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, country := range order {
		if _, done := results[country]; done {
			continue
		}
		var events []models.EconomicEvent
		var providers []string
		for _, pl := range payloads[country] {
			set, ok := pl.Data.([]models.EconomicEvent)
			if !ok || len(set) == 0 {
				continue
			}
			for i := range set {
				if set[i].Provider == "" {
					set[i].Provider = pl.Provider
				}
			}
			events = append(events, set...)
			providers = append(providers, pl.Provider)
		}
		if len(events) == 0 {
			results[country] = models.FailedResult(fmt.Sprintf("no provider returned events for %s", country))
			continue
		}
		results[country] = models.FetchResult{
			Data:     events,
			Provider: models.JoinProviders(providers),
			Success:  true,
		}
	}

	return results, nil
}

func (j *EconomicEventsJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	byKey := make(map[string]models.EconomicEvent)
	var order []string
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}
		events, ok := res.Data.([]models.EconomicEvent)
		if !ok {
			attempted++
			j.deps.Logger.Warn().
				Str("country", entity).
				Msg("Skipping events with unexpected payload shape")
			continue
		}
		for _, e := range events {
			if e.Provider == "" {
				e.Provider = res.Provider
			}
			key := e.Key()
			existing, seen := byKey[key]
			switch {
			case !seen:
				byKey[key] = e
				order = append(order, key)
			case existing.Preliminary && !e.Preliminary:
				byKey[key] = e
			case existing.Preliminary == e.Preliminary && completeness(e) > completeness(existing):
				byKey[key] = e
			}
		}
	}

	for _, key := range order {
		e := byKey[key]
		if e.EventName == "" || e.Timestamp.IsZero() {
			attempted++
			j.deps.Logger.Warn().
				Str("key", key).
				Msg("Skipping event with missing natural key")
			continue
		}
		attempted++
		if _, err := j.deps.Gateway.UpsertEconomicEvent(ctx, e); err != nil {
			j.deps.Logger.Warn().
				Err(err).
				Str("key", key).
				Msg("Failed to store event")
			continue
		}
		succeeded++
	}

	return j.finishStore(succeeded, attempted), nil
}
