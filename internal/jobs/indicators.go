package jobs

import (
	"context"
	"fmt"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// IndicatorsJob aggregates economic indicator readings. Entities are
// indicator codes; providers serve their full indicator set in one call,
// cached per provider within an invocation and filtered down per code.
type IndicatorsJob struct {
	base
}

func NewIndicatorsJob(deps Deps, opts Options) *IndicatorsJob {
	return &IndicatorsJob{base: newBase(models.DataTypeEconomicIndicators, deps, opts)}
}

var _ interfaces.AggregationJob = (*IndicatorsJob)(nil)

func (j *IndicatorsJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	sets := newWindowCache[models.EconomicIndicator]()

	fetch := func(ctx context.Context, p interfaces.Provider, code string) (any, error) {
		ip, ok := p.(interfaces.EconomicIndicatorProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}

		set, err := sets.get(p.Name(), func() ([]models.EconomicIndicator, error) {
			return ip.GetEconomicIndicators(ctx)
		})
		if err != nil {
			return nil, err
		}

		var readings []models.EconomicIndicator
		for _, r := range set {
			if r.IndicatorCode == code {
				readings = append(readings, r)
			}
		}
		return readings, nil
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, code := range order {
		if _, done := results[code]; done {
			continue
		}
		var readings []models.EconomicIndicator
		var providers []string
		for _, pl := range payloads[code] {
			set, ok := pl.Data.([]models.EconomicIndicator)
			if !ok || len(set) == 0 {
				continue
			}
			for i := range set {
				if set[i].Provider == "" {
					set[i].Provider = pl.Provider
				}
			}
			readings = append(readings, set...)
			providers = append(providers, pl.Provider)
		}
		if len(readings) == 0 {
			results[code] = models.FailedResult(fmt.Sprintf("no provider returned readings for %s", code))
			continue
		}
		results[code] = models.FetchResult{
			Data:     readings,
			Provider: models.JoinProviders(providers),
			Success:  true,
		}
	}

	return results, nil
}

func (j *IndicatorsJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	byKey := make(map[string]models.EconomicIndicator)
	var order []string
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}
		readings, ok := res.Data.([]models.EconomicIndicator)
		if !ok {
			attempted++
			j.deps.Logger.Warn().
				Str("indicator", entity).
				Msg("Skipping readings with unexpected payload shape")
			continue
		}
		for _, r := range readings {
			if r.Provider == "" {
				r.Provider = res.Provider
			}
			key := r.Key()
			existing, seen := byKey[key]
			switch {
			case !seen:
				byKey[key] = r
				order = append(order, key)
			case existing.Preliminary && !r.Preliminary:
				byKey[key] = r
			case existing.Preliminary == r.Preliminary && completeness(r) > completeness(existing):
				byKey[key] = r
			}
		}
	}

	for _, key := range order {
		r := byKey[key]
		if r.IndicatorCode == "" || r.PeriodDate.IsZero() {
			attempted++
			j.deps.Logger.Warn().
				Str("key", key).
				Msg("Skipping reading with missing natural key")
			continue
		}
		attempted++
		if _, err := j.deps.Gateway.UpsertEconomicIndicator(ctx, r); err != nil {
			j.deps.Logger.Warn().
				Err(err).
				Str("key", key).
				Msg("Failed to store reading")
			continue
		}
		succeeded++
	}

	return j.finishStore(succeeded, attempted), nil
}
