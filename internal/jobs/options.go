package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// OptionsJob aggregates options chains. Providers list different strike and
// expiration subsets and fill different greeks, so the comprehensive sweep is
// the default: every provider is queried and the chains are unioned with
// field-level merges per contract.
type OptionsJob struct {
	base
}

func NewOptionsJob(deps Deps, opts Options) *OptionsJob {
	return &OptionsJob{base: newBase(models.DataTypeOptionsChain, deps, opts)}
}

var _ interfaces.AggregationJob = (*OptionsJob)(nil)

func (j *OptionsJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		op, ok := p.(interfaces.OptionsProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}
		return op.GetOptionsChain(ctx, symbol)
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, symbol := range order {
		if _, done := results[symbol]; done {
			continue
		}
		chains := make([]*models.OptionsChain, 0, len(payloads[symbol]))
		providers := make([]string, 0, len(payloads[symbol]))
		for _, pl := range payloads[symbol] {
			chain, ok := pl.Data.(*models.OptionsChain)
			if !ok || chain == nil {
				continue
			}
			chains = append(chains, chain)
			providers = append(providers, pl.Provider)
		}
		if len(chains) == 0 {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned an options chain for %s", symbol))
			continue
		}

		merged := mergeChains(symbol, chains, providers)
		results[symbol] = models.FetchResult{
			Data:     merged,
			Provider: merged.Provider,
			Success:  true,
		}
	}

	return results, nil
}

func (j *OptionsJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}

		chain, ok := res.Data.(*models.OptionsChain)
		if !ok || chain == nil {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping chain with unexpected payload shape")
			continue
		}

		contracts := make([]models.OptionContract, 0, len(chain.Calls)+len(chain.Puts))
		contracts = append(contracts, chain.Calls...)
		contracts = append(contracts, chain.Puts...)

		for _, c := range contracts {
			if c.Symbol == "" || c.Expiration.IsZero() || c.Type == "" {
				attempted++
				j.deps.Logger.Warn().
					Str("symbol", entity).
					Msg("Skipping contract with missing natural key")
				continue
			}
			attempted++
			if _, err := j.deps.Gateway.UpsertOptionContract(ctx, c); err != nil {
				j.deps.Logger.Warn().
					Err(err).
					Str("contract", c.Key()).
					Msg("Failed to store option contract")
				continue
			}
			succeeded++
		}
	}

	return j.finishStore(succeeded, attempted), nil
}

// mergeChains unions the chains from all providers. Contracts sharing the
// natural key are merged field by field in provider priority order; the first
// provider supplying a field wins.
func mergeChains(symbol string, chains []*models.OptionsChain, providers []string) *models.OptionsChain {
	type slot struct {
		contract models.OptionContract
		sources  []string
	}
	byKey := make(map[string]*slot)
	var order []string

	for i, chain := range chains {
		provider := providers[i]
		for _, c := range append(append([]models.OptionContract{}, chain.Calls...), chain.Puts...) {
			key := c.Key()
			existing, ok := byKey[key]
			if !ok {
				c.Provider = provider
				byKey[key] = &slot{contract: c, sources: []string{provider}}
				order = append(order, key)
				continue
			}
			if fillContract(&existing.contract, c) {
				existing.sources = append(existing.sources, provider)
			}
		}
	}

	merged := &models.OptionsChain{Symbol: symbol}
	contributed := make([]string, 0, len(providers))
	for _, key := range order {
		s := byKey[key]
		s.contract.Provider = models.JoinProviders(s.sources)
		contributed = append(contributed, s.sources...)
		if s.contract.Type == "put" {
			merged.Puts = append(merged.Puts, s.contract)
		} else {
			merged.Calls = append(merged.Calls, s.contract)
		}
	}

	sortContracts(merged.Calls)
	sortContracts(merged.Puts)
	merged.Provider = models.JoinProviders(contributed)
	return merged
}

// fillContract copies fields from src into dst where dst has none, reporting
// whether src contributed anything.
func fillContract(dst *models.OptionContract, src models.OptionContract) bool {
	contributed := false
	fill := func(d **float64, s *float64) {
		if *d == nil && s != nil {
			*d = s
			contributed = true
		}
	}
	fillInt := func(d **int64, s *int64) {
		if *d == nil && s != nil {
			*d = s
			contributed = true
		}
	}

	fill(&dst.Bid, src.Bid)
	fill(&dst.Ask, src.Ask)
	fill(&dst.Last, src.Last)
	fillInt(&dst.Volume, src.Volume)
	fillInt(&dst.OpenInterest, src.OpenInterest)
	fill(&dst.ImpliedVol, src.ImpliedVol)
	fill(&dst.Delta, src.Delta)
	fill(&dst.Gamma, src.Gamma)
	fill(&dst.Theta, src.Theta)
	fill(&dst.Vega, src.Vega)
	return contributed
}

func sortContracts(cs []models.OptionContract) {
	sort.Slice(cs, func(a, b int) bool {
		if !cs[a].Expiration.Equal(cs[b].Expiration) {
			return cs[a].Expiration.Before(cs[b].Expiration)
		}
		return cs[a].Strike < cs[b].Strike
	})
}
