package jobs

import (
	"context"
	"fmt"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
	"github.com/bobmcallan/marketsync/internal/normalize"
)

// FundamentalsJob aggregates company fundamentals. This is the canonical
// sweep job: every provider reports a different field subset under its own
// field names, so payloads are normalized through the field tables, merged
// first-wins with quality-score tie-breaks, and derived metrics are computed
// from the merged result.
type FundamentalsJob struct {
	base
}

func NewFundamentalsJob(deps Deps, opts Options) *FundamentalsJob {
	return &FundamentalsJob{base: newBase(models.DataTypeFundamentals, deps, opts)}
}

var _ interfaces.AggregationJob = (*FundamentalsJob)(nil)

func (j *FundamentalsJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		fp, ok := p.(interfaces.FundamentalsProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}
		raw, err := fp.GetFundamentals(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, symbol := range order {
		if _, done := results[symbol]; done {
			continue
		}
		var providers []string
		var normalized []normalize.Fundamentals
		for _, pl := range payloads[symbol] {
			raw, ok := pl.Data.(map[string]any)
			if !ok || len(raw) == 0 {
				continue
			}
			providers = append(providers, pl.Provider)
			normalized = append(normalized, normalize.MapFundamentals(pl.Provider, raw))
		}
		if len(normalized) == 0 {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned fundamentals for %s", symbol))
			continue
		}

		numbers, strs, contributed := normalize.MergeFundamentals(providers, normalized, j.opts.QualityScores)
		normalize.ComputeDerived(numbers)

		rec := j.buildRecord(symbol, numbers, strs)
		rec.Provider = models.JoinProviders(contributed)
		results[symbol] = models.FetchResult{
			Data:     rec,
			Provider: rec.Provider,
			Success:  true,
		}
	}

	return results, nil
}

func (j *FundamentalsJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}

		rec, ok := res.Data.(*models.FundamentalsRecord)
		if !ok || rec == nil {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping fundamentals with unexpected payload shape")
			continue
		}
		if rec.Symbol == "" {
			attempted++
			j.deps.Logger.Warn().
				Str("entity", entity).
				Msg("Skipping fundamentals with missing symbol")
			continue
		}

		attempted++
		if _, err := j.deps.Gateway.UpsertFundamentals(ctx, *rec); err != nil {
			j.deps.Logger.Warn().
				Err(err).
				Str("symbol", rec.Symbol).
				Msg("Failed to store fundamentals")
			continue
		}
		succeeded++
	}

	return j.finishStore(succeeded, attempted), nil
}

// buildRecord maps the merged canonical field set onto the typed record.
// Absent fields stay nil so storage and later merges can tell them apart
// from legitimate zeros.
func (j *FundamentalsJob) buildRecord(symbol string, numbers map[string]float64, strs map[string]string) *models.FundamentalsRecord {
	rec := &models.FundamentalsRecord{
		Symbol:      symbol,
		Name:        strs[normalize.FieldName],
		Sector:      strs[normalize.FieldSector],
		Industry:    strs[normalize.FieldIndustry],
		LastUpdated: j.now(),
	}

	set := func(dst **float64, field string) {
		if v, ok := numbers[field]; ok {
			value := v
			*dst = &value
		}
	}

	set(&rec.MarketCap, normalize.FieldMarketCap)
	set(&rec.Revenue, normalize.FieldRevenue)
	set(&rec.GrossProfit, normalize.FieldGrossProfit)
	set(&rec.OperatingIncome, normalize.FieldOperatingIncome)
	set(&rec.NetIncome, normalize.FieldNetIncome)
	set(&rec.EBITDA, normalize.FieldEBITDA)
	set(&rec.TotalDebt, normalize.FieldTotalDebt)
	set(&rec.Cash, normalize.FieldCash)
	set(&rec.TotalEquity, normalize.FieldTotalEquity)
	set(&rec.FreeCashFlow, normalize.FieldFreeCashFlow)
	set(&rec.SharesOutstanding, normalize.FieldSharesOutstanding)
	set(&rec.EPS, normalize.FieldEPS)
	set(&rec.PERatio, normalize.FieldPERatio)
	set(&rec.DividendYield, normalize.FieldDividendYield)
	set(&rec.Beta, normalize.FieldBeta)
	set(&rec.GrossMargin, normalize.FieldGrossMargin)
	set(&rec.OperatingMargin, normalize.FieldOperatingMargin)
	set(&rec.NetMargin, normalize.FieldNetMargin)
	set(&rec.EBITDAMargin, normalize.FieldEBITDAMargin)
	set(&rec.FCFMargin, normalize.FieldFCFMargin)
	set(&rec.EnterpriseValue, normalize.FieldEnterpriseValue)
	set(&rec.ROIC, normalize.FieldROIC)

	return rec
}
