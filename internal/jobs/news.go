package jobs

import (
	"context"
	"fmt"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// NewsJob aggregates news articles per symbol. Fallback mode is the default;
// duplicate articles are detected by URL and the more complete copy wins.
type NewsJob struct {
	base
}

func NewNewsJob(deps Deps, opts Options) *NewsJob {
	return &NewsJob{base: newBase(models.DataTypeNews, deps, opts)}
}

var _ interfaces.AggregationJob = (*NewsJob)(nil)

func (j *NewsJob) Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error) {
	if err := j.checkProviders(); err != nil {
		return nil, err
	}

	results := make(map[string]models.FetchResult, len(entities))
	valid := j.validateEntities(entities, results)
	if len(valid) == 0 {
		return results, nil
	}

	fetch := func(ctx context.Context, p interfaces.Provider, symbol string) (any, error) {
		np, ok := p.(interfaces.NewsProvider)
		if !ok {
			return nil, interfaces.ErrUnsupported
		}
		articles, err := np.GetNews(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return articles, nil
	}

	payloads, order := j.fetchPayloads(ctx, valid, fetch, results)

	for _, symbol := range order {
		if _, done := results[symbol]; done {
			continue
		}
		var articles []models.NewsArticle
		var providers []string
		for _, pl := range payloads[symbol] {
			set, ok := pl.Data.([]models.NewsArticle)
			if !ok || len(set) == 0 {
				continue
			}
			for i := range set {
				if set[i].Provider == "" {
					set[i].Provider = pl.Provider
				}
			}
			articles = append(articles, set...)
			providers = append(providers, pl.Provider)
		}
		if len(articles) == 0 {
			results[symbol] = models.FailedResult(fmt.Sprintf("no provider returned news for %s", symbol))
			continue
		}
		results[symbol] = models.FetchResult{
			Data:     articles,
			Provider: models.JoinProviders(providers),
			Success:  true,
		}
	}

	return results, nil
}

func (j *NewsJob) Store(ctx context.Context, results map[string]models.FetchResult) (bool, error) {
	byKey := make(map[string]models.NewsArticle)
	var order []string
	succeeded, attempted := 0, 0

	for _, entity := range sortedEntities(results) {
		res := results[entity]
		if !res.Success {
			continue
		}
		articles, ok := res.Data.([]models.NewsArticle)
		if !ok {
			attempted++
			j.deps.Logger.Warn().
				Str("symbol", entity).
				Msg("Skipping news with unexpected payload shape")
			continue
		}
		for _, a := range articles {
			if a.Provider == "" {
				a.Provider = res.Provider
			}
			key := a.Key()
			existing, seen := byKey[key]
			if !seen {
				byKey[key] = a
				order = append(order, key)
			} else if completeness(a) > completeness(existing) {
				byKey[key] = a
			}
		}
	}

	for _, key := range order {
		a := byKey[key]
		if a.Title == "" || a.PublishedAt.IsZero() {
			attempted++
			j.deps.Logger.Warn().
				Str("key", key).
				Msg("Skipping article with missing natural key")
			continue
		}
		attempted++
		if _, err := j.deps.Gateway.UpsertNews(ctx, a); err != nil {
			j.deps.Logger.Warn().
				Err(err).
				Str("key", key).
				Msg("Failed to store article")
			continue
		}
		succeeded++
	}

	return j.finishStore(succeeded, attempted), nil
}
