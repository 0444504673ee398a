// Package fallback drives provider calls for a batch of entities, selecting
// providers by strategy and falling back across them per entity.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// FetchFunc invokes one provider for one entity and returns the raw
// provider-native payload. Implementations return interfaces.ErrUnsupported
// when the provider lacks the capability; the manager then skips the provider
// without recording an attempt.
type FetchFunc func(ctx context.Context, p interfaces.Provider, entity string) (any, error)

// ProviderRate is the per-provider request budget.
type ProviderRate struct {
	RPS   int
	Burst int
}

// Config holds fallback manager tuning.
type Config struct {
	BatchSize     int                     // entities per batch, default 10
	BatchDelay    time.Duration           // pause between batches, default 500ms
	MaxConcurrent int                     // in-flight provider calls, default 5
	ProviderRates map[string]ProviderRate // per-provider limits, default 5 rps
}

// Manager selects providers and drives calls through the tracker. The
// configured provider order is the priority order used by FALLBACK_CHAIN and
// by deterministic field merges downstream.
type Manager struct {
	providers []interfaces.Provider
	tracker   interfaces.FetchTracker
	logger    *common.Logger
	cfg       Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewManager creates a fallback manager. Providers are tried in the given
// order when strategies call for priority order.
func NewManager(providers []interfaces.Provider, tr interfaces.FetchTracker, logger *common.Logger, cfg Config) *Manager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 500 * time.Millisecond
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}

	m := &Manager{
		providers: providers,
		tracker:   tr,
		logger:    logger,
		cfg:       cfg,
		limiters:  make(map[string]*rate.Limiter),
	}

	for _, p := range providers {
		for _, dt := range models.AllDataTypes {
			if interfaces.Supports(p, dt) {
				tr.RegisterProvider(p.Name(), dt)
			}
		}
	}

	return m
}

// FetchWithFallback fetches the data type for all entities, producing exactly
// one FetchResult per requested entity. Previously failed entities reported
// by the tracker are retried first through the aggressive all-provider pass.
func (m *Manager) FetchWithFallback(ctx context.Context, entities []string, dt models.DataType, fetch FetchFunc, strategy models.Strategy, jobID string) map[string]models.FetchResult {
	results := make(map[string]models.FetchResult, len(entities))

	valid := make([]string, 0, len(entities))
	requested := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		trimmed := strings.TrimSpace(e)
		if trimmed == "" || trimmed != e || strings.ContainsAny(e, " \t\n") {
			results[e] = models.FailedResult(fmt.Sprintf("invalid entity %q: empty or malformed", e))
			continue
		}
		if _, dup := requested[e]; dup {
			continue
		}
		requested[e] = struct{}{}
		valid = append(valid, e)
	}

	// Retry previously failed entities through every provider before the new
	// batch; they already failed once, so the recovery pass is deliberately
	// more aggressive than first-success fallback.
	var retries []string
	for _, e := range m.tracker.RetryCandidates(dt) {
		if _, ok := requested[e]; ok {
			continue
		}
		retries = append(retries, e)
	}
	if len(retries) > 0 {
		m.logger.Debug().
			Str("data_type", string(dt)).
			Int("count", len(retries)).
			Msg("Retrying previously failed entities")
		m.retryPass(ctx, retries, dt, fetch, jobID, results)
	}

	if len(valid) == 0 {
		return results
	}

	switch strategy {
	case models.StrategyRoundRobin:
		m.roundRobin(ctx, valid, dt, fetch, jobID, results)
	case models.StrategyFastestFirst, models.StrategyMostReliable, models.StrategyFallbackChain:
		m.chain(ctx, valid, dt, fetch, strategy, jobID, results)
	default:
		m.chain(ctx, valid, dt, fetch, models.StrategyFallbackChain, jobID, results)
	}

	return results
}

// orderedProviders returns the providers to try for the strategy, most
// preferred first, excluding rate-limited/blacklisted and unsupporting ones.
func (m *Manager) orderedProviders(dt models.DataType, strategy models.Strategy) []interfaces.Provider {
	available := m.tracker.AvailableProviders(dt)

	byName := make(map[string]interfaces.Provider, len(m.providers))
	for _, p := range m.providers {
		if interfaces.Supports(p, dt) {
			byName[p.Name()] = p
		}
	}

	var ordered []interfaces.Provider
	switch strategy {
	case models.StrategyFallbackChain:
		// configured priority order, filtered to available providers
		availSet := make(map[string]struct{}, len(available))
		for _, name := range available {
			availSet[name] = struct{}{}
		}
		for _, p := range m.providers {
			if _, ok := availSet[p.Name()]; !ok {
				continue
			}
			if _, ok := byName[p.Name()]; ok {
				ordered = append(ordered, p)
			}
		}
	case models.StrategyFastestFirst:
		type timed struct {
			p       interfaces.Provider
			latency float64
		}
		var ts []timed
		for _, name := range available {
			p, ok := byName[name]
			if !ok {
				continue
			}
			perf := m.tracker.Performance(name, dt)
			ts = append(ts, timed{p: p, latency: perf.AvgResponseTimeMS})
		}
		// stable so ties keep the tracker's reliability order
		sort.SliceStable(ts, func(a, b int) bool { return ts[a].latency < ts[b].latency })
		for _, t := range ts {
			ordered = append(ordered, t.p)
		}
	default:
		// MOST_RELIABLE and round-robin use the tracker's reliability order
		for _, name := range available {
			if p, ok := byName[name]; ok {
				ordered = append(ordered, p)
			}
		}
	}
	return ordered
}

// chain runs the fallback chain: each provider is called only for entities
// still remaining, and the loop stops early once nothing remains.
func (m *Manager) chain(ctx context.Context, entities []string, dt models.DataType, fetch FetchFunc, strategy models.Strategy, jobID string, results map[string]models.FetchResult) {
	providers := m.orderedProviders(dt, strategy)
	if len(providers) == 0 {
		for _, e := range entities {
			results[e] = models.FailedResult(fmt.Sprintf("no providers available for %s", dt))
		}
		return
	}

	remaining := entities
	lastErr := make(map[string]string, len(entities))

	for _, p := range providers {
		if len(remaining) == 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}

		var mu sync.Mutex
		var failed []string

		m.forEachBatched(ctx, remaining, func(ctx context.Context, entity string) {
			data, provider, errMsg := m.call(ctx, p, entity, dt, fetch, jobID)
			mu.Lock()
			defer mu.Unlock()
			if errMsg == "" {
				results[entity] = models.FetchResult{Data: data, Provider: provider, Success: true}
			} else {
				lastErr[entity] = errMsg
				failed = append(failed, entity)
			}
		})

		// preserve the original entity order for determinism
		failedSet := make(map[string]struct{}, len(failed))
		for _, e := range failed {
			failedSet[e] = struct{}{}
		}
		next := remaining[:0:0]
		for _, e := range remaining {
			if _, ok := failedSet[e]; ok {
				next = append(next, e)
			}
		}
		remaining = next
	}

	for _, e := range remaining {
		msg := lastErr[e]
		if msg == "" {
			msg = "context cancelled before fetch"
		}
		results[e] = models.FailedResult(fmt.Sprintf("all providers exhausted: %s", msg))
	}
}

// roundRobin partitions entities evenly across available providers with no
// fallback; failures surface directly.
func (m *Manager) roundRobin(ctx context.Context, entities []string, dt models.DataType, fetch FetchFunc, jobID string, results map[string]models.FetchResult) {
	providers := m.orderedProviders(dt, models.StrategyRoundRobin)
	if len(providers) == 0 {
		for _, e := range entities {
			results[e] = models.FailedResult(fmt.Sprintf("no providers available for %s", dt))
		}
		return
	}

	assignment := make(map[string]interfaces.Provider, len(entities))
	for i, e := range entities {
		assignment[e] = providers[i%len(providers)]
	}

	var mu sync.Mutex
	m.forEachBatched(ctx, entities, func(ctx context.Context, entity string) {
		p := assignment[entity]
		data, provider, errMsg := m.call(ctx, p, entity, dt, fetch, jobID)
		mu.Lock()
		defer mu.Unlock()
		if errMsg == "" {
			results[entity] = models.FetchResult{Data: data, Provider: provider, Success: true}
		} else {
			results[entity] = models.FailedResult(errMsg)
		}
	})
}

// retryPass tries every supporting provider for each entity, keeping the
// highest-priority success, and does not stop at the first one.
func (m *Manager) retryPass(ctx context.Context, entities []string, dt models.DataType, fetch FetchFunc, jobID string, results map[string]models.FetchResult) {
	providers := m.orderedProviders(dt, models.StrategyFallbackChain)
	if len(providers) == 0 {
		return
	}

	var mu sync.Mutex
	m.forEachBatched(ctx, entities, func(ctx context.Context, entity string) {
		var best *models.FetchResult
		var lastErr string
		for _, p := range providers {
			if ctx.Err() != nil {
				break
			}
			data, provider, errMsg := m.call(ctx, p, entity, dt, fetch, jobID)
			if errMsg != "" {
				lastErr = errMsg
				continue
			}
			if best == nil {
				best = &models.FetchResult{Data: data, Provider: provider, Success: true}
			}
		}

		mu.Lock()
		defer mu.Unlock()
		if best != nil {
			results[entity] = *best
		} else {
			results[entity] = models.FailedResult(fmt.Sprintf("retry exhausted all providers: %s", lastErr))
		}
	})
}

// forEachBatched runs fn for each entity in fixed-size batches with the
// configured inter-batch delay, bounding in-flight calls.
func (m *Manager) forEachBatched(ctx context.Context, entities []string, fn func(ctx context.Context, entity string)) {
	for start := 0; start < len(entities); start += m.cfg.BatchSize {
		if ctx.Err() != nil {
			return
		}

		end := start + m.cfg.BatchSize
		if end > len(entities) {
			end = len(entities)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.cfg.MaxConcurrent)
		for _, entity := range entities[start:end] {
			entity := entity
			g.Go(func() error {
				fn(gctx, entity)
				return nil
			})
		}
		_ = g.Wait()

		if end < len(entities) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.BatchDelay):
			}
		}
	}
}

// call performs one tracked provider call. It returns the payload, the
// provider name, and an empty error message on success; on failure the error
// message describes the cause. Calls skipped before the provider is invoked
// (cancelled context, limiter wait) are not recorded as attempts.
func (m *Manager) call(ctx context.Context, p interfaces.Provider, entity string, dt models.DataType, fetch FetchFunc, jobID string) (any, string, string) {
	if ctx.Err() != nil {
		return nil, "", "context cancelled before fetch"
	}

	if err := m.limiter(p.Name()).Wait(ctx); err != nil {
		return nil, "", fmt.Sprintf("rate limiter wait: %v", err)
	}

	attemptID := m.tracker.RegisterAttempt(entity, dt, p.Name(), jobID)
	start := time.Now()

	data, err := fetch(ctx, p, entity)
	latency := time.Since(start).Milliseconds()

	if errors.Is(err, interfaces.ErrUnsupported) {
		// capability misses are normally filtered out before the call; resolve
		// the attempt so the log never holds a dangling pending entry
		m.tracker.RecordFailure(attemptID, err.Error(), models.ErrKindValidation)
		return nil, "", err.Error()
	}
	if err != nil {
		kind := models.Classify(err)
		m.tracker.RecordFailure(attemptID, err.Error(), kind)
		m.logger.Debug().
			Str("provider", p.Name()).
			Str("entity", entity).
			Str("data_type", string(dt)).
			Str("kind", string(kind)).
			Err(err).
			Msg("Provider call failed")
		return nil, "", err.Error()
	}
	if isEmptyPayload(data) {
		m.tracker.RecordFailure(attemptID, "provider returned no data", models.ErrKindTransient)
		return nil, "", fmt.Sprintf("%s returned no data", p.Name())
	}

	m.tracker.RecordSuccess(attemptID, latency, payloadSize(data))
	return data, p.Name(), ""
}

// limiter returns the per-provider limiter, creating one on first use.
func (m *Manager) limiter(provider string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lim, ok := m.limiters[provider]; ok {
		return lim
	}

	rps, burst := 5, 5
	if pr, ok := m.cfg.ProviderRates[provider]; ok {
		if pr.RPS > 0 {
			rps = pr.RPS
		}
		if pr.Burst > 0 {
			burst = pr.Burst
		}
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	m.limiters[provider] = lim
	return lim
}

// isEmptyPayload reports whether a provider response carries no usable data.
func isEmptyPayload(data any) bool {
	if data == nil {
		return true
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Ptr:
		return v.IsNil()
	}
	return false
}

// payloadSize approximates the payload size as an item count for slices and
// maps; scalar payloads count as one.
func payloadSize(data any) int {
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len()
	}
	return 1
}

// ProviderPayload is one provider's raw response for an entity during a
// comprehensive sweep, tagged with the provider that produced it.
type ProviderPayload struct {
	Provider string
	Data     any
}

// Sweep queries every available provider for every entity, regardless of
// earlier successes, because different providers populate different subsets
// of fields for the same entity. Payloads are returned in provider priority
// order per entity so downstream field merges are deterministic, whatever
// order the concurrent calls completed in. One provider's failure never
// aborts the sweep.
func (m *Manager) Sweep(ctx context.Context, entities []string, dt models.DataType, fetch FetchFunc, jobID string) map[string][]ProviderPayload {
	providers := m.orderedProviders(dt, models.StrategyFallbackChain)
	if len(providers) == 0 {
		return map[string][]ProviderPayload{}
	}

	// matrix[entityIdx][providerIdx] keeps priority order independent of
	// call-completion order
	matrix := make([][]any, len(entities))
	for i := range matrix {
		matrix[i] = make([]any, len(providers))
	}

	type pair struct{ entity, provider int }
	var pairs []pair
	for e := range entities {
		for p := range providers {
			pairs = append(pairs, pair{entity: e, provider: p})
		}
	}

	for start := 0; start < len(pairs); start += m.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}

		end := start + m.cfg.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.cfg.MaxConcurrent)
		for _, pr := range pairs[start:end] {
			pr := pr
			g.Go(func() error {
				data, _, errMsg := m.call(gctx, providers[pr.provider], entities[pr.entity], dt, fetch, jobID)
				if errMsg == "" {
					matrix[pr.entity][pr.provider] = data
				}
				return nil
			})
		}
		_ = g.Wait()

		if end < len(pairs) {
			select {
			case <-ctx.Done():
			case <-time.After(m.cfg.BatchDelay):
			}
		}
	}

	results := make(map[string][]ProviderPayload, len(entities))
	for i, entity := range entities {
		var payloads []ProviderPayload
		for j, p := range providers {
			if matrix[i][j] != nil {
				payloads = append(payloads, ProviderPayload{Provider: p.Name(), Data: matrix[i][j]})
			}
		}
		results[entity] = payloads
	}
	return results
}

// ProviderPriority returns the configured priority order of providers that
// support the data type, ignoring availability. Used for merge determinism.
func (m *Manager) ProviderPriority(dt models.DataType) []string {
	var names []string
	for _, p := range m.providers {
		if interfaces.Supports(p, dt) {
			names = append(names, p.Name())
		}
	}
	return names
}
