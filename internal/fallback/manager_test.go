package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
	"github.com/bobmcallan/marketsync/internal/tracker"
)

// stubProvider serves quotes through a configurable function and records
// which symbols it was asked for.
type stubProvider struct {
	name string
	fn   func(symbol string) (*models.Quote, error)

	mu    sync.Mutex
	calls []string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	s.mu.Lock()
	s.calls = append(s.calls, symbol)
	s.mu.Unlock()
	return s.fn(symbol)
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func alwaysSucceed(name string) *stubProvider {
	return &stubProvider{name: name, fn: func(symbol string) (*models.Quote, error) {
		return &models.Quote{Symbol: symbol, Price: 100, Timestamp: time.Now(), Provider: name}, nil
	}}
}

func alwaysFail(name string) *stubProvider {
	return &stubProvider{name: name, fn: func(string) (*models.Quote, error) {
		return nil, errors.New("connection reset")
	}}
}

func quoteFetch(ctx context.Context, p interfaces.Provider, entity string) (any, error) {
	qp, ok := p.(interfaces.QuoteProvider)
	if !ok {
		return nil, interfaces.ErrUnsupported
	}
	return qp.GetQuote(ctx, entity)
}

func newTestManager(t *testing.T, providers ...interfaces.Provider) (*Manager, *tracker.Tracker) {
	t.Helper()
	tr := tracker.New(common.NewSilentLogger(), tracker.DefaultConfig())
	rates := make(map[string]ProviderRate)
	for _, p := range providers {
		rates[p.Name()] = ProviderRate{RPS: 1000, Burst: 1000}
	}
	m := NewManager(providers, tr, common.NewSilentLogger(), Config{
		BatchSize:     10,
		BatchDelay:    time.Millisecond,
		MaxConcurrent: 5,
		ProviderRates: rates,
	})
	return m, tr
}

func TestFallbackChainConvergesToWorkingProvider(t *testing.T) {
	p1 := alwaysFail("p1")
	p2 := alwaysFail("p2")
	p3 := alwaysSucceed("p3")
	m, tr := newTestManager(t, p1, p2, p3)

	entities := []string{"AAPL", "MSFT", "GOOG"}
	results := m.FetchWithFallback(context.Background(), entities, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-1")

	require.Len(t, results, 3)
	for _, e := range entities {
		res := results[e]
		assert.True(t, res.Success, "entity %s", e)
		assert.Equal(t, "p3", res.Provider)
	}

	// p1 and p2 were each tried for every entity before p3 picked them up
	assert.Equal(t, 3, p1.callCount())
	assert.Equal(t, 3, p2.callCount())
	assert.Equal(t, 3, p3.callCount())

	perf := tr.Performance("p1", models.DataTypeQuotes)
	assert.Equal(t, 0.0, perf.SuccessRate)
}

func TestFallbackChainExhaustsAllProviders(t *testing.T) {
	m, _ := newTestManager(t, alwaysFail("p1"), alwaysFail("p2"))

	results := m.FetchWithFallback(context.Background(), []string{"AAPL"}, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-1")

	res := results["AAPL"]
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "all providers exhausted")
}

func TestRoundRobinPartitionsEntities(t *testing.T) {
	p1 := alwaysSucceed("p1")
	p2 := alwaysSucceed("p2")
	m, _ := newTestManager(t, p1, p2)

	entities := []string{"AAPL", "MSFT", "GOOG", "AMZN"}
	results := m.FetchWithFallback(context.Background(), entities, models.DataTypeQuotes, quoteFetch, models.StrategyRoundRobin, "job-1")

	require.Len(t, results, 4)
	for _, e := range entities {
		assert.True(t, results[e].Success)
	}
	assert.Equal(t, 2, p1.callCount())
	assert.Equal(t, 2, p2.callCount())
}

func TestRoundRobinDoesNotFallBack(t *testing.T) {
	p1 := alwaysFail("p1")
	p2 := alwaysSucceed("p2")
	m, _ := newTestManager(t, p1, p2)

	// two entities so each provider gets exactly one
	results := m.FetchWithFallback(context.Background(), []string{"AAPL", "MSFT"}, models.DataTypeQuotes, quoteFetch, models.StrategyRoundRobin, "job-1")

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestInvalidEntitiesFailWithoutProviderCalls(t *testing.T) {
	p1 := alwaysSucceed("p1")
	m, _ := newTestManager(t, p1)

	results := m.FetchWithFallback(context.Background(), []string{" AAPL", "", "MS FT", "TSLA"}, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-1")

	require.Len(t, results, 4)
	assert.False(t, results[" AAPL"].Success)
	assert.Contains(t, results[" AAPL"].Error, "invalid entity")
	assert.False(t, results[""].Success)
	assert.False(t, results["MS FT"].Success)
	assert.True(t, results["TSLA"].Success)

	assert.Equal(t, 1, p1.callCount())
}

func TestDuplicateEntitiesFetchedOnce(t *testing.T) {
	p1 := alwaysSucceed("p1")
	m, _ := newTestManager(t, p1)

	results := m.FetchWithFallback(context.Background(), []string{"AAPL", "AAPL", "AAPL"}, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-1")

	require.Len(t, results, 1)
	assert.True(t, results["AAPL"].Success)
	assert.Equal(t, 1, p1.callCount())
}

func TestEmptyPayloadCountsAsFailure(t *testing.T) {
	empty := &stubProvider{name: "empty", fn: func(string) (*models.Quote, error) {
		return nil, nil
	}}
	m, _ := newTestManager(t, empty)

	results := m.FetchWithFallback(context.Background(), []string{"AAPL"}, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-1")

	res := results["AAPL"]
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no data")
}

func TestRetryPassTriesAllProvidersAndKeepsPriorityResult(t *testing.T) {
	p1 := alwaysSucceed("p1")
	p2 := alwaysSucceed("p2")
	m, tr := newTestManager(t, p1, p2)

	// seed a failed entity so the tracker reports it as a retry candidate
	id := tr.RegisterAttempt("OLD", models.DataTypeQuotes, "p1", "job-0")
	tr.RecordFailure(id, "connection reset", models.ErrKindTransient)

	results := m.FetchWithFallback(context.Background(), []string{"NEW"}, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-1")

	require.Contains(t, results, "OLD")
	require.Contains(t, results, "NEW")
	assert.True(t, results["OLD"].Success)
	// the aggressive pass queried both providers but kept the first's payload
	assert.Equal(t, "p1", results["OLD"].Provider)
	assert.Contains(t, p2.calls, "OLD")
}

func TestRateLimitedProviderSkippedOnNextRun(t *testing.T) {
	limited := &stubProvider{name: "limited", fn: func(string) (*models.Quote, error) {
		return nil, models.NewFetchError(models.ErrKindRateLimit, "limited", "too many requests", nil)
	}}
	backup := alwaysSucceed("backup")
	m, _ := newTestManager(t, limited, backup)

	results := m.FetchWithFallback(context.Background(), []string{"AAPL"}, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-1")
	require.True(t, results["AAPL"].Success)
	assert.Equal(t, "backup", results["AAPL"].Provider)
	firstRunCalls := limited.callCount()

	// the provider is cooling down, so the second run never touches it.
	// MSFT is fresh; AAPL succeeded so it is not a retry candidate.
	m.FetchWithFallback(context.Background(), []string{"MSFT"}, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-2")
	assert.Equal(t, firstRunCalls, limited.callCount())
}

func TestCancelledContextReturnsFailuresForAll(t *testing.T) {
	m, _ := newTestManager(t, alwaysSucceed("p1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := m.FetchWithFallback(ctx, []string{"AAPL", "MSFT"}, models.DataTypeQuotes, quoteFetch, models.StrategyFallbackChain, "job-1")

	require.Len(t, results, 2)
	for e, res := range results {
		assert.False(t, res.Success, "entity %s", e)
	}
}

func TestSweepQueriesEveryProviderInPriorityOrder(t *testing.T) {
	p1 := alwaysSucceed("p1")
	p2 := alwaysSucceed("p2")
	failing := alwaysFail("p3")
	m, _ := newTestManager(t, p1, p2, failing)

	payloads := m.Sweep(context.Background(), []string{"AAPL"}, models.DataTypeQuotes, quoteFetch, "job-1")

	require.Len(t, payloads["AAPL"], 2)
	assert.Equal(t, "p1", payloads["AAPL"][0].Provider)
	assert.Equal(t, "p2", payloads["AAPL"][1].Provider)
}

func TestFastestFirstPrefersLowLatencyProvider(t *testing.T) {
	slow := alwaysSucceed("slow")
	fast := alwaysSucceed("fast")
	m, tr := newTestManager(t, slow, fast)

	// seed latency history: slow at 900ms, fast at 50ms
	for i := 0; i < 3; i++ {
		id := tr.RegisterAttempt(fmt.Sprintf("S%d", i), models.DataTypeQuotes, "slow", "seed")
		tr.RecordSuccess(id, 900, 10)
		id = tr.RegisterAttempt(fmt.Sprintf("F%d", i), models.DataTypeQuotes, "fast", "seed")
		tr.RecordSuccess(id, 50, 10)
	}

	results := m.FetchWithFallback(context.Background(), []string{"AAPL"}, models.DataTypeQuotes, quoteFetch, models.StrategyFastestFirst, "job-1")
	require.True(t, results["AAPL"].Success)
	assert.Equal(t, "fast", results["AAPL"].Provider)
	assert.Equal(t, 0, slow.callCount())
}
