// Package jobs implements the per-data-type aggregation jobs. Each job drives
// provider fetches through the fallback manager, merges and deduplicates the
// payloads into normalized records, and persists them through the storage
// gateway with idempotent natural-key upserts.
package jobs

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/fallback"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// Mode selects how a job queries providers.
type Mode string

const (
	// ModeFallback stops at the first provider that succeeds per entity.
	ModeFallback Mode = "fallback"
	// ModeSweep queries every available provider and merges field-level
	// results, because providers populate different subsets of fields.
	ModeSweep Mode = "sweep"
)

// sweepDefaults are the data types whose providers disagree enough that the
// comprehensive sweep is the default. Everything else defaults to fallback.
var sweepDefaults = map[models.DataType]struct{}{
	models.DataTypeFundamentals: {},
	models.DataTypeEarnings:     {},
	models.DataTypeDividends:    {},
	models.DataTypeOptionsChain: {},
}

// Deps are the collaborators every job shares.
type Deps struct {
	Manager *fallback.Manager
	Tracker interfaces.FetchTracker
	Gateway interfaces.StorageGateway
	Logger  *common.Logger
}

// Options tune one job. Zero values fall back to per-data-type defaults.
type Options struct {
	Mode          Mode
	Strategy      models.Strategy
	QualityScores map[string]int
	LookbackDays  int // historical price window, default 365
	WindowDays    int // calendar/event forward window, default 30
	Clock         func() time.Time
}

// Tally is the per-invocation store outcome, visible to callers that need
// partial-success detail beyond the boolean.
type Tally struct {
	Succeeded int
	Attempted int
}

// base carries the shared wiring and bookkeeping for all jobs.
type base struct {
	dt   models.DataType
	deps Deps
	opts Options

	mu        sync.Mutex
	lastTally Tally
}

func newBase(dt models.DataType, deps Deps, opts Options) base {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 365
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.Mode == "" {
		if _, ok := sweepDefaults[dt]; ok {
			opts.Mode = ModeSweep
		} else {
			opts.Mode = ModeFallback
		}
	}
	if opts.Strategy == "" {
		opts.Strategy = models.StrategyFallbackChain
	}
	return base{dt: dt, deps: deps, opts: opts}
}

func (b *base) DataType() models.DataType { return b.dt }

// LastStoreTally returns the succeeded/attempted counts of the most recent
// Store call.
func (b *base) LastStoreTally() Tally {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTally
}

func (b *base) newJobID() string { return uuid.NewString() }

func (b *base) now() time.Time { return b.opts.Clock() }

// checkProviders returns an error when no provider at all serves the data
// type. Providers that are merely cooling down do not trigger it; the
// per-entity results carry that failure instead.
func (b *base) checkProviders() error {
	if len(b.deps.Manager.ProviderPriority(b.dt)) == 0 {
		return fmt.Errorf("no providers registered for %s", b.dt)
	}
	return nil
}

// validateEntities splits requested entities into usable ones and immediate
// failures, mirroring the manager's validation so sweep jobs behave the same.
func (b *base) validateEntities(entities []string, results map[string]models.FetchResult) []string {
	valid := make([]string, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		trimmed := strings.TrimSpace(e)
		if trimmed == "" || trimmed != e || strings.ContainsAny(e, " \t\n") {
			results[e] = models.FailedResult(fmt.Sprintf("invalid entity %q: empty or malformed", e))
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		valid = append(valid, e)
	}
	return valid
}

// finishStore records the tally, logs it, and returns the all-or-nothing
// boolean: true only when every attempted record stored (an empty batch is
// trivially successful).
func (b *base) finishStore(succeeded, attempted int) bool {
	b.mu.Lock()
	b.lastTally = Tally{Succeeded: succeeded, Attempted: attempted}
	b.mu.Unlock()

	evt := b.deps.Logger.Info()
	if succeeded < attempted {
		evt = b.deps.Logger.Warn()
	}
	evt.
		Str("data_type", string(b.dt)).
		Int("succeeded", succeeded).
		Int("attempted", attempted).
		Msg("Store complete")

	return succeeded == attempted
}

// fetchPayloads queries providers according to the configured fetch mode.
// Sweep collects every available provider's payload per entity in priority
// order; fallback stops at the first success per entity and yields at most
// one payload. Either way the job's merge sees the same shape. Entities that
// fail outright are written into results, and the returned order covers the
// requested entities plus any extras the manager's retry pass recovered.
func (b *base) fetchPayloads(ctx context.Context, valid []string, fetch fallback.FetchFunc, results map[string]models.FetchResult) (map[string][]fallback.ProviderPayload, []string) {
	if b.opts.Mode == ModeSweep {
		return b.deps.Manager.Sweep(ctx, valid, b.dt, fetch, b.newJobID()), valid
	}

	order := make([]string, 0, len(valid))
	seen := make(map[string]struct{}, len(valid))
	for _, e := range valid {
		order = append(order, e)
		seen[e] = struct{}{}
	}

	payloads := make(map[string][]fallback.ProviderPayload, len(valid))
	for entity, res := range b.deps.Manager.FetchWithFallback(ctx, valid, b.dt, fetch, b.opts.Strategy, b.newJobID()) {
		if res.Success {
			payloads[entity] = []fallback.ProviderPayload{{Provider: res.Provider, Data: res.Data}}
		} else {
			results[entity] = res
		}
		if _, ok := seen[entity]; !ok {
			seen[entity] = struct{}{}
			order = append(order, entity)
		}
	}
	return payloads, order
}

// windowCache memoizes one whole-window provider response within a single
// Fetch invocation. The per-provider once holds concurrent entities back so
// the window is fetched exactly once per provider; a failed load is memoized
// too, so later entities report the same error instead of re-spending the
// provider's rate budget.
type windowCache[T any] struct {
	mu      sync.Mutex
	entries map[string]*windowEntry[T]
}

type windowEntry[T any] struct {
	once sync.Once
	data []T
	err  error
}

func newWindowCache[T any]() *windowCache[T] {
	return &windowCache[T]{entries: make(map[string]*windowEntry[T])}
}

func (c *windowCache[T]) get(provider string, load func() ([]T, error)) ([]T, error) {
	c.mu.Lock()
	e, ok := c.entries[provider]
	if !ok {
		e = &windowEntry[T]{}
		c.entries[provider] = e
	}
	c.mu.Unlock()

	e.once.Do(func() { e.data, e.err = load() })
	return e.data, e.err
}

// sortedEntities returns the result keys in a stable order so Store iterates
// deterministically.
func sortedEntities(results map[string]models.FetchResult) []string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// completeness scores a record by counting populated fields: non-nil
// pointers, non-empty strings, and non-zero numbers. Used when two records
// share a natural key and the more complete one must win.
func completeness(rec any) int {
	v := reflect.ValueOf(rec)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return 0
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0
	}

	score := 0
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Ptr:
			if !f.IsNil() {
				score++
			}
		case reflect.String:
			if f.String() != "" {
				score++
			}
		case reflect.Float64, reflect.Float32:
			if f.Float() != 0 {
				score++
			}
		case reflect.Int, reflect.Int32, reflect.Int64:
			if f.Int() != 0 {
				score++
			}
		case reflect.Struct:
			if t, ok := f.Interface().(time.Time); ok && !t.IsZero() {
				score++
			}
		}
	}
	return score
}
