// Package tracker records every provider fetch attempt and derives the
// per-provider reliability, rate-limit, and blacklist state that drives
// provider selection.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// Config holds tracker tuning.
type Config struct {
	RateLimitCooldown time.Duration // provider cooldown after a rate-limit failure
	BlacklistCooldown time.Duration // extended cooldown for subscription/entitlement errors
	MaxAttempts       int           // retry ceiling per entity per data type
	PerfWindow        int           // rolling window size for provider stats
}

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitCooldown: 5 * time.Minute,
		BlacklistCooldown: 24 * time.Hour,
		MaxAttempts:       3,
		PerfWindow:        50,
	}
}

type perfKey struct {
	provider string
	dataType models.DataType
}

type entityKey struct {
	entity   string
	dataType models.DataType
}

type outcome struct {
	success   bool
	latencyMS int64
}

// perfState is the rolling performance window for one (provider, data type).
// Rate-limit and blacklist cooldowns are tracker-owned state, never globals.
type perfState struct {
	window              []outcome
	consecutiveFailures int
	rateLimitedUntil    time.Time
	blacklistedUntil    time.Time
}

type entityState struct {
	lastStatus models.AttemptStatus
	lastAt     time.Time
	attempts   int
}

// Tracker is safe for concurrent use by multiple jobs.
type Tracker struct {
	mu       sync.RWMutex
	cfg      Config
	logger   *common.Logger
	now      func() time.Time
	log      []*models.FetchAttempt
	byID     map[string]*models.FetchAttempt
	perf     map[perfKey]*perfState
	entities map[entityKey]*entityState
	// providers per data type in registration order; registration order is the
	// configured priority used to break full ties
	providers map[models.DataType][]string
}

// Option configures the tracker.
type Option func(*Tracker)

// WithClock overrides the time source, used by tests to step cooldowns.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a tracker.
func New(logger *common.Logger, cfg Config, opts ...Option) *Tracker {
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = DefaultConfig().RateLimitCooldown
	}
	if cfg.BlacklistCooldown <= 0 {
		cfg.BlacklistCooldown = DefaultConfig().BlacklistCooldown
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.PerfWindow <= 0 {
		cfg.PerfWindow = DefaultConfig().PerfWindow
	}

	t := &Tracker{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		byID:      make(map[string]*models.FetchAttempt),
		perf:      make(map[perfKey]*perfState),
		entities:  make(map[entityKey]*entityState),
		providers: make(map[models.DataType][]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RegisterProvider declares that a provider serves the given data types.
// Registration order defines the base priority order.
func (t *Tracker) RegisterProvider(name string, dataTypes ...models.DataType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, dt := range dataTypes {
		exists := false
		for _, p := range t.providers[dt] {
			if p == name {
				exists = true
				break
			}
		}
		if !exists {
			t.providers[dt] = append(t.providers[dt], name)
		}
	}
}

// RegisterAttempt appends a pending FetchAttempt and returns its ID.
func (t *Tracker) RegisterAttempt(entityID string, dt models.DataType, provider, jobID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt := &models.FetchAttempt{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		DataType:  dt,
		Provider:  provider,
		JobID:     jobID,
		StartedAt: t.now(),
		Status:    models.AttemptPending,
	}
	t.log = append(t.log, attempt)
	t.byID[attempt.ID] = attempt

	ek := entityKey{entity: entityID, dataType: dt}
	st := t.entities[ek]
	if st == nil {
		st = &entityState{}
		t.entities[ek] = st
	}
	st.attempts++

	return attempt.ID
}

// RecordSuccess resolves an attempt as successful and feeds the provider's
// rolling performance window.
func (t *Tracker) RecordSuccess(attemptID string, latencyMS int64, payloadSize int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt, ok := t.byID[attemptID]
	if !ok || attempt.Status != models.AttemptPending {
		return
	}

	attempt.Status = models.AttemptSuccess
	attempt.ResolvedAt = t.now()
	attempt.LatencyMS = latencyMS
	attempt.PayloadSize = payloadSize

	ps := t.perfFor(attempt.Provider, attempt.DataType)
	ps.push(outcome{success: true, latencyMS: latencyMS}, t.cfg.PerfWindow)
	ps.consecutiveFailures = 0

	t.setEntityOutcome(attempt, models.AttemptSuccess)
}

// RecordFailure resolves an attempt as failed. Rate-limit failures put the
// provider in cooldown for the data type; blacklist failures (subscription
// tier required) use the extended cooldown; anything else bumps the
// consecutive-failure count.
func (t *Tracker) RecordFailure(attemptID string, errMsg string, kind models.ErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt, ok := t.byID[attemptID]
	if !ok || attempt.Status != models.AttemptPending {
		return
	}

	attempt.Status = models.AttemptFailure
	attempt.ResolvedAt = t.now()
	attempt.Error = errMsg
	attempt.IsRateLimit = kind == models.ErrKindRateLimit
	attempt.LatencyMS = attempt.ResolvedAt.Sub(attempt.StartedAt).Milliseconds()

	ps := t.perfFor(attempt.Provider, attempt.DataType)
	ps.push(outcome{success: false, latencyMS: attempt.LatencyMS}, t.cfg.PerfWindow)

	switch kind {
	case models.ErrKindRateLimit:
		ps.rateLimitedUntil = t.now().Add(t.cfg.RateLimitCooldown)
		t.logger.Warn().
			Str("provider", attempt.Provider).
			Str("data_type", string(attempt.DataType)).
			Time("until", ps.rateLimitedUntil).
			Msg("Provider rate limited, entering cooldown")
	case models.ErrKindBlacklist:
		ps.blacklistedUntil = t.now().Add(t.cfg.BlacklistCooldown)
		t.logger.Warn().
			Str("provider", attempt.Provider).
			Str("data_type", string(attempt.DataType)).
			Time("until", ps.blacklistedUntil).
			Msg("Provider requires a paid tier, blacklisting")
	default:
		ps.consecutiveFailures++
	}

	t.setEntityOutcome(attempt, models.AttemptFailure)
}

// AvailableProviders returns providers not currently rate-limited or
// blacklisted for the data type, ordered by descending success rate with
// ascending average latency as the tie-break.
func (t *Tracker) AvailableProviders(dt models.DataType) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	type ranked struct {
		name    string
		rate    float64
		latency float64
	}

	var available []ranked
	for _, name := range t.providers[dt] {
		ps := t.perf[perfKey{provider: name, dataType: dt}]
		if ps != nil && (now.Before(ps.rateLimitedUntil) || now.Before(ps.blacklistedUntil)) {
			continue
		}
		rate, latency := 1.0, 0.0
		if ps != nil && len(ps.window) > 0 {
			rate, latency = ps.stats()
		}
		available = append(available, ranked{name: name, rate: rate, latency: latency})
	}

	sort.SliceStable(available, func(i, j int) bool {
		if available[i].rate != available[j].rate {
			return available[i].rate > available[j].rate
		}
		return available[i].latency < available[j].latency
	})

	names := make([]string, len(available))
	for i, r := range available {
		names[i] = r.name
	}
	return names
}

// RetryCandidates returns entities whose most recent attempt for the data
// type failed and are still under the retry ceiling, oldest failure first.
func (t *Tracker) RetryCandidates(dt models.DataType) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type candidate struct {
		entity string
		lastAt time.Time
	}

	var candidates []candidate
	for key, st := range t.entities {
		if key.dataType != dt {
			continue
		}
		if st.lastStatus != models.AttemptFailure {
			continue
		}
		if st.attempts >= t.cfg.MaxAttempts {
			continue
		}
		candidates = append(candidates, candidate{entity: key.entity, lastAt: st.lastAt})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].lastAt.Equal(candidates[j].lastAt) {
			return candidates[i].lastAt.Before(candidates[j].lastAt)
		}
		return candidates[i].entity < candidates[j].entity
	})

	entities := make([]string, len(candidates))
	for i, c := range candidates {
		entities[i] = c.entity
	}
	return entities
}

// Performance returns the derived stats for one (provider, data type).
func (t *Tracker) Performance(provider string, dt models.DataType) models.ProviderPerformance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	perf := models.ProviderPerformance{
		Provider:    provider,
		DataType:    dt,
		SuccessRate: 1.0,
	}

	ps := t.perf[perfKey{provider: provider, dataType: dt}]
	if ps == nil {
		return perf
	}

	perf.Attempts = len(ps.window)
	if len(ps.window) > 0 {
		perf.SuccessRate, perf.AvgResponseTimeMS = ps.stats()
	}
	perf.ConsecutiveFailures = ps.consecutiveFailures
	if !ps.rateLimitedUntil.IsZero() {
		until := ps.rateLimitedUntil
		perf.RateLimitedUntil = &until
	}
	if !ps.blacklistedUntil.IsZero() {
		until := ps.blacklistedUntil
		perf.BlacklistedUntil = &until
	}
	return perf
}

// Attempts returns a snapshot of the attempt log, optionally filtered by job.
func (t *Tracker) Attempts(jobID string) []models.FetchAttempt {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []models.FetchAttempt
	for _, a := range t.log {
		if jobID == "" || a.JobID == jobID {
			out = append(out, *a)
		}
	}
	return out
}

// Prune drops resolved attempts older than the given age from the log and
// returns the number removed. Pending attempts are never pruned.
func (t *Tracker) Prune(olderThan time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-olderThan)
	kept := t.log[:0]
	removed := 0
	for _, a := range t.log {
		if a.Status != models.AttemptPending && a.StartedAt.Before(cutoff) {
			delete(t.byID, a.ID)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	t.log = kept
	return removed
}

// perfFor returns the state bucket for (provider, dt), creating it if needed.
// Callers must hold the write lock.
func (t *Tracker) perfFor(provider string, dt models.DataType) *perfState {
	key := perfKey{provider: provider, dataType: dt}
	ps := t.perf[key]
	if ps == nil {
		ps = &perfState{}
		t.perf[key] = ps
	}
	return ps
}

// setEntityOutcome updates the most-recent-attempt state for the entity.
// Callers must hold the write lock.
func (t *Tracker) setEntityOutcome(attempt *models.FetchAttempt, status models.AttemptStatus) {
	ek := entityKey{entity: attempt.EntityID, dataType: attempt.DataType}
	st := t.entities[ek]
	if st == nil {
		st = &entityState{}
		t.entities[ek] = st
	}
	st.lastStatus = status
	st.lastAt = attempt.ResolvedAt
	if status == models.AttemptSuccess {
		// a success clears the retry ceiling for the entity
		st.attempts = 0
	}
}

func (ps *perfState) push(o outcome, window int) {
	ps.window = append(ps.window, o)
	if len(ps.window) > window {
		ps.window = ps.window[len(ps.window)-window:]
	}
}

func (ps *perfState) stats() (successRate, avgLatencyMS float64) {
	if len(ps.window) == 0 {
		return 1.0, 0
	}
	var successes int
	var totalLatency int64
	for _, o := range ps.window {
		if o.success {
			successes++
		}
		totalLatency += o.latencyMS
	}
	successRate = float64(successes) / float64(len(ps.window))
	avgLatencyMS = float64(totalLatency) / float64(len(ps.window))
	return successRate, avgLatencyMS
}

// Ensure Tracker implements FetchTracker
var _ interfaces.FetchTracker = (*Tracker)(nil)
