package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/models"
)

// testClock is a manually stepped time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(t *testing.T) (*Tracker, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)}
	tr := New(common.NewSilentLogger(), Config{
		RateLimitCooldown: 5 * time.Minute,
		BlacklistCooldown: 24 * time.Hour,
		MaxAttempts:       3,
		PerfWindow:        50,
	}, WithClock(clock.Now))
	return tr, clock
}

func TestRateLimitCooldownExcludesProvider(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.RegisterProvider("alpha", models.DataTypeQuotes)
	tr.RegisterProvider("beta", models.DataTypeQuotes)

	id := tr.RegisterAttempt("AAPL", models.DataTypeQuotes, "alpha", "job-1")
	tr.RecordFailure(id, "too many requests", models.ErrKindRateLimit)

	assert.Equal(t, []string{"beta"}, tr.AvailableProviders(models.DataTypeQuotes))

	clock.Advance(5*time.Minute + time.Second)
	assert.Contains(t, tr.AvailableProviders(models.DataTypeQuotes), "alpha")
}

func TestBlacklistOutlastsRateLimitCooldown(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.RegisterProvider("alpha", models.DataTypeFundamentals)
	tr.RegisterProvider("beta", models.DataTypeFundamentals)

	id := tr.RegisterAttempt("AAPL", models.DataTypeFundamentals, "alpha", "job-1")
	tr.RecordFailure(id, "endpoint requires a paid plan", models.ErrKindBlacklist)

	// well past the rate-limit cooldown but inside the blacklist window
	clock.Advance(time.Hour)
	assert.Equal(t, []string{"beta"}, tr.AvailableProviders(models.DataTypeFundamentals))

	clock.Advance(24 * time.Hour)
	assert.Contains(t, tr.AvailableProviders(models.DataTypeFundamentals), "alpha")
}

func TestAvailableProvidersOrderedByRateThenLatency(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.RegisterProvider("slowreliable", models.DataTypeQuotes)
	tr.RegisterProvider("fastflaky", models.DataTypeQuotes)
	tr.RegisterProvider("fastreliable", models.DataTypeQuotes)

	record := func(provider string, success bool, latency int64) {
		id := tr.RegisterAttempt("MSFT", models.DataTypeQuotes, provider, "job-1")
		if success {
			tr.RecordSuccess(id, latency, 100)
		} else {
			tr.RecordFailure(id, "boom", models.ErrKindTransient)
		}
	}

	for i := 0; i < 4; i++ {
		record("slowreliable", true, 900)
		record("fastreliable", true, 80)
	}
	record("fastflaky", true, 50)
	record("fastflaky", false, 0)
	record("fastflaky", true, 50)
	record("fastflaky", false, 0)

	got := tr.AvailableProviders(models.DataTypeQuotes)
	require.Len(t, got, 3)
	assert.Equal(t, "fastreliable", got[0])
	assert.Equal(t, "slowreliable", got[1])
	assert.Equal(t, "fastflaky", got[2])
}

func TestUnseenProviderRanksAsPerfect(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.RegisterProvider("veteran", models.DataTypeQuotes)
	tr.RegisterProvider("rookie", models.DataTypeQuotes)

	id := tr.RegisterAttempt("AAPL", models.DataTypeQuotes, "veteran", "job-1")
	tr.RecordSuccess(id, 120, 100)
	id = tr.RegisterAttempt("MSFT", models.DataTypeQuotes, "veteran", "job-1")
	tr.RecordFailure(id, "boom", models.ErrKindTransient)

	// rookie has no history, so it ranks with a perfect rate and zero latency
	got := tr.AvailableProviders(models.DataTypeQuotes)
	require.Len(t, got, 2)
	assert.Equal(t, "rookie", got[0])
}

func TestRetryCandidatesHonorCeiling(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.RegisterProvider("alpha", models.DataTypeNews)

	fail := func(entity string) {
		id := tr.RegisterAttempt(entity, models.DataTypeNews, "alpha", "job-1")
		tr.RecordFailure(id, "boom", models.ErrKindTransient)
	}

	fail("AAPL")
	clock.Advance(time.Minute)
	fail("MSFT")

	// oldest failure first
	assert.Equal(t, []string{"AAPL", "MSFT"}, tr.RetryCandidates(models.DataTypeNews))

	// two more failures push AAPL to the ceiling
	fail("AAPL")
	fail("AAPL")
	assert.Equal(t, []string{"MSFT"}, tr.RetryCandidates(models.DataTypeNews))
}

func TestSuccessClearsRetryState(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.RegisterProvider("alpha", models.DataTypeNews)

	id := tr.RegisterAttempt("AAPL", models.DataTypeNews, "alpha", "job-1")
	tr.RecordFailure(id, "boom", models.ErrKindTransient)
	require.Equal(t, []string{"AAPL"}, tr.RetryCandidates(models.DataTypeNews))

	id = tr.RegisterAttempt("AAPL", models.DataTypeNews, "alpha", "job-2")
	tr.RecordSuccess(id, 100, 2048)
	assert.Empty(t, tr.RetryCandidates(models.DataTypeNews))
}

func TestDoubleResolutionIgnored(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.RegisterProvider("alpha", models.DataTypeQuotes)

	id := tr.RegisterAttempt("AAPL", models.DataTypeQuotes, "alpha", "job-1")
	tr.RecordSuccess(id, 100, 10)
	tr.RecordFailure(id, "late failure", models.ErrKindTransient)

	attempts := tr.Attempts("job-1")
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptSuccess, attempts[0].Status)

	perf := tr.Performance("alpha", models.DataTypeQuotes)
	assert.Equal(t, 1.0, perf.SuccessRate)
	assert.Equal(t, 1, perf.Attempts)
}

func TestPerformanceWindowIsBounded(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)}
	tr := New(common.NewSilentLogger(), Config{PerfWindow: 5}, WithClock(clock.Now))
	tr.RegisterProvider("alpha", models.DataTypeQuotes)

	// five failures, then five successes; the window forgets the failures
	for i := 0; i < 5; i++ {
		id := tr.RegisterAttempt("AAPL", models.DataTypeQuotes, "alpha", "job-1")
		tr.RecordFailure(id, "boom", models.ErrKindTransient)
	}
	for i := 0; i < 5; i++ {
		id := tr.RegisterAttempt("AAPL", models.DataTypeQuotes, "alpha", "job-1")
		tr.RecordSuccess(id, 100, 10)
	}

	perf := tr.Performance("alpha", models.DataTypeQuotes)
	assert.Equal(t, 5, perf.Attempts)
	assert.Equal(t, 1.0, perf.SuccessRate)
}

func TestPruneDropsOnlyOldResolvedAttempts(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.RegisterProvider("alpha", models.DataTypeQuotes)

	oldID := tr.RegisterAttempt("AAPL", models.DataTypeQuotes, "alpha", "job-1")
	tr.RecordSuccess(oldID, 100, 10)
	pendingID := tr.RegisterAttempt("MSFT", models.DataTypeQuotes, "alpha", "job-1")

	clock.Advance(48 * time.Hour)
	freshID := tr.RegisterAttempt("GOOG", models.DataTypeQuotes, "alpha", "job-2")
	tr.RecordSuccess(freshID, 90, 10)

	removed := tr.Prune(24 * time.Hour)
	assert.Equal(t, 1, removed)

	remaining := tr.Attempts("")
	require.Len(t, remaining, 2)
	ids := []string{remaining[0].ID, remaining[1].ID}
	assert.Contains(t, ids, pendingID)
	assert.Contains(t, ids, freshID)
}
