package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNaturalKeys(t *testing.T) {
	day := time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "AAPL", Quote{Symbol: "AAPL"}.Key())
	assert.Equal(t, "AAPL:2024-02-09", PriceBar{Symbol: "AAPL", Date: day}.Key())
	assert.Equal(t, "AAPL:2024-02-09", DividendRecord{Symbol: "AAPL", ExDate: day}.Key())
	assert.Equal(t, "AAPL:2024-06-21:182.50:call",
		OptionContract{Symbol: "AAPL", Expiration: time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC), Strike: 182.5, Type: "call"}.Key())
	assert.Equal(t, "AAPL:2024Q1", EarningsRecord{Symbol: "AAPL", FiscalPeriod: "2024Q1"}.Key())
}

func TestNewsArticleKeyFallsBackWithoutURL(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	withURL := NewsArticle{Symbol: "AAPL", Title: "t", URL: "https://example.com/a", PublishedAt: published}
	assert.Equal(t, "https://example.com/a", withURL.Key())

	withoutURL := NewsArticle{Symbol: "AAPL", Title: "Earnings beat", PublishedAt: published}
	assert.Equal(t, fmt.Sprintf("AAPL:%s:Earnings beat", published.Format(time.RFC3339)), withoutURL.Key())
}

func TestJoinProviders(t *testing.T) {
	assert.Equal(t, "p1+p2", JoinProviders([]string{"p1", "p2"}))
	assert.Equal(t, "p1+p2", JoinProviders([]string{"p1", "p2", "p1", ""}))
	assert.Equal(t, "", JoinProviders(nil))
}

func TestClassifyPrefersTypedErrors(t *testing.T) {
	typed := NewFetchError(ErrKindBlacklist, "p1", "requires premium", nil)
	assert.Equal(t, ErrKindBlacklist, Classify(typed))

	wrapped := fmt.Errorf("fetch failed: %w", NewFetchError(ErrKindRateLimit, "p1", "slow down", nil))
	assert.Equal(t, ErrKindRateLimit, Classify(wrapped))
}

func TestClassifyTextHeuristics(t *testing.T) {
	assert.Equal(t, ErrKindRateLimit, Classify(errors.New("HTTP 429 Too Many Requests")))
	assert.Equal(t, ErrKindRateLimit, Classify(errors.New("request was throttled")))
	assert.Equal(t, ErrKindBlacklist, Classify(errors.New("this endpoint requires a paid plan subscription")))
	assert.Equal(t, ErrKindTransient, Classify(errors.New("connection reset by peer")))
	assert.Equal(t, ErrKindTransient, Classify(nil))
}
