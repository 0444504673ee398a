package tiingo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/marketsync/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", WithBaseURL(server.URL), WithRateLimit(1000))
}

func TestGetQuoteParsesIEXSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/iex/AAPL", r.URL.Path)
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`[{
			"ticker": "AAPL",
			"last": 190.25,
			"open": 189.5,
			"high": 191.0,
			"low": 188.9,
			"prevClose": 188.0,
			"volume": 54321000,
			"timestamp": "2024-05-01T20:00:00Z"
		}]`))
	})

	quote, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, quote)

	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 190.25, quote.Price)
	require.NotNil(t, quote.Change)
	assert.InDelta(t, 2.25, *quote.Change, 1e-9)
	require.NotNil(t, quote.ChangePct)
	assert.InDelta(t, 2.25/188.0*100, *quote.ChangePct, 1e-9)
	assert.Equal(t, "tiingo", quote.Provider)
}

func TestGetQuoteEmptyPayloadReturnsNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	quote, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Nil(t, quote)
}

func TestGetHistoricalMapsDailyPrices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tiingo/daily/AAPL/prices", r.URL.Path)
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("startDate"))
		w.Write([]byte(`[
			{"date": "2024-01-02T00:00:00Z", "open": 187.1, "high": 188.4, "low": 183.9, "close": 185.6, "adjClose": 185.3, "volume": 82488700, "divCash": 0},
			{"date": "2024-01-03T00:00:00Z", "open": 184.2, "high": 185.9, "low": 183.4, "close": 184.3, "adjClose": 184.0, "volume": 58414500, "divCash": 0}
		]`))
	})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	bars, err := c.GetHistorical(context.Background(), "AAPL", from, to)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, 185.6, bars[0].Close)
	require.NotNil(t, bars[0].AdjClose)
	assert.Equal(t, 185.3, *bars[0].AdjClose)
	assert.Equal(t, int64(58414500), bars[1].Volume)
}

func TestGetDividendsExtractsCashEvents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"date": "2024-02-08T00:00:00Z", "close": 188.0, "divCash": 0},
			{"date": "2024-02-09T00:00:00Z", "close": 188.5, "divCash": 0.24},
			{"date": "2024-05-10T00:00:00Z", "close": 183.0, "divCash": 0.25}
		]`))
	})

	dividends, err := c.GetDividends(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, dividends, 2)

	assert.Equal(t, 0.24, dividends[0].Amount)
	assert.Equal(t, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), dividends[0].ExDate)
	assert.Equal(t, "USD", dividends[0].Currency)
	assert.Equal(t, "tiingo", dividends[0].Provider)
}

func TestHTTP429BecomesRateLimitError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindRateLimit, models.Classify(err))
}

func TestHTTP403BecomesBlacklistError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.GetFundamentals(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBlacklist, models.Classify(err))
}

func TestGetFundamentalsReturnsLatestRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tiingo/fundamentals/AAPL/daily", r.URL.Path)
		w.Write([]byte(`[
			{"marketCap": 3000000000000, "peRatio": 29.5},
			{"marketCap": 2990000000000, "peRatio": 29.4}
		]`))
	})

	raw, err := c.GetFundamentals(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, float64(3000000000000), raw["marketCap"])
	assert.Equal(t, 29.5, raw["peRatio"])
}
