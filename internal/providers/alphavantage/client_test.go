package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

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

func TestGetQuoteParsesGlobalQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{"Global Quote": {
			"01. symbol": "AAPL",
			"02. open": "189.50",
			"05. price": "190.25",
			"06. volume": "54321000",
			"08. previous close": "188.00",
			"09. change": "2.25",
			"10. change percent": "1.1968%"
		}}`))
	})

	quote, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, quote)

	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 190.25, quote.Price)
	require.NotNil(t, quote.Open)
	assert.Equal(t, 189.5, *quote.Open)
	require.NotNil(t, quote.Volume)
	assert.Equal(t, int64(54321000), *quote.Volume)
	require.NotNil(t, quote.ChangePct)
	assert.Equal(t, 1.1968, *quote.ChangePct)
	assert.Equal(t, "alphavantage", quote.Provider)
}

func TestRateLimitNoteBecomesTypedError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	})

	_, err := c.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindRateLimit, models.Classify(err))
}

func TestPremiumInformationBecomesBlacklistError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Information": "This is a premium endpoint."}`))
	})

	_, err := c.GetFundamentals(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBlacklist, models.Classify(err))
}

func TestHTTP429BecomesRateLimitError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindRateLimit, models.Classify(err))
}

func TestGetEarningsDerivesFiscalPeriod(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quarterlyEarnings": [{
			"fiscalDateEnding": "2024-03-31",
			"reportedDate": "2024-05-02",
			"reportedEPS": "1.53",
			"estimatedEPS": "1.50",
			"surprisePercentage": "2.0"
		}]}`))
	})

	rec, err := c.GetEarnings(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "2024Q1", rec.FiscalPeriod)
	require.NotNil(t, rec.EPSActual)
	assert.Equal(t, 1.53, *rec.EPSActual)
	require.NotNil(t, rec.ReportDate)
}

func TestFiscalPeriod(t *testing.T) {
	assert.Equal(t, "2024Q1", fiscalPeriod("2024-03-31"))
	assert.Equal(t, "2024Q2", fiscalPeriod("2024-06-30"))
	assert.Equal(t, "2023Q4", fiscalPeriod("2023-12-31"))
	assert.Equal(t, "garbage", fiscalPeriod("garbage"))
}

func TestGetFundamentalsReturnsNativeFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		w.Write([]byte(`{"Symbol": "AAPL", "Name": "Apple Inc", "MarketCapitalization": "3000000000000"}`))
	})

	raw, err := c.GetFundamentals(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", raw["Name"])
	assert.Equal(t, "3000000000000", raw["MarketCapitalization"])
}
