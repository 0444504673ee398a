// Package alphavantage provides a client for the Alpha Vantage API
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

const (
	DefaultBaseURL   = "https://www.alphavantage.co/query"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	providerName = "alphavantage"
)

// Client implements the Alpha Vantage provider capabilities.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Name() string { return providerName }

var (
	_ interfaces.QuoteProvider             = (*Client)(nil)
	_ interfaces.EarningsProvider          = (*Client)(nil)
	_ interfaces.NewsProvider              = (*Client)(nil)
	_ interfaces.EconomicIndicatorProvider = (*Client)(nil)
	_ interfaces.FundamentalsProvider      = (*Client)(nil)
)

// get performs a rate-limited GET and decodes the body into result. Alpha
// Vantage signals rate limiting with a 200 response carrying a "Note" or
// "Information" field, so the body is inspected before decoding.
func (c *Client) get(ctx context.Context, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("function", params.Get("function")).Msg("Alpha Vantage API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return models.NewFetchError(models.ErrKindRateLimit, providerName, "request rate exceeded", nil)
	case http.StatusPaymentRequired, http.StatusForbidden:
		return models.NewFetchError(models.ErrKindBlacklist, providerName, "endpoint requires a higher subscription tier", nil)
	default:
		return models.NewFetchError(models.ErrKindTransient, providerName,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		if _, ok := envelope["Note"]; ok {
			return models.NewFetchError(models.ErrKindRateLimit, providerName, "request rate exceeded", nil)
		}
		if raw, ok := envelope["Information"]; ok && strings.Contains(strings.ToLower(string(raw)), "premium") {
			return models.NewFetchError(models.ErrKindBlacklist, providerName, "endpoint requires a premium plan", nil)
		}
		if raw, ok := envelope["Error Message"]; ok {
			return models.NewFetchError(models.ErrKindValidation, providerName, strings.Trim(string(raw), `"`), nil)
		}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseFloat tolerates the "None" and empty strings Alpha Vantage emits.
func parseFloat(s string) *float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" || s == "None" || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// GetQuote retrieves the GLOBAL_QUOTE snapshot.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var payload struct {
		Quote map[string]string `json:"Global Quote"`
	}
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Quote) == 0 {
		return nil, nil
	}

	price := parseFloat(payload.Quote["05. price"])
	if price == nil {
		return nil, fmt.Errorf("quote for %s has no price", symbol)
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Price:         *price,
		Open:          parseFloat(payload.Quote["02. open"]),
		High:          parseFloat(payload.Quote["03. high"]),
		Low:           parseFloat(payload.Quote["04. low"]),
		PreviousClose: parseFloat(payload.Quote["08. previous close"]),
		Change:        parseFloat(payload.Quote["09. change"]),
		ChangePct:     parseFloat(payload.Quote["10. change percent"]),
		Timestamp:     time.Now().UTC(),
		Provider:      providerName,
	}
	if v := parseFloat(payload.Quote["06. volume"]); v != nil {
		vol := int64(*v)
		quote.Volume = &vol
	}
	return quote, nil
}

// GetEarnings retrieves the most recent reported quarter from EARNINGS.
func (c *Client) GetEarnings(ctx context.Context, symbol string) (*models.EarningsRecord, error) {
	var payload struct {
		Quarterly []struct {
			FiscalDateEnding   string `json:"fiscalDateEnding"`
			ReportedDate       string `json:"reportedDate"`
			ReportedEPS        string `json:"reportedEPS"`
			EstimatedEPS       string `json:"estimatedEPS"`
			SurprisePercentage string `json:"surprisePercentage"`
		} `json:"quarterlyEarnings"`
	}
	params := url.Values{}
	params.Set("function", "EARNINGS")
	params.Set("symbol", symbol)
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Quarterly) == 0 {
		return nil, nil
	}

	latest := payload.Quarterly[0]
	rec := &models.EarningsRecord{
		Symbol:       symbol,
		FiscalPeriod: fiscalPeriod(latest.FiscalDateEnding),
		EPSActual:    parseFloat(latest.ReportedEPS),
		EPSEstimate:  parseFloat(latest.EstimatedEPS),
		SurprisePct:  parseFloat(latest.SurprisePercentage),
		Provider:     providerName,
	}
	if t, err := time.Parse("2006-01-02", latest.ReportedDate); err == nil {
		rec.ReportDate = &t
	}
	return rec, nil
}

// fiscalPeriod turns a fiscal date ending like 2024-03-31 into "2024Q1".
func fiscalPeriod(dateEnding string) string {
	t, err := time.Parse("2006-01-02", dateEnding)
	if err != nil {
		return dateEnding
	}
	return fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())-1)/3+1)
}

// GetNews retrieves articles from NEWS_SENTIMENT.
func (c *Client) GetNews(ctx context.Context, symbol string) ([]models.NewsArticle, error) {
	var payload struct {
		Feed []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			TimePublished string `json:"time_published"`
			Summary       string `json:"summary"`
			Source        string `json:"source"`
			Sentiment     string `json:"overall_sentiment_label"`
		} `json:"feed"`
	}
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("tickers", symbol)
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(payload.Feed))
	for _, item := range payload.Feed {
		published, err := time.Parse("20060102T150405", item.TimePublished)
		if err != nil {
			continue
		}
		articles = append(articles, models.NewsArticle{
			Symbol:      symbol,
			Title:       item.Title,
			URL:         item.URL,
			Source:      item.Source,
			PublishedAt: published,
			Summary:     item.Summary,
			Sentiment:   strings.ToLower(item.Sentiment),
			Provider:    providerName,
		})
	}
	return articles, nil
}

// indicatorFunctions maps canonical indicator codes to Alpha Vantage
// functions.
var indicatorFunctions = map[string]string{
	"CPI":          "CPI",
	"REAL_GDP":     "REAL_GDP",
	"UNEMPLOYMENT": "UNEMPLOYMENT",
	"FEDFUNDS":     "FEDERAL_FUNDS_RATE",
}

// GetEconomicIndicators retrieves the latest reading for each supported US
// indicator.
func (c *Client) GetEconomicIndicators(ctx context.Context) ([]models.EconomicIndicator, error) {
	var readings []models.EconomicIndicator

	for code, function := range indicatorFunctions {
		var payload struct {
			Unit string `json:"unit"`
			Data []struct {
				Date  string `json:"date"`
				Value string `json:"value"`
			} `json:"data"`
		}
		params := url.Values{}
		params.Set("function", function)
		if err := c.get(ctx, params, &payload); err != nil {
			// partial indicator coverage is still useful
			c.logger.Warn().Err(err).Str("indicator", code).Msg("Indicator fetch failed")
			continue
		}
		if len(payload.Data) == 0 {
			continue
		}

		latest := payload.Data[0]
		date, err := time.Parse("2006-01-02", latest.Date)
		if err != nil {
			continue
		}
		value := parseFloat(latest.Value)
		if value == nil {
			continue
		}
		readings = append(readings, models.EconomicIndicator{
			IndicatorCode: code,
			Country:       "US",
			PeriodDate:    date,
			Value:         *value,
			Unit:          payload.Unit,
			Provider:      providerName,
		})
	}
	return readings, nil
}

// GetFundamentals retrieves the OVERVIEW payload with its native field names;
// the normalization table maps them onto canonical fields.
func (c *Client) GetFundamentals(ctx context.Context, symbol string) (map[string]any, error) {
	var raw map[string]any
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)
	if err := c.get(ctx, params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}
