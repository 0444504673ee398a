// Package tiingo provides a client for the Tiingo API
package tiingo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

const (
	DefaultBaseURL   = "https://api.tiingo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	providerName = "tiingo"
)

// Client implements the Tiingo provider capabilities.
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

// NewClient creates a new Tiingo client
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
	_ interfaces.QuoteProvider        = (*Client)(nil)
	_ interfaces.HistoricalProvider   = (*Client)(nil)
	_ interfaces.DividendProvider     = (*Client)(nil)
	_ interfaces.NewsProvider         = (*Client)(nil)
	_ interfaces.FundamentalsProvider = (*Client)(nil)
)

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("path", path).Msg("Tiingo API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return models.NewFetchError(models.ErrKindRateLimit, providerName, "request rate exceeded", nil)
	case http.StatusPaymentRequired, http.StatusForbidden:
		return models.NewFetchError(models.ErrKindBlacklist, providerName, "endpoint not included in current plan", nil)
	default:
		body, _ := io.ReadAll(resp.Body)
		return models.NewFetchError(models.ErrKindTransient, providerName,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetQuote retrieves the IEX snapshot for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var payload []struct {
		Ticker    string    `json:"ticker"`
		Last      float64   `json:"last"`
		Open      float64   `json:"open"`
		High      float64   `json:"high"`
		Low       float64   `json:"low"`
		PrevClose float64   `json:"prevClose"`
		Volume    int64     `json:"volume"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := c.get(ctx, "/iex/"+url.PathEscape(symbol), nil, &payload); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, nil
	}

	snap := payload[0]
	quote := &models.Quote{
		Symbol:    symbol,
		Price:     snap.Last,
		Timestamp: snap.Timestamp,
		Provider:  providerName,
	}
	if snap.Open != 0 {
		quote.Open = &snap.Open
	}
	if snap.High != 0 {
		quote.High = &snap.High
	}
	if snap.Low != 0 {
		quote.Low = &snap.Low
	}
	if snap.PrevClose != 0 {
		quote.PreviousClose = &snap.PrevClose
		change := snap.Last - snap.PrevClose
		changePct := change / snap.PrevClose * 100
		quote.Change = &change
		quote.ChangePct = &changePct
	}
	if snap.Volume != 0 {
		quote.Volume = &snap.Volume
	}
	return quote, nil
}

type dailyPrice struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjClose"`
	Volume   int64     `json:"volume"`
	DivCash  float64   `json:"divCash"`
}

func (c *Client) dailyPrices(ctx context.Context, symbol string, from, to time.Time) ([]dailyPrice, error) {
	params := url.Values{}
	params.Set("startDate", from.Format("2006-01-02"))
	params.Set("endDate", to.Format("2006-01-02"))

	var payload []dailyPrice
	if err := c.get(ctx, "/tiingo/daily/"+url.PathEscape(symbol)+"/prices", params, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// GetHistorical retrieves daily OHLCV bars for the window.
func (c *Client) GetHistorical(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	prices, err := c.dailyPrices(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(prices))
	for _, p := range prices {
		p := p
		bars = append(bars, models.PriceBar{
			Symbol:   symbol,
			Date:     p.Date,
			Open:     p.Open,
			High:     p.High,
			Low:      p.Low,
			Close:    p.Close,
			AdjClose: &p.AdjClose,
			Volume:   p.Volume,
			Provider: providerName,
		})
	}
	return bars, nil
}

// GetDividends extracts cash dividend events from the daily price series,
// where Tiingo reports them on the ex-dividend date.
func (c *Client) GetDividends(ctx context.Context, symbol string) ([]models.DividendRecord, error) {
	to := time.Now().UTC()
	from := to.AddDate(-5, 0, 0)

	prices, err := c.dailyPrices(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	var dividends []models.DividendRecord
	for _, p := range prices {
		if p.DivCash <= 0 {
			continue
		}
		dividends = append(dividends, models.DividendRecord{
			Symbol:   symbol,
			ExDate:   p.Date,
			Amount:   p.DivCash,
			Currency: "USD",
			Provider: providerName,
		})
	}
	return dividends, nil
}

// GetNews retrieves recent articles for a symbol.
func (c *Client) GetNews(ctx context.Context, symbol string) ([]models.NewsArticle, error) {
	params := url.Values{}
	params.Set("tickers", symbol)

	var payload []struct {
		Title         string    `json:"title"`
		URL           string    `json:"url"`
		Source        string    `json:"source"`
		Description   string    `json:"description"`
		PublishedDate time.Time `json:"publishedDate"`
	}
	if err := c.get(ctx, "/tiingo/news", params, &payload); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(payload))
	for _, item := range payload {
		articles = append(articles, models.NewsArticle{
			Symbol:      symbol,
			Title:       item.Title,
			URL:         item.URL,
			Source:      item.Source,
			PublishedAt: item.PublishedDate,
			Summary:     item.Description,
			Provider:    providerName,
		})
	}
	return articles, nil
}

// GetFundamentals retrieves the latest daily fundamentals row with Tiingo's
// native field names; the normalization table maps them onto canonical
// fields.
func (c *Client) GetFundamentals(ctx context.Context, symbol string) (map[string]any, error) {
	var payload []map[string]any
	if err := c.get(ctx, "/tiingo/fundamentals/"+url.PathEscape(symbol)+"/daily", nil, &payload); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, nil
	}
	// rows are most recent first
	return payload[0], nil
}
