package models

import (
	"fmt"
	"strings"
	"time"
)

// Normalized records are built by merging one or more provider responses.
// Every record carries a natural key used for in-batch deduplication and for
// the idempotent upsert at storage time, plus a Provider attribution string.
// Optional numeric fields are pointers so the field-level merge can tell
// "absent" from a legitimate zero.

// Quote is a normalized real-time quote snapshot. Natural key: symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Open          *float64  `json:"open,omitempty"`
	High          *float64  `json:"high,omitempty"`
	Low           *float64  `json:"low,omitempty"`
	PreviousClose *float64  `json:"previous_close,omitempty"`
	Change        *float64  `json:"change,omitempty"`
	ChangePct     *float64  `json:"change_pct,omitempty"`
	Volume        *int64    `json:"volume,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Provider      string    `json:"provider,omitempty"`
}

func (q Quote) Key() string { return q.Symbol }

// PriceBar is one period of historical OHLCV data. Natural key: symbol+date.
type PriceBar struct {
	Symbol   string    `json:"symbol"`
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose *float64  `json:"adjusted_close,omitempty"`
	Volume   int64     `json:"volume"`
	Provider string    `json:"provider,omitempty"`
}

func (b PriceBar) Key() string {
	return fmt.Sprintf("%s:%s", b.Symbol, b.Date.Format("2006-01-02"))
}

// OptionContract is one listed option. Natural key: symbol+expiration+strike+type.
type OptionContract struct {
	Symbol       string    `json:"symbol"`
	Expiration   time.Time `json:"expiration"`
	Strike       float64   `json:"strike"`
	Type         string    `json:"type"` // "call" or "put"
	Bid          *float64  `json:"bid,omitempty"`
	Ask          *float64  `json:"ask,omitempty"`
	Last         *float64  `json:"last,omitempty"`
	Volume       *int64    `json:"volume,omitempty"`
	OpenInterest *int64    `json:"open_interest,omitempty"`
	ImpliedVol   *float64  `json:"implied_volatility,omitempty"`
	Delta        *float64  `json:"delta,omitempty"`
	Gamma        *float64  `json:"gamma,omitempty"`
	Theta        *float64  `json:"theta,omitempty"`
	Vega         *float64  `json:"vega,omitempty"`
	Provider     string    `json:"provider,omitempty"`
}

func (c OptionContract) Key() string {
	return fmt.Sprintf("%s:%s:%.2f:%s", c.Symbol, c.Expiration.Format("2006-01-02"), c.Strike, c.Type)
}

// OptionsChain groups contracts for one underlying symbol.
type OptionsChain struct {
	Symbol   string           `json:"symbol"`
	Calls    []OptionContract `json:"calls"`
	Puts     []OptionContract `json:"puts"`
	Provider string           `json:"provider,omitempty"`
}

// DividendRecord is one dividend event. Natural key: symbol+ex_dividend_date.
type DividendRecord struct {
	Symbol          string     `json:"symbol"`
	ExDate          time.Time  `json:"ex_dividend_date"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency,omitempty"`
	PayDate         *time.Time `json:"pay_date,omitempty"`
	RecordDate      *time.Time `json:"record_date,omitempty"`
	DeclarationDate *time.Time `json:"declaration_date,omitempty"`
	Frequency       *int       `json:"frequency,omitempty"` // payments per year
	Provider        string     `json:"provider,omitempty"`
}

func (d DividendRecord) Key() string {
	return fmt.Sprintf("%s:%s", d.Symbol, d.ExDate.Format("2006-01-02"))
}

// EarningsRecord is one reported fiscal period. Natural key: symbol+fiscal_period.
type EarningsRecord struct {
	Symbol          string     `json:"symbol"`
	FiscalPeriod    string     `json:"fiscal_period"` // e.g. "2024Q1"
	ReportDate      *time.Time `json:"report_date,omitempty"`
	EPSActual       *float64   `json:"eps_actual,omitempty"`
	EPSEstimate     *float64   `json:"eps_estimate,omitempty"`
	RevenueActual   *float64   `json:"revenue_actual,omitempty"`
	RevenueEstimate *float64   `json:"revenue_estimate,omitempty"`
	SurprisePct     *float64   `json:"surprise_pct,omitempty"`
	Provider        string     `json:"provider,omitempty"`
}

func (e EarningsRecord) Key() string {
	return fmt.Sprintf("%s:%s", e.Symbol, e.FiscalPeriod)
}

// EarningsCalendarEntry is an upcoming report. Natural key: symbol+report_date.
type EarningsCalendarEntry struct {
	Symbol       string    `json:"symbol"`
	ReportDate   time.Time `json:"report_date"`
	FiscalPeriod string    `json:"fiscal_period,omitempty"`
	Session      string    `json:"session,omitempty"` // "bmo" (before open) or "amc" (after close)
	EPSEstimate  *float64  `json:"eps_estimate,omitempty"`
	Provider     string    `json:"provider,omitempty"`
}

func (e EarningsCalendarEntry) Key() string {
	return fmt.Sprintf("%s:%s", e.Symbol, e.ReportDate.Format("2006-01-02"))
}

// EarningsTranscript is a call transcript. Natural key: symbol+fiscal_period.
type EarningsTranscript struct {
	Symbol       string     `json:"symbol"`
	FiscalPeriod string     `json:"fiscal_period"`
	CallDate     *time.Time `json:"call_date,omitempty"`
	Text         string     `json:"text"`
	Provider     string     `json:"provider,omitempty"`
}

func (t EarningsTranscript) Key() string {
	return fmt.Sprintf("%s:%s", t.Symbol, t.FiscalPeriod)
}

// NewsArticle is one news item. Natural key: url, falling back to
// symbol+published_at+title when a provider omits the link.
type NewsArticle struct {
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
	Sentiment   string    `json:"sentiment,omitempty"` // positive, negative, neutral
	Provider    string    `json:"provider,omitempty"`
}

func (n NewsArticle) Key() string {
	if n.URL != "" {
		return n.URL
	}
	return fmt.Sprintf("%s:%s:%s", n.Symbol, n.PublishedAt.Format(time.RFC3339), n.Title)
}

// EconomicEvent is a scheduled release. Natural key: event_name+timestamp(+country).
type EconomicEvent struct {
	EventName   string    `json:"event_name"`
	Country     string    `json:"country,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Actual      *float64  `json:"actual,omitempty"`
	Forecast    *float64  `json:"forecast,omitempty"`
	Previous    *float64  `json:"previous,omitempty"`
	Importance  string    `json:"importance,omitempty"` // low, medium, high
	Preliminary bool      `json:"preliminary,omitempty"`
	Provider    string    `json:"provider,omitempty"`
}

func (e EconomicEvent) Key() string {
	return fmt.Sprintf("%s:%s:%s", e.EventName, e.Timestamp.Format(time.RFC3339), e.Country)
}

// EconomicIndicator is one indicator reading. Natural key: indicator_code+period_date.
type EconomicIndicator struct {
	IndicatorCode string    `json:"indicator_code"`
	Country       string    `json:"country,omitempty"`
	PeriodDate    time.Time `json:"period_date"`
	Value         float64   `json:"value"`
	Unit          string    `json:"unit,omitempty"`
	Preliminary   bool      `json:"preliminary,omitempty"`
	Provider      string    `json:"provider,omitempty"`
}

func (i EconomicIndicator) Key() string {
	return fmt.Sprintf("%s:%s", i.IndicatorCode, i.PeriodDate.Format("2006-01-02"))
}

// FundamentalsRecord is the merged fundamentals snapshot for one symbol.
// Natural key: symbol. Numeric fields are pointers because providers populate
// different subsets and the merge must know which fields are still unset.
type FundamentalsRecord struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`

	MarketCap         *float64 `json:"market_cap,omitempty"`
	Revenue           *float64 `json:"revenue,omitempty"`
	GrossProfit       *float64 `json:"gross_profit,omitempty"`
	OperatingIncome   *float64 `json:"operating_income,omitempty"`
	NetIncome         *float64 `json:"net_income,omitempty"`
	EBITDA            *float64 `json:"ebitda,omitempty"`
	TotalDebt         *float64 `json:"total_debt,omitempty"`
	Cash              *float64 `json:"cash,omitempty"`
	TotalEquity       *float64 `json:"total_equity,omitempty"`
	FreeCashFlow      *float64 `json:"free_cash_flow,omitempty"`
	SharesOutstanding *float64 `json:"shares_outstanding,omitempty"`
	EPS               *float64 `json:"eps,omitempty"`
	PERatio           *float64 `json:"pe_ratio,omitempty"`
	DividendYield     *float64 `json:"dividend_yield,omitempty"`
	Beta              *float64 `json:"beta,omitempty"`

	GrossMargin     *float64 `json:"gross_margin,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty"`

	// Derived fields, computed from merged raw fields when inputs are present
	NetMargin       *float64 `json:"net_margin,omitempty"`
	EBITDAMargin    *float64 `json:"ebitda_margin,omitempty"`
	FCFMargin       *float64 `json:"fcf_margin,omitempty"`
	EnterpriseValue *float64 `json:"enterprise_value,omitempty"`
	ROIC            *float64 `json:"roic,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
	Provider    string    `json:"provider,omitempty"`
}

func (f FundamentalsRecord) Key() string { return f.Symbol }

// JoinProviders builds the "+"-joined composite attribution string from the
// set of providers that contributed at least one field, preserving order and
// dropping duplicates and blanks.
func JoinProviders(names []string) string {
	seen := make(map[string]struct{}, len(names))
	ordered := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		ordered = append(ordered, n)
	}
	return strings.Join(ordered, "+")
}
