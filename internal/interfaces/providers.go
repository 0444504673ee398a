// Package interfaces defines service contracts for marketsync
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/marketsync/internal/models"
)

// ErrUnsupported is returned when a provider is asked for a data type it does
// not serve. The fallback manager skips the provider without recording an
// attempt.
var ErrUnsupported = errors.New("provider does not support this data type")

// Provider is the minimal contract every data source implements. Capabilities
// are expressed as separate interfaces; a provider implements only the subset
// of methods it supports and is skipped for the rest.
type Provider interface {
	Name() string
}

// QuoteProvider serves real-time quote snapshots.
type QuoteProvider interface {
	Provider
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// OptionsProvider serves options chains.
type OptionsProvider interface {
	Provider
	GetOptionsChain(ctx context.Context, symbol string) (*models.OptionsChain, error)
}

// HistoricalProvider serves historical price bars.
type HistoricalProvider interface {
	Provider
	GetHistorical(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
}

// DividendProvider serves dividend history.
type DividendProvider interface {
	Provider
	GetDividends(ctx context.Context, symbol string) ([]models.DividendRecord, error)
}

// EarningsProvider serves the most recent reported fiscal period.
type EarningsProvider interface {
	Provider
	GetEarnings(ctx context.Context, symbol string) (*models.EarningsRecord, error)
}

// EarningsCalendarProvider serves upcoming report dates for a window.
type EarningsCalendarProvider interface {
	Provider
	GetEarningsCalendar(ctx context.Context, from, to time.Time) ([]models.EarningsCalendarEntry, error)
}

// TranscriptProvider serves earnings call transcripts.
type TranscriptProvider interface {
	Provider
	GetEarningsTranscripts(ctx context.Context, symbol string) ([]models.EarningsTranscript, error)
}

// NewsProvider serves news articles for a symbol.
type NewsProvider interface {
	Provider
	GetNews(ctx context.Context, symbol string) ([]models.NewsArticle, error)
}

// EconomicEventProvider serves scheduled economic releases for a window.
type EconomicEventProvider interface {
	Provider
	GetEconomicEvents(ctx context.Context, from, to time.Time) ([]models.EconomicEvent, error)
}

// EconomicIndicatorProvider serves the provider's current indicator set.
type EconomicIndicatorProvider interface {
	Provider
	GetEconomicIndicators(ctx context.Context) ([]models.EconomicIndicator, error)
}

// FundamentalsProvider serves provider-native fundamentals. The payload keeps
// the provider's own field names; the normalization table maps them onto the
// canonical FundamentalsRecord fields.
type FundamentalsProvider interface {
	Provider
	GetFundamentals(ctx context.Context, symbol string) (map[string]any, error)
}

// Supports reports whether p can serve the given data type.
func Supports(p Provider, dt models.DataType) bool {
	switch dt {
	case models.DataTypeQuotes:
		_, ok := p.(QuoteProvider)
		return ok
	case models.DataTypeOptionsChain:
		_, ok := p.(OptionsProvider)
		return ok
	case models.DataTypeHistoricalPrices:
		_, ok := p.(HistoricalProvider)
		return ok
	case models.DataTypeDividends:
		_, ok := p.(DividendProvider)
		return ok
	case models.DataTypeEarnings:
		_, ok := p.(EarningsProvider)
		return ok
	case models.DataTypeEarningsCalendar:
		_, ok := p.(EarningsCalendarProvider)
		return ok
	case models.DataTypeEarningsTranscript:
		_, ok := p.(TranscriptProvider)
		return ok
	case models.DataTypeNews:
		_, ok := p.(NewsProvider)
		return ok
	case models.DataTypeEconomicEvents:
		_, ok := p.(EconomicEventProvider)
		return ok
	case models.DataTypeEconomicIndicators:
		_, ok := p.(EconomicIndicatorProvider)
		return ok
	case models.DataTypeFundamentals:
		_, ok := p.(FundamentalsProvider)
		return ok
	default:
		return false
	}
}
