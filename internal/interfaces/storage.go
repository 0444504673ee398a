package interfaces

import (
	"context"

	"github.com/bobmcallan/marketsync/internal/models"
)

// StorageGateway persists normalized records. Every upsert is idempotent on
// the record's natural key: calling twice with identical data must not create
// a duplicate row and must not error. Each method returns the stored record's
// identifier.
type StorageGateway interface {
	UpsertQuote(ctx context.Context, rec models.Quote) (string, error)
	UpsertPriceBar(ctx context.Context, rec models.PriceBar) (string, error)
	UpsertOptionContract(ctx context.Context, rec models.OptionContract) (string, error)
	UpsertDividend(ctx context.Context, rec models.DividendRecord) (string, error)
	UpsertEarnings(ctx context.Context, rec models.EarningsRecord) (string, error)
	UpsertEarningsCalendar(ctx context.Context, rec models.EarningsCalendarEntry) (string, error)
	UpsertTranscript(ctx context.Context, rec models.EarningsTranscript) (string, error)
	UpsertNews(ctx context.Context, rec models.NewsArticle) (string, error)
	UpsertEconomicEvent(ctx context.Context, rec models.EconomicEvent) (string, error)
	UpsertEconomicIndicator(ctx context.Context, rec models.EconomicIndicator) (string, error)
	UpsertFundamentals(ctx context.Context, rec models.FundamentalsRecord) (string, error)

	Close() error
}
