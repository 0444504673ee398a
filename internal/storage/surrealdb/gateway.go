// Package surrealdb provides the SurrealDB StorageGateway. Records are
// upserted with natural-key record IDs, so repeating a store cycle rewrites
// the same rows instead of duplicating them.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

const upsertRetries = 3

// Gateway is the SurrealDB-backed StorageGateway.
type Gateway struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewGateway connects, signs in, and selects the configured namespace and
// database.
func NewGateway(cfg common.StorageConfig, logger *common.Logger) (*Gateway, error) {
	ctx := context.Background()

	db, err := surrealdb.New(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	logger.Info().
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("Connected to SurrealDB")

	return &Gateway{db: db, logger: logger}, nil
}

var _ interfaces.StorageGateway = (*Gateway)(nil)

// upsert writes data under table:key, retrying transient query failures.
func (g *Gateway) upsert(ctx context.Context, table, key string, data any) (string, error) {
	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID(table, key),
		"data": data,
	}

	var lastErr error
	for attempt := 1; attempt <= upsertRetries; attempt++ {
		_, err := surrealdb.Query[any](ctx, g.db, sql, vars)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to upsert %s:%s after retries: %w", table, key, lastErr)
}

func (g *Gateway) UpsertQuote(ctx context.Context, rec models.Quote) (string, error) {
	return g.upsert(ctx, "quotes", rec.Key(), rec)
}

func (g *Gateway) UpsertPriceBar(ctx context.Context, rec models.PriceBar) (string, error) {
	return g.upsert(ctx, "price_bars", rec.Key(), rec)
}

func (g *Gateway) UpsertOptionContract(ctx context.Context, rec models.OptionContract) (string, error) {
	return g.upsert(ctx, "option_contracts", rec.Key(), rec)
}

func (g *Gateway) UpsertDividend(ctx context.Context, rec models.DividendRecord) (string, error) {
	return g.upsert(ctx, "dividends", rec.Key(), rec)
}

func (g *Gateway) UpsertEarnings(ctx context.Context, rec models.EarningsRecord) (string, error) {
	return g.upsert(ctx, "earnings", rec.Key(), rec)
}

func (g *Gateway) UpsertEarningsCalendar(ctx context.Context, rec models.EarningsCalendarEntry) (string, error) {
	return g.upsert(ctx, "earnings_calendar", rec.Key(), rec)
}

func (g *Gateway) UpsertTranscript(ctx context.Context, rec models.EarningsTranscript) (string, error) {
	return g.upsert(ctx, "transcripts", rec.Key(), rec)
}

func (g *Gateway) UpsertNews(ctx context.Context, rec models.NewsArticle) (string, error) {
	return g.upsert(ctx, "news", rec.Key(), rec)
}

func (g *Gateway) UpsertEconomicEvent(ctx context.Context, rec models.EconomicEvent) (string, error) {
	return g.upsert(ctx, "economic_events", rec.Key(), rec)
}

func (g *Gateway) UpsertEconomicIndicator(ctx context.Context, rec models.EconomicIndicator) (string, error) {
	return g.upsert(ctx, "economic_indicators", rec.Key(), rec)
}

func (g *Gateway) UpsertFundamentals(ctx context.Context, rec models.FundamentalsRecord) (string, error) {
	return g.upsert(ctx, "fundamentals", rec.Key(), rec)
}

func (g *Gateway) Close() error {
	if g.db != nil {
		return g.db.Close(context.Background())
	}
	return nil
}
