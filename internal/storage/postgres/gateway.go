// Package postgres provides the Postgres StorageGateway. Each record type
// gets its own table keyed by the natural key, with the normalized record in
// a JSONB column; upserts are INSERT ... ON CONFLICT DO UPDATE.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

const createTables = `
CREATE TABLE IF NOT EXISTS quotes (
    symbol      TEXT        PRIMARY KEY,
    data        JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS price_bars (
    symbol      TEXT        NOT NULL,
    bar_date    DATE        NOT NULL,
    data        JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (symbol, bar_date)
);

CREATE TABLE IF NOT EXISTS option_contracts (
    symbol      TEXT        NOT NULL,
    expiration  DATE        NOT NULL,
    strike      NUMERIC     NOT NULL,
    side        TEXT        NOT NULL,
    data        JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (symbol, expiration, strike, side)
);

CREATE TABLE IF NOT EXISTS dividends (
    symbol      TEXT        NOT NULL,
    ex_date     DATE        NOT NULL,
    data        JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (symbol, ex_date)
);

CREATE TABLE IF NOT EXISTS earnings (
    symbol        TEXT        NOT NULL,
    fiscal_period TEXT        NOT NULL,
    data          JSONB       NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (symbol, fiscal_period)
);

CREATE TABLE IF NOT EXISTS earnings_calendar (
    symbol      TEXT        NOT NULL,
    report_date DATE        NOT NULL,
    data        JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (symbol, report_date)
);

CREATE TABLE IF NOT EXISTS transcripts (
    symbol        TEXT        NOT NULL,
    fiscal_period TEXT        NOT NULL,
    data          JSONB       NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (symbol, fiscal_period)
);

CREATE TABLE IF NOT EXISTS news (
    natural_key TEXT        PRIMARY KEY,
    data        JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS economic_events (
    natural_key TEXT        PRIMARY KEY,
    data        JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS economic_indicators (
    indicator_code TEXT        NOT NULL,
    period_date    DATE        NOT NULL,
    data           JSONB       NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (indicator_code, period_date)
);

CREATE TABLE IF NOT EXISTS fundamentals (
    symbol      TEXT        PRIMARY KEY,
    data        JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);
`

// Gateway is the Postgres-backed StorageGateway.
type Gateway struct {
	pool   *pgxpool.Pool
	logger *common.Logger
}

// NewGateway connects to the DSN and ensures the tables exist.
func NewGateway(ctx context.Context, cfg common.StorageConfig, logger *common.Logger) (*Gateway, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, createTables); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Msg("Connected to Postgres")
	return &Gateway{pool: pool, logger: logger}, nil
}

var _ interfaces.StorageGateway = (*Gateway)(nil)

func (g *Gateway) UpsertQuote(ctx context.Context, rec models.Quote) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO quotes (symbol, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (symbol) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Symbol, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert quote %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertPriceBar(ctx context.Context, rec models.PriceBar) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO price_bars (symbol, bar_date, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (symbol, bar_date) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Symbol, rec.Date, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert price bar %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertOptionContract(ctx context.Context, rec models.OptionContract) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO option_contracts (symbol, expiration, strike, side, data, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (symbol, expiration, strike, side) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Symbol, rec.Expiration, rec.Strike, rec.Type, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert option contract %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertDividend(ctx context.Context, rec models.DividendRecord) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO dividends (symbol, ex_date, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (symbol, ex_date) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Symbol, rec.ExDate, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert dividend %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertEarnings(ctx context.Context, rec models.EarningsRecord) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO earnings (symbol, fiscal_period, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (symbol, fiscal_period) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Symbol, rec.FiscalPeriod, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert earnings %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertEarningsCalendar(ctx context.Context, rec models.EarningsCalendarEntry) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO earnings_calendar (symbol, report_date, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (symbol, report_date) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Symbol, rec.ReportDate, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert calendar entry %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertTranscript(ctx context.Context, rec models.EarningsTranscript) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO transcripts (symbol, fiscal_period, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (symbol, fiscal_period) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Symbol, rec.FiscalPeriod, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert transcript %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertNews(ctx context.Context, rec models.NewsArticle) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO news (natural_key, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (natural_key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Key(), rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert article %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertEconomicEvent(ctx context.Context, rec models.EconomicEvent) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO economic_events (natural_key, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (natural_key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Key(), rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert event %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertEconomicIndicator(ctx context.Context, rec models.EconomicIndicator) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO economic_indicators (indicator_code, period_date, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (indicator_code, period_date) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.IndicatorCode, rec.PeriodDate, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert indicator %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) UpsertFundamentals(ctx context.Context, rec models.FundamentalsRecord) (string, error) {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO fundamentals (symbol, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (symbol) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.Symbol, rec, time.Now())
	if err != nil {
		return "", fmt.Errorf("upsert fundamentals %s: %w", rec.Key(), err)
	}
	return rec.Key(), nil
}

func (g *Gateway) Close() error {
	g.pool.Close()
	return nil
}
