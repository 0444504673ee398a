// Package memory provides a map-backed StorageGateway for tests and the dev
// driver. Upserts are idempotent on the record's natural key.
package memory

import (
	"context"
	"sync"

	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// Gateway stores records in per-table maps keyed by natural key.
type Gateway struct {
	mu sync.RWMutex

	quotes      map[string]models.Quote
	bars        map[string]models.PriceBar
	contracts   map[string]models.OptionContract
	dividends   map[string]models.DividendRecord
	earnings    map[string]models.EarningsRecord
	calendar    map[string]models.EarningsCalendarEntry
	transcripts map[string]models.EarningsTranscript
	news        map[string]models.NewsArticle
	events      map[string]models.EconomicEvent
	indicators  map[string]models.EconomicIndicator
	funds       map[string]models.FundamentalsRecord
}

func NewGateway() *Gateway {
	return &Gateway{
		quotes:      make(map[string]models.Quote),
		bars:        make(map[string]models.PriceBar),
		contracts:   make(map[string]models.OptionContract),
		dividends:   make(map[string]models.DividendRecord),
		earnings:    make(map[string]models.EarningsRecord),
		calendar:    make(map[string]models.EarningsCalendarEntry),
		transcripts: make(map[string]models.EarningsTranscript),
		news:        make(map[string]models.NewsArticle),
		events:      make(map[string]models.EconomicEvent),
		indicators:  make(map[string]models.EconomicIndicator),
		funds:       make(map[string]models.FundamentalsRecord),
	}
}

var _ interfaces.StorageGateway = (*Gateway)(nil)

func (g *Gateway) UpsertQuote(_ context.Context, rec models.Quote) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertPriceBar(_ context.Context, rec models.PriceBar) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bars[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertOptionContract(_ context.Context, rec models.OptionContract) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contracts[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertDividend(_ context.Context, rec models.DividendRecord) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dividends[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertEarnings(_ context.Context, rec models.EarningsRecord) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.earnings[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertEarningsCalendar(_ context.Context, rec models.EarningsCalendarEntry) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calendar[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertTranscript(_ context.Context, rec models.EarningsTranscript) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transcripts[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertNews(_ context.Context, rec models.NewsArticle) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.news[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertEconomicEvent(_ context.Context, rec models.EconomicEvent) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertEconomicIndicator(_ context.Context, rec models.EconomicIndicator) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.indicators[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) UpsertFundamentals(_ context.Context, rec models.FundamentalsRecord) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.funds[rec.Key()] = rec
	return rec.Key(), nil
}

func (g *Gateway) Close() error { return nil }

// Counts returns per-table record counts, used by tests asserting upsert
// idempotency.
func (g *Gateway) Counts() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return map[string]int{
		"quotes":              len(g.quotes),
		"price_bars":          len(g.bars),
		"option_contracts":    len(g.contracts),
		"dividends":           len(g.dividends),
		"earnings":            len(g.earnings),
		"earnings_calendar":   len(g.calendar),
		"transcripts":         len(g.transcripts),
		"news":                len(g.news),
		"economic_events":     len(g.events),
		"economic_indicators": len(g.indicators),
		"fundamentals":        len(g.funds),
	}
}

// Quote returns the stored quote for a symbol, if any.
func (g *Gateway) Quote(symbol string) (models.Quote, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.quotes[symbol]
	return rec, ok
}

// Dividend returns the stored dividend for a natural key, if any.
func (g *Gateway) Dividend(key string) (models.DividendRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.dividends[key]
	return rec, ok
}

// Fundamentals returns the stored fundamentals for a symbol, if any.
func (g *Gateway) Fundamentals(symbol string) (models.FundamentalsRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.funds[symbol]
	return rec, ok
}

// Transcript returns the stored transcript for a natural key, if any.
func (g *Gateway) Transcript(key string) (models.EarningsTranscript, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.transcripts[key]
	return rec, ok
}
