package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/marketsync/internal/models"
)

func TestUpsertIsIdempotentOnNaturalKey(t *testing.T) {
	gw := NewGateway()
	ctx := context.Background()

	quote := models.Quote{Symbol: "AAPL", Price: 190.5, Timestamp: time.Now()}
	id1, err := gw.UpsertQuote(ctx, quote)
	require.NoError(t, err)

	quote.Price = 191.0
	id2, err := gw.UpsertQuote(ctx, quote)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, gw.Counts()["quotes"])

	got, ok := gw.Quote("AAPL")
	require.True(t, ok)
	assert.Equal(t, 191.0, got.Price, "the upsert rewrites the row")
}

func TestDistinctNaturalKeysCreateDistinctRows(t *testing.T) {
	gw := NewGateway()
	ctx := context.Background()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := gw.UpsertPriceBar(ctx, models.PriceBar{Symbol: "AAPL", Date: day, Close: 100})
	require.NoError(t, err)
	_, err = gw.UpsertPriceBar(ctx, models.PriceBar{Symbol: "AAPL", Date: day.AddDate(0, 0, 1), Close: 101})
	require.NoError(t, err)
	_, err = gw.UpsertPriceBar(ctx, models.PriceBar{Symbol: "MSFT", Date: day, Close: 400})
	require.NoError(t, err)

	assert.Equal(t, 3, gw.Counts()["price_bars"])
}

func TestAllTablesStartEmpty(t *testing.T) {
	gw := NewGateway()
	for table, count := range gw.Counts() {
		assert.Zero(t, count, "table %s", table)
	}
	assert.NoError(t, gw.Close())
}
