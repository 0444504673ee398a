// Package models defines data structures for marketsync
package models

// DataType identifies a market-data query type served by providers.
type DataType string

const (
	DataTypeQuotes             DataType = "quotes"
	DataTypeOptionsChain       DataType = "options_chain"
	DataTypeHistoricalPrices   DataType = "historical_prices"
	DataTypeDividends          DataType = "dividends"
	DataTypeEarnings           DataType = "earnings"
	DataTypeEarningsCalendar   DataType = "earnings_calendar"
	DataTypeEarningsTranscript DataType = "earnings_transcripts"
	DataTypeNews               DataType = "news"
	DataTypeEconomicEvents     DataType = "economic_events"
	DataTypeEconomicIndicators DataType = "economic_indicators"
	DataTypeFundamentals       DataType = "fundamentals"
)

// AllDataTypes lists every data type in a fixed order.
var AllDataTypes = []DataType{
	DataTypeQuotes,
	DataTypeOptionsChain,
	DataTypeHistoricalPrices,
	DataTypeDividends,
	DataTypeEarnings,
	DataTypeEarningsCalendar,
	DataTypeEarningsTranscript,
	DataTypeNews,
	DataTypeEconomicEvents,
	DataTypeEconomicIndicators,
	DataTypeFundamentals,
}

// Valid reports whether dt is a known data type.
func (dt DataType) Valid() bool {
	for _, known := range AllDataTypes {
		if dt == known {
			return true
		}
	}
	return false
}

// Strategy selects how the fallback manager drives providers for a batch.
type Strategy string

const (
	// StrategyFastestFirst tries the lowest-latency provider first, falling
	// back to the next only for entities that failed.
	StrategyFastestFirst Strategy = "fastest_first"
	// StrategyMostReliable orders providers by success rate with the same
	// fallback rule.
	StrategyMostReliable Strategy = "most_reliable"
	// StrategyRoundRobin partitions entities across available providers to
	// spread load. Failures surface directly; there is no fallback.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyFallbackChain tries every available provider in priority order
	// until each entity succeeds or providers are exhausted.
	StrategyFallbackChain Strategy = "fallback_chain"
)
