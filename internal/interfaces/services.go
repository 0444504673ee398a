package interfaces

import (
	"context"

	"github.com/bobmcallan/marketsync/internal/models"
)

// AggregationJob is the surface every per-data-type job exposes to its caller
// (a scheduler, CLI, or test harness).
type AggregationJob interface {
	// DataType identifies which data type this job aggregates.
	DataType() models.DataType

	// Fetch queries providers for the given entities and returns one
	// FetchResult per entity. Provider-level errors are absorbed; Fetch only
	// returns an error when no provider is reachable for the data type.
	Fetch(ctx context.Context, entities []string) (map[string]models.FetchResult, error)

	// Store normalizes and persists fetch results. It returns true only when
	// every attempted record was stored; per-record failures are logged and
	// counted, not raised.
	Store(ctx context.Context, results map[string]models.FetchResult) (bool, error)
}

// FetchTracker records provider attempts and exposes availability and retry
// state derived from them.
type FetchTracker interface {
	RegisterProvider(name string, dataTypes ...models.DataType)
	RegisterAttempt(entityID string, dt models.DataType, provider, jobID string) string
	RecordSuccess(attemptID string, latencyMS int64, payloadSize int)
	RecordFailure(attemptID string, errMsg string, kind models.ErrorKind)
	AvailableProviders(dt models.DataType) []string
	RetryCandidates(dt models.DataType) []string
	Performance(provider string, dt models.DataType) models.ProviderPerformance
}
