// Package storage selects the StorageGateway backend from configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/storage/memory"
	"github.com/bobmcallan/marketsync/internal/storage/postgres"
	"github.com/bobmcallan/marketsync/internal/storage/surrealdb"
)

// Driver constants.
const (
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverSurrealDB = "surrealdb"
)

// NewGateway creates a storage gateway for the configured driver.
// Supported drivers: "memory" (default), "postgres", "surrealdb".
func NewGateway(ctx context.Context, logger *common.Logger, cfg common.StorageConfig) (interfaces.StorageGateway, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return memory.NewGateway(), nil

	case DriverPostgres:
		return postgres.NewGateway(ctx, cfg, logger)

	case DriverSurrealDB:
		return surrealdb.NewGateway(cfg, logger)

	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: memory, postgres, surrealdb)", driver)
	}
}
