package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/fallback"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/jobs"
	"github.com/bobmcallan/marketsync/internal/models"
	"github.com/bobmcallan/marketsync/internal/providers/alphavantage"
	"github.com/bobmcallan/marketsync/internal/providers/tiingo"
	"github.com/bobmcallan/marketsync/internal/scheduler"
	"github.com/bobmcallan/marketsync/internal/storage"
	"github.com/bobmcallan/marketsync/internal/tracker"
)

func main() {
	configPath := flag.String("config", os.Getenv("MARKETSYNC_CONFIG"), "config file path")
	dataType := flag.String("type", "", "data type to run (default: all registered)")
	entityList := flag.String("entities", "", "comma-separated symbols, country codes, or indicator codes")
	strategy := flag.String("strategy", "", "provider strategy: fastest_first, most_reliable, round_robin, fallback_chain")
	flag.Parse()

	cfg, err := common.LoadConfig("marketsync.toml", *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(cfg.Logging.Level)

	entities := splitEntities(*entityList)
	if len(entities) == 0 {
		fmt.Fprintln(os.Stderr, "No entities given; pass -entities SYM1,SYM2")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gateway, err := storage.NewGateway(ctx, logger, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer gateway.Close()

	provs := buildProviders(cfg, logger)
	if len(provs) == 0 {
		logger.Fatal().Msg("No providers configured; set api_key under [providers.<name>]")
	}

	tr := tracker.New(logger, tracker.Config{
		RateLimitCooldown: cfg.Scheduler.GetRateLimitCooldown(),
		BlacklistCooldown: cfg.Scheduler.GetBlacklistCooldown(),
		MaxAttempts:       cfg.Scheduler.MaxAttempts,
		PerfWindow:        cfg.Scheduler.PerfWindow,
	})

	rates := make(map[string]fallback.ProviderRate, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.RateLimit > 0 {
			rates[name] = fallback.ProviderRate{RPS: pc.RateLimit, Burst: pc.Burst}
		}
	}

	manager := fallback.NewManager(provs, tr, logger, fallback.Config{
		BatchSize:     cfg.Scheduler.BatchSize,
		BatchDelay:    cfg.Scheduler.GetBatchDelay(),
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		ProviderRates: rates,
	})

	sched := scheduler.New(logger)
	registerJobs(sched, cfg, jobs.Deps{
		Manager: manager,
		Tracker: tr,
		Gateway: gateway,
		Logger:  logger,
	}, models.Strategy(*strategy))

	var summaries []scheduler.RunSummary
	if *dataType == "" {
		summaries = sched.RunAll(ctx, entities)
	} else {
		dt := models.DataType(*dataType)
		if !dt.Valid() {
			logger.Fatal().Str("type", *dataType).Msg("Unknown data type")
		}
		summaries = append(summaries, sched.Run(ctx, dt, entities))
	}

	failed := false
	for _, s := range summaries {
		if s.Err != nil {
			failed = true
			logger.Error().Err(s.Err).Str("data_type", string(s.DataType)).Msg("Run failed")
			continue
		}
		logger.Info().
			Str("data_type", string(s.DataType)).
			Int("fetched", s.Fetched).
			Int("failed", s.Failed).
			Bool("stored", s.Stored).
			Dur("duration", s.Duration).
			Msg("Run finished")
	}
	if failed {
		os.Exit(1)
	}
}

func splitEntities(list string) []string {
	var entities []string
	for _, e := range strings.Split(list, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			entities = append(entities, e)
		}
	}
	return entities
}

// buildProviders creates a client for every configured provider with an API
// key, ordered by configured priority. That order is the fallback chain and
// the merge priority.
func buildProviders(cfg *common.Config, logger *common.Logger) []interfaces.Provider {
	type entry struct {
		name     string
		priority int
		provider interfaces.Provider
	}
	var entries []entry

	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			continue
		}
		var p interfaces.Provider
		switch name {
		case "alphavantage":
			opts := []alphavantage.ClientOption{alphavantage.WithLogger(logger), alphavantage.WithTimeout(pc.GetTimeout())}
			if pc.RateLimit > 0 {
				opts = append(opts, alphavantage.WithRateLimit(pc.RateLimit))
			}
			p = alphavantage.NewClient(pc.APIKey, opts...)
		case "tiingo":
			opts := []tiingo.ClientOption{tiingo.WithLogger(logger), tiingo.WithTimeout(pc.GetTimeout())}
			if pc.RateLimit > 0 {
				opts = append(opts, tiingo.WithRateLimit(pc.RateLimit))
			}
			p = tiingo.NewClient(pc.APIKey, opts...)
		default:
			logger.Warn().Str("provider", name).Msg("No client implemented for provider, skipping")
			continue
		}
		entries = append(entries, entry{name: name, priority: pc.Priority, provider: p})
	}

	sort.Slice(entries, func(a, b int) bool {
		if entries[a].priority != entries[b].priority {
			return entries[a].priority < entries[b].priority
		}
		return entries[a].name < entries[b].name
	})

	providers := make([]interfaces.Provider, 0, len(entries))
	for _, e := range entries {
		providers = append(providers, e.provider)
	}
	return providers
}

// registerJobs wires every aggregation job into the scheduler, honoring
// per-data-type fetch mode overrides from config.
func registerJobs(sched *scheduler.Scheduler, cfg *common.Config, deps jobs.Deps, strategy models.Strategy) {
	optsFor := func(dt models.DataType) jobs.Options {
		return jobs.Options{
			Mode:          jobs.Mode(cfg.Scheduler.FetchModes[string(dt)]),
			Strategy:      strategy,
			QualityScores: cfg.Scheduler.QualityScores,
		}
	}

	sched.Register(jobs.NewQuotesJob(deps, optsFor(models.DataTypeQuotes)))
	sched.Register(jobs.NewOptionsJob(deps, optsFor(models.DataTypeOptionsChain)))
	sched.Register(jobs.NewHistoricalJob(deps, optsFor(models.DataTypeHistoricalPrices)))
	sched.Register(jobs.NewDividendsJob(deps, optsFor(models.DataTypeDividends)))
	sched.Register(jobs.NewEarningsJob(deps, optsFor(models.DataTypeEarnings)))
	sched.Register(jobs.NewCalendarJob(deps, optsFor(models.DataTypeEarningsCalendar)))
	sched.Register(jobs.NewTranscriptsJob(deps, optsFor(models.DataTypeEarningsTranscript)))
	sched.Register(jobs.NewNewsJob(deps, optsFor(models.DataTypeNews)))
	sched.Register(jobs.NewEconomicEventsJob(deps, optsFor(models.DataTypeEconomicEvents)))
	sched.Register(jobs.NewIndicatorsJob(deps, optsFor(models.DataTypeEconomicIndicators)))
	sched.Register(jobs.NewFundamentalsJob(deps, optsFor(models.DataTypeFundamentals)))
}
