// Package scheduler is the thin execution surface an external cron or CLI
// hands entity lists to. It owns no timing of its own; it registers jobs by
// data type and runs one fetch-and-store cycle per call.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/marketsync/internal/common"
	"github.com/bobmcallan/marketsync/internal/interfaces"
	"github.com/bobmcallan/marketsync/internal/models"
)

// RunSummary reports one job execution.
type RunSummary struct {
	DataType models.DataType
	Entities int
	Fetched  int // entities with a successful fetch result
	Failed   int // entities that exhausted all providers
	Stored   bool
	Duration time.Duration
	Err      error
}

// Scheduler routes run requests to registered aggregation jobs.
type Scheduler struct {
	jobs   map[models.DataType]interfaces.AggregationJob
	logger *common.Logger
}

func New(logger *common.Logger) *Scheduler {
	return &Scheduler{
		jobs:   make(map[models.DataType]interfaces.AggregationJob),
		logger: logger,
	}
}

// Register adds a job. The last registration for a data type wins.
func (s *Scheduler) Register(job interfaces.AggregationJob) {
	s.jobs[job.DataType()] = job
}

// Job returns the registered job for the data type, if any.
func (s *Scheduler) Job(dt models.DataType) (interfaces.AggregationJob, bool) {
	job, ok := s.jobs[dt]
	return job, ok
}

// Run executes one fetch-and-store cycle for the data type. A panicking
// provider is contained here so one bad job cannot take the process down.
func (s *Scheduler) Run(ctx context.Context, dt models.DataType, entities []string) (summary RunSummary) {
	summary = RunSummary{DataType: dt, Entities: len(entities)}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			summary.Err = fmt.Errorf("job %s panicked: %v", dt, r)
			s.logger.Error().
				Str("data_type", string(dt)).
				Interface("panic", r).
				Msg("Job panicked")
		}
		summary.Duration = time.Since(start)
	}()

	job, ok := s.jobs[dt]
	if !ok {
		summary.Err = fmt.Errorf("no job registered for %s", dt)
		return summary
	}

	s.logger.Info().
		Str("data_type", string(dt)).
		Int("entities", len(entities)).
		Msg("Starting job run")

	results, err := job.Fetch(ctx, entities)
	if err != nil {
		summary.Err = fmt.Errorf("fetch %s: %w", dt, err)
		return summary
	}
	for _, res := range results {
		if res.Success {
			summary.Fetched++
		} else {
			summary.Failed++
		}
	}

	stored, err := job.Store(ctx, results)
	if err != nil {
		summary.Err = fmt.Errorf("store %s: %w", dt, err)
		return summary
	}
	summary.Stored = stored

	s.logger.Info().
		Str("data_type", string(dt)).
		Int("fetched", summary.Fetched).
		Int("failed", summary.Failed).
		Bool("stored", stored).
		Dur("duration", time.Since(start)).
		Msg("Job run complete")

	return summary
}

// RunAll runs every registered job over the same entity list, in the fixed
// data type order, stopping early when the context is done.
func (s *Scheduler) RunAll(ctx context.Context, entities []string) []RunSummary {
	var summaries []RunSummary
	for _, dt := range models.AllDataTypes {
		if _, ok := s.jobs[dt]; !ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		summaries = append(summaries, s.Run(ctx, dt, entities))
	}
	return summaries
}
