package models

import "time"

// AttemptStatus tracks the lifecycle of a FetchAttempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailure AttemptStatus = "failure"
)

// FetchAttempt records a single provider call. Attempts are appended when a
// call begins and resolved exactly once; the log is append-only.
type FetchAttempt struct {
	ID          string        `json:"id"`
	EntityID    string        `json:"entity_id"`
	DataType    DataType      `json:"data_type"`
	Provider    string        `json:"provider"`
	JobID       string        `json:"job_id"`
	StartedAt   time.Time     `json:"started_at"`
	ResolvedAt  time.Time     `json:"resolved_at,omitempty"`
	Status      AttemptStatus `json:"status"`
	LatencyMS   int64         `json:"latency_ms"`
	PayloadSize int           `json:"payload_size"`
	Error       string        `json:"error,omitempty"`
	IsRateLimit bool          `json:"is_rate_limit"`
}

// ProviderPerformance is derived from the attempt log per (provider, data type).
type ProviderPerformance struct {
	Provider            string     `json:"provider"`
	DataType            DataType   `json:"data_type"`
	Attempts            int        `json:"attempts"`
	SuccessRate         float64    `json:"success_rate"`
	AvgResponseTimeMS   float64    `json:"avg_response_time_ms"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RateLimitedUntil    *time.Time `json:"rate_limited_until,omitempty"`
	BlacklistedUntil    *time.Time `json:"blacklisted_until,omitempty"`
}

// FetchResult is the outcome for one entity in one job run. Provider may be a
// "+"-joined composite (e.g. "polygon+fmp") after a comprehensive sweep.
type FetchResult struct {
	Data     any    `json:"data,omitempty"`
	Provider string `json:"provider,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// FailedResult builds a failed FetchResult with the given error message.
func FailedResult(err string) FetchResult {
	return FetchResult{Success: false, Error: err}
}
