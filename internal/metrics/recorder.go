package metrics

import "time"

// ResultLabel enumerates per-job result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultTimeout ResultLabel = "timeout"
)

// BuildOutcomeLabel is the final status of a run.
type BuildOutcomeLabel string

const (
	BuildOutcomeSuccess  BuildOutcomeLabel = "success"
	BuildOutcomePartial  BuildOutcomeLabel = "partial"
	BuildOutcomeFailed   BuildOutcomeLabel = "failed"
	BuildOutcomeCanceled BuildOutcomeLabel = "canceled"
)

// Recorder defines observability hooks for build runs and their jobs.
// Implementations must be safe for concurrent use: job hooks are called
// from worker goroutines.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	IncDecision(kind, outcome string)
	ObserveJobDuration(kind string, d time.Duration)
	IncJobResult(kind string, result ResultLabel)
	AddOutputs(written, deleted int)
	SetWorkers(n int)
	SetCacheEntries(n int)
	IncCacheRecovered(reason string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration)       {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)        {}
func (NoopRecorder) IncDecision(string, string)               {}
func (NoopRecorder) ObserveJobDuration(string, time.Duration) {}
func (NoopRecorder) IncJobResult(string, ResultLabel)         {}
func (NoopRecorder) AddOutputs(int, int)                      {}
func (NoopRecorder) SetWorkers(int)                           {}
func (NoopRecorder) SetCacheEntries(int)                      {}
func (NoopRecorder) IncCacheRecovered(string)                 {}
