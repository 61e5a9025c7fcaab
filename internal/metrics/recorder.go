package metrics

import "time"

// ResultLabel enumerates task result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultSkipped ResultLabel = "skipped"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines observability hooks for builds, tasks and the monitor loop.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	IncBuildOutcome(outcome string) // outcome: success|failed
	AddArtifactsWritten(n int)
	AddStaleRemoved(n int)
	IncRebuildTrigger(reason string) // reason: change|schedule|initial
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)        {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                    {}
func (NoopRecorder) AddArtifactsWritten(int)                   {}
func (NoopRecorder) AddStaleRemoved(int)                       {}
func (NoopRecorder) IncRebuildTrigger(string)                  {}
