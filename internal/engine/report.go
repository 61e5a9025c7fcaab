package engine

import (
	"fmt"
	"time"
)

// Outcome is the final state of a build.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Report summarises one build pass.
type Report struct {
	BuildID string
	Start   time.Time
	End     time.Time
	Outcome Outcome
	Tasks   int
	// Written lists targets in write order.
	Written []string
	// Removed lists stale targets deleted by reconciliation.
	Removed []string
	Skipped int
	// Artifacts counts written files per task.
	Artifacts map[string]int
	Err       error
}

func newReport(id string) *Report {
	return &Report{BuildID: id, Start: time.Now(), Artifacts: make(map[string]int)}
}

func (r *Report) finish(err error) {
	r.End = time.Now()
	r.Err = err
	r.Outcome = OutcomeSuccess
	if err != nil {
		r.Outcome = OutcomeFailed
	}
}

// Duration returns how long the build took.
func (r *Report) Duration() time.Duration {
	if r.End.IsZero() {
		return time.Since(r.Start)
	}
	return r.End.Sub(r.Start)
}

// Summary returns a one-line human readable description.
func (r *Report) Summary() string {
	return fmt.Sprintf("build=%s outcome=%s tasks=%d written=%d removed=%d skipped=%d duration=%s",
		r.BuildID, r.Outcome, r.Tasks, len(r.Written), len(r.Removed), r.Skipped, r.Duration().Round(time.Millisecond))
}
