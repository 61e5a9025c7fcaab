package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	taskDuration     *prom.HistogramVec
	buildDuration    prom.Histogram
	taskResults      *prom.CounterVec
	buildOutcome     *prom.CounterVec
	artifactsWritten prom.Counter
	staleRemoved     prom.Counter
	rebuildTriggers  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitepress",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual build tasks",
			Buckets:   prom.DefBuckets,
		}, []string{"task"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitepress",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.taskResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepress",
			Name:      "task_results_total",
			Help:      "Task result counts by outcome",
		}, []string{"task", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepress",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.artifactsWritten = prom.NewCounter(prom.CounterOpts{
			Namespace: "sitepress",
			Name:      "artifacts_written_total",
			Help:      "Output files written",
		})
		pr.staleRemoved = prom.NewCounter(prom.CounterOpts{
			Namespace: "sitepress",
			Name:      "stale_outputs_removed_total",
			Help:      "Stale output files removed during reconciliation",
		})
		pr.rebuildTriggers = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepress",
			Name:      "rebuild_triggers_total",
			Help:      "Monitor rebuilds by trigger",
		}, []string{"reason"})
		reg.MustRegister(pr.taskDuration, pr.buildDuration, pr.taskResults, pr.buildOutcome, pr.artifactsWritten, pr.staleRemoved, pr.rebuildTriggers)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil || p.taskDuration == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil || p.taskResults == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddArtifactsWritten(n int) {
	if p == nil || p.artifactsWritten == nil {
		return
	}
	p.artifactsWritten.Add(float64(n))
}

func (p *PrometheusRecorder) AddStaleRemoved(n int) {
	if p == nil || p.staleRemoved == nil {
		return
	}
	p.staleRemoved.Add(float64(n))
}

func (p *PrometheusRecorder) IncRebuildTrigger(reason string) {
	if p == nil || p.rebuildTriggers == nil {
		return
	}
	p.rebuildTriggers.WithLabelValues(reason).Inc()
}
