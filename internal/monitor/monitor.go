package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/metrics"
)

// DefaultInterval is the wait between two state token checks.
const DefaultInterval = time.Second

// Rebuild triggers reported to the metrics recorder.
const (
	TriggerChange   = "change"
	TriggerSchedule = "schedule"
)

// RebuildFunc runs one build pass.
type RebuildFunc func(ctx context.Context) error

// Monitor polls the state token of Watch and calls Rebuild whenever it
// changes. The token is the only authority on change: filesystem
// notifications merely cut the wait short, and Schedule forces rebuilds on a
// cron schedule regardless of the token.
type Monitor struct {
	Watch    []string
	Filter   *Filter
	Interval time.Duration
	Notify   bool
	Schedule string
	Rebuild  RebuildFunc
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// Run loops until ctx is canceled. A failing rebuild is logged and the loop
// carries on; only setup errors are returned.
func (m *Monitor) Run(ctx context.Context) error {
	if m.Rebuild == nil {
		return ferrors.InternalError("monitor has no rebuild function").Build()
	}
	if m.Filter == nil {
		m.Filter = NewFilter(nil)
	}
	if m.Interval <= 0 {
		m.Interval = DefaultInterval
	}
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
	if m.Recorder == nil {
		m.Recorder = metrics.NoopRecorder{}
	}
	log := m.Logger

	log.Info("Entering monitor mode",
		slog.Any("watch", m.Watch),
		slog.Any("ignore", m.Filter.patterns),
		logfields.Duration(m.Interval))

	baseline, err := m.Filter.Token(m.Watch)
	if err != nil {
		log.Warn("Failed to compute initial state token", logfields.Error(err))
	}

	wake := make(chan struct{}, 1)
	if m.Notify {
		stop, err := startNotifier(ctx, m.Watch, m.Filter, wake, log)
		if err != nil {
			log.Warn("Filesystem notifications unavailable; polling only", logfields.Error(err))
		} else {
			defer stop()
		}
	}

	forced := make(chan struct{}, 1)
	if m.Schedule != "" {
		stop, err := startSchedule(m.Schedule, forced, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	timer := time.NewTimer(m.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Leaving monitor mode")
			return nil
		case <-forced:
			log.Info("Scheduled rebuild")
			m.rebuild(ctx, TriggerSchedule)
			if tok, err := m.Filter.Token(m.Watch); err == nil {
				baseline = tok
			}
			continue
		case <-wake:
		case <-timer.C:
		}
		timer.Reset(m.Interval)

		current, err := m.Filter.Token(m.Watch)
		if err != nil {
			log.Warn("Failed to compute state token", logfields.Error(err))
			continue
		}
		if current == baseline {
			continue
		}
		baseline = current
		log.Info("Detected change in source files, rebuilding")
		m.rebuild(ctx, TriggerChange)
	}
}

func (m *Monitor) rebuild(ctx context.Context, reason string) {
	m.Recorder.IncRebuildTrigger(reason)
	start := time.Now()
	err := m.safeRebuild(ctx)
	if err != nil {
		m.Logger.Warn("Rebuild failed; still watching", logfields.Error(err), logfields.Duration(time.Since(start)))
		return
	}
	m.Logger.Info("Rebuild finished", logfields.Duration(time.Since(start)))
}

func (m *Monitor) safeRebuild(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ferrors.BuildError(fmt.Sprintf("rebuild panicked: %v", r)).Build()
		}
	}()
	return m.Rebuild(ctx)
}
