package monitor

import (
	"log/slog"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
)

// startSchedule signals forced on every tick of the cron expression expr.
func startSchedule(expr string, forced chan<- struct{}, log *slog.Logger) (func(), error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryMonitor, "create scheduler").Build()
	}
	_, err = s.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() {
			select {
			case forced <- struct{}{}:
			default:
			}
		}),
		gocron.WithName("forced-rebuild"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, ferrors.ConfigError("invalid watch schedule").
			WithContext("schedule", expr).
			WithCause(err).
			Build()
	}
	s.Start()
	log.Info("Scheduled forced rebuilds", slog.String("schedule", expr))
	return func() {
		if err := s.Shutdown(); err != nil {
			log.Warn("Scheduler shutdown failed", logfields.Error(err))
		}
	}, nil
}
