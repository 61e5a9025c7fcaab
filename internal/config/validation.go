package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/retry"
)

// Validate checks cross-field constraints. All problems are reported at once.
func Validate(cfg *Config) error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if cfg.Version != Version {
		add("version must be %q, got %q", Version, cfg.Version)
	}
	if strings.TrimSpace(cfg.Output) == "" {
		add("output must not be empty")
	}
	if cfg.Encoding != "" {
		if _, err := htmlindex.Get(cfg.Encoding); err != nil {
			add("encoding %q is not a known encoding", cfg.Encoding)
		}
	}
	if _, err := logLevels.Parse(string(cfg.Logging.Level)); err != nil {
		add("%v", err)
	}
	if _, err := logFormats.Parse(string(cfg.Logging.Format)); err != nil {
		add("%v", err)
	}
	if d, err := parseInterval(cfg.Watch.PollInterval); err != nil || d <= 0 {
		add("watch.poll_interval %q must be a positive duration", cfg.Watch.PollInterval)
	}
	if cfg.Serve.Port < 0 || cfg.Serve.Port > 65535 {
		add("serve.port %d is out of range", cfg.Serve.Port)
	}
	if cfg.History.Keep < 0 {
		add("history.keep must not be negative")
	}
	if _, err := retry.ParseBackoff(cfg.Notify.Backoff); err != nil {
		add("notify.backoff: %v", err)
	}
	validateUnits(cfg.Units, add)

	if len(problems) == 0 {
		return nil
	}
	return ferrors.ConfigError("invalid configuration: "+strings.Join(problems, "; ")).
		WithContext("problems", problems).
		WithCause(errors.New(problems[0])).
		Build()
}

func validateUnits(units []UnitConfig, add func(string, ...any)) {
	names := make(map[string]bool, len(units))
	for _, u := range units {
		if u.Name == "" {
			add("every unit needs a name")
			continue
		}
		if names[u.Name] {
			add("unit %q is declared twice", u.Name)
		}
		names[u.Name] = true

		if _, err := unitKinds.Parse(string(u.Kind)); err != nil {
			add("unit %q: %v", u.Name, err)
			continue
		}
		switch u.Kind {
		case UnitAsset:
			if u.Foreach.IsZero() {
				add("unit %q: asset units need foreach", u.Name)
			}
		case UnitPipeline:
			if u.Foreach.IsZero() {
				add("unit %q: pipeline units need foreach", u.Name)
			}
			for i, st := range u.Stages {
				set := 0
				for _, ok := range []bool{st.Concat != "", len(st.Run) > 0, st.Into != ""} {
					if ok {
						set++
					}
				}
				if set != 1 {
					add("unit %q: stage %d must set exactly one of concat, run and into", u.Name, i)
				}
				if len(st.Run) > 0 && st.Name == "" {
					add("unit %q: stage %d: run needs a name for its output", u.Name, i)
				}
			}
		case UnitPage:
			if u.Foreach.IsZero() && u.Target == "" {
				add("unit %q: a page without foreach needs a target", u.Name)
			}
			if u.Foreach.IsZero() && u.Layout == "" {
				add("unit %q: a page without foreach needs a layout", u.Name)
			}
			if len(u.Stages) > 0 {
				add("unit %q: only pipeline units take stages", u.Name)
			}
		}
	}
	for _, u := range units {
		for _, d := range u.DependsOn {
			if !names[d] {
				add("unit %q depends on unknown unit %q", u.Name, d)
			}
		}
	}
}
