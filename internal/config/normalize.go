package config

import (
	"fmt"
	"strings"
)

// Normalize case-folds enumerations and trims free-form strings in place.
// It returns a warning for every value it had to rewrite.
func Normalize(cfg *Config) []string {
	var warnings []string
	note := func(field, from, to string) {
		warnings = append(warnings, fmt.Sprintf("normalized %s from %q to %q", field, from, to))
	}

	var changed bool
	raw := string(cfg.Logging.Level)
	if cfg.Logging.Level, changed = logLevels.Canonical(raw); changed {
		note("logging.level", raw, string(cfg.Logging.Level))
	}
	raw = string(cfg.Logging.Format)
	if cfg.Logging.Format, changed = logFormats.Canonical(raw); changed {
		note("logging.format", raw, string(cfg.Logging.Format))
	}
	cfg.Encoding = strings.ToLower(strings.TrimSpace(cfg.Encoding))
	cfg.Serve.Host = strings.TrimSpace(cfg.Serve.Host)
	cfg.Watch.Schedule = strings.TrimSpace(cfg.Watch.Schedule)
	cfg.Watch.PollInterval = strings.TrimSpace(cfg.Watch.PollInterval)

	for i := range cfg.Units {
		u := &cfg.Units[i]
		u.Name = strings.TrimSpace(u.Name)
		raw := string(u.Kind)
		if u.Kind, changed = unitKinds.Canonical(raw); changed {
			note(fmt.Sprintf("units[%s].kind", u.Name), raw, string(u.Kind))
		}
		for j, d := range u.DependsOn {
			u.DependsOn[j] = strings.TrimSpace(d)
		}
	}
	return warnings
}
