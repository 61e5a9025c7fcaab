package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults shared with the command line.
const (
	DefaultOutput       = "./output"
	DefaultSiteDir      = "site"
	DefaultServeHost    = "localhost"
	DefaultServePort    = 9000
	DefaultPollInterval = time.Second
	DefaultHistoryName  = ".sitepress_history.db"
)

func applyDefaults(cfg *Config) {
	if cfg.Output == "" {
		cfg.Output = DefaultOutput
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "utf-8"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	if cfg.Watch.Defaults == nil {
		cfg.Watch.Defaults = boolPtr(true)
	}
	if cfg.Watch.Notify == nil {
		cfg.Watch.Notify = boolPtr(true)
	}
	if cfg.Watch.PollInterval == "" {
		cfg.Watch.PollInterval = DefaultPollInterval.String()
	}
	if cfg.Serve.Host == "" {
		cfg.Serve.Host = DefaultServeHost
	}
	if cfg.Serve.Port == 0 {
		cfg.Serve.Port = DefaultServePort
	}
	for i := range cfg.Units {
		if cfg.Units[i].Kind == "" {
			cfg.Units[i].Kind = UnitPage
		}
	}
}

// SourceDir returns the configured source directory, or ./site when it
// exists, or the current directory.
func (c *Config) SourceDir() string {
	if c.Source != "" {
		return c.Source
	}
	if info, err := os.Stat(DefaultSiteDir); err == nil && info.IsDir() {
		return DefaultSiteDir
	}
	return "."
}

// PollInterval returns watch.poll_interval as a duration. Plain numbers
// are seconds.
func (c *Config) PollInterval() time.Duration {
	d, err := parseInterval(c.Watch.PollInterval)
	if err != nil || d <= 0 {
		return DefaultPollInterval
	}
	return d
}

// HistoryPath returns the history database path.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(filepath.Dir(filepath.Clean(c.SourceDir())), DefaultHistoryName)
}

// WatchDefaults reports whether default watch entries are added.
func (c *Config) WatchDefaults() bool { return c.Watch.Defaults == nil || *c.Watch.Defaults }

// WatchNotify reports whether filesystem notifications are used.
func (c *Config) WatchNotify() bool { return c.Watch.Notify == nil || *c.Watch.Notify }

func parseInterval(s string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func boolPtr(b bool) *bool { return &b }
