package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Version is the only configuration format version understood.
const Version = "1"

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "sitepress.yaml"

// Config is the root of sitepress.yaml.
type Config struct {
	Version string `yaml:"version"`
	// Source is the site source directory. Empty selects ./site when it
	// exists, otherwise the current directory.
	Source string `yaml:"source,omitempty"`
	// Output is the output directory, or ":temp:".
	Output string `yaml:"output,omitempty"`
	// Encoding is the text encoding of written pages.
	Encoding string        `yaml:"encoding,omitempty"`
	Index    IndexConfig   `yaml:"index,omitempty"`
	Logging  LoggingConfig `yaml:"logging,omitempty"`
	Watch    WatchConfig   `yaml:"watch,omitempty"`
	Serve    ServeConfig   `yaml:"serve,omitempty"`
	History  HistoryConfig `yaml:"history,omitempty"`
	Notify   NotifyConfig  `yaml:"notify,omitempty"`
	Units    []UnitConfig  `yaml:"units,omitempty"`
}

// IndexConfig controls the build index used for stale output cleanup.
type IndexConfig struct {
	// Path is relative to the output directory unless absolute.
	Path     string `yaml:"path,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// WatchConfig configures monitor mode.
type WatchConfig struct {
	// Paths are extra paths or glob patterns to watch.
	Paths []string `yaml:"paths,omitempty"`
	// Ignore are paths or glob patterns never watched.
	Ignore []string `yaml:"ignore,omitempty"`
	// Defaults adds the program and source directories to Paths and the
	// output directory to Ignore. Defaults to true.
	Defaults *bool `yaml:"defaults,omitempty"`
	// PollInterval is a Go duration; plain numbers are seconds.
	PollInterval string `yaml:"poll_interval,omitempty"`
	// Schedule is an optional cron expression forcing periodic rebuilds.
	Schedule     string `yaml:"schedule,omitempty"`
	UseGitignore bool   `yaml:"use_gitignore,omitempty"`
	// Notify enables filesystem notifications between polls. Defaults to true.
	Notify *bool `yaml:"notify,omitempty"`
}

// ServeConfig configures the preview server.
type ServeConfig struct {
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	Metrics bool   `yaml:"metrics,omitempty"`
}

// HistoryConfig configures the build history store.
type HistoryConfig struct {
	// Path is relative to the source directory's parent unless absolute.
	Path     string `yaml:"path,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
	// Keep is how many builds are retained. Zero keeps everything.
	Keep int `yaml:"keep,omitempty"`
}

// NotifyConfig configures build event publishing.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	// Retries after a failed publish. 0 keeps the default of 2, a negative
	// value disables retrying.
	Retries int `yaml:"retries,omitempty"`
	// Backoff is fixed, linear (default) or exponential.
	Backoff string `yaml:"backoff,omitempty"`
}

// UnitConfig declares one unit for the stock binary.
type UnitConfig struct {
	Name string   `yaml:"name"`
	Kind UnitKind `yaml:"kind"`
	// Foreach lists the source patterns the unit fans out over.
	Foreach Patterns `yaml:"foreach,omitempty"`
	// Target is an output path template such as "{dir}/{stem}.html".
	Target    string   `yaml:"target,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Layout is an html/template file, relative to the source directory,
	// that page units render through.
	Layout string `yaml:"layout,omitempty"`
	// Markdown renders page bodies through goldmark. Defaults to true for
	// .md and .markdown sources.
	Markdown *bool `yaml:"markdown,omitempty"`
	// Stages is the pipeline applied by pipeline units.
	Stages []StageConfig `yaml:"stages,omitempty"`
}

// StageConfig is one pipeline stage. Exactly one of Concat, Run and Into is set.
type StageConfig struct {
	// Concat joins every stream into one named stream.
	Concat string `yaml:"concat,omitempty"`
	// Run pipes all streams through a command; Name names its output.
	Run  []string `yaml:"run,omitempty"`
	Name string   `yaml:"name,omitempty"`
	// Into moves every stream under a directory.
	Into string `yaml:"into,omitempty"`
}

// Patterns accepts either a single pattern or a list of them. List records
// which form was written: a single pattern must match something, a list
// may match nothing.
type Patterns struct {
	Items []string
	List  bool
}

// IsZero reports whether no foreach was given.
func (p Patterns) IsZero() bool { return !p.List && len(p.Items) == 0 }

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Patterns) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*p = Patterns{Items: []string{value.Value}}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = Patterns{Items: list, List: true}
		return nil
	default:
		return fmt.Errorf("line %d: foreach must be a pattern or a list of patterns", value.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (p Patterns) MarshalYAML() (any, error) {
	if !p.List && len(p.Items) == 1 {
		return p.Items[0], nil
	}
	return p.Items, nil
}
