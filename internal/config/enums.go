package config

import "git.home.luguber.info/inful/sitepress/internal/foundation/normalization"

// LogLevel is the minimum level logged.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// UnitKind is the kind of a declared unit.
type UnitKind string

const (
	UnitPage     UnitKind = "page"
	UnitAsset    UnitKind = "asset"
	UnitPipeline UnitKind = "pipeline"
)

var (
	logLevels = normalization.NewEnum("logging.level", map[string]LogLevel{
		"debug":   LogLevelDebug,
		"info":    LogLevelInfo,
		"warn":    LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
	})

	logFormats = normalization.NewEnum("logging.format", map[string]LogFormat{
		"text": LogFormatText,
		"json": LogFormatJSON,
	})

	unitKinds = normalization.NewEnum("unit kind", map[string]UnitKind{
		"page":     UnitPage,
		"asset":    UnitAsset,
		"pipeline": UnitPipeline,
	})
)
