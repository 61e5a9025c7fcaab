package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

// Example returns the configuration written by Init.
func Example() *Config {
	return &Config{
		Version: Version,
		Source:  "./site",
		Output:  DefaultOutput,
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Watch: WatchConfig{
			PollInterval: DefaultPollInterval.String(),
			UseGitignore: true,
		},
		Serve: ServeConfig{Host: DefaultServeHost, Port: DefaultServePort, Metrics: true},
		Units: []UnitConfig{
			{Name: "css", Kind: UnitAsset, Foreach: Patterns{Items: []string{"css/*.css"}}},
			{Name: "js", Kind: UnitPipeline, Foreach: Patterns{Items: []string{"js/*.js"}}, Stages: []StageConfig{{Concat: "js/site.js"}}},
			{Name: "cats", Kind: UnitPage, Foreach: Patterns{Items: []string{"cats/*.md"}}, Target: "{stem}.html", Layout: "templates/bio.html"},
			{Name: "index", Kind: UnitPage, Target: "index.html", Layout: "templates/index.html", DependsOn: []string{"cats"}},
		},
	}
}

// Init writes Example() to path. An existing file is only replaced when
// force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat configuration file").
			WithContext("path", path).
			Build()
	}
	data, err := yaml.Marshal(Example())
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal example configuration").Build()
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write configuration file").
			WithContext("path", path).
			Build()
	}
	return nil
}
