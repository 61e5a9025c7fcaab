package workspace

import (
	"log/slog"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
)

// TempOutput is the output value that selects a temporary directory.
const TempOutput = ":temp:"

// InheritEnv carries a parent's temporary output directory to its children.
const InheritEnv = "SITEPRESS_TEMP_OUTPUT"

// Manager owns one output directory.
type Manager struct {
	baseDir   string
	dir       string
	temporary bool
	owned     bool
	logger    *slog.Logger
}

// ForOutput returns a manager for the configured output. Relative paths are
// made absolute against the working directory.
func ForOutput(output string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{logger: logger}
	if output != TempOutput {
		m.dir = output
		if abs, err := filepath.Abs(output); err == nil {
			m.dir = abs
		}
		return m
	}
	m.temporary = true
	if inherited := os.Getenv(InheritEnv); inherited != "" {
		m.dir = inherited
		return m
	}
	m.baseDir = os.TempDir()
	m.owned = true
	return m
}

// NewTempManager creates a manager for a temporary directory under baseDir.
func NewTempManager(baseDir string, logger *slog.Logger) *Manager {
	m := ForOutput(TempOutput, logger)
	if m.owned && baseDir != "" {
		m.baseDir = baseDir
	}
	return m
}

// Create makes sure the directory exists.
func (m *Manager) Create() error {
	if m.owned {
		if m.dir != "" {
			return nil
		}
		dir, err := os.MkdirTemp(m.baseDir, "sitepress-*")
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create temporary output directory").
				WithContext("base", m.baseDir).
				Build()
		}
		m.dir = dir
		m.logger.Info("Created temporary output directory", logfields.Path(dir))
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create output directory").
			WithContext("path", m.dir).
			Build()
	}
	return nil
}

// Path returns the output directory, empty for a temporary directory that
// has not been created yet.
func (m *Manager) Path() string { return m.dir }

// Temporary reports whether the output was requested as ":temp:".
func (m *Manager) Temporary() bool { return m.temporary }

// ChildEnv returns the environment entries a child process needs to reuse
// this directory.
func (m *Manager) ChildEnv() []string {
	if !m.temporary || m.dir == "" {
		return nil
	}
	return []string{InheritEnv + "=" + m.dir}
}

// Cleanup removes a temporary directory this manager created. Inherited and
// configured directories are left alone.
func (m *Manager) Cleanup() error {
	if !m.owned || m.dir == "" {
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to remove temporary output directory").
			WithContext("path", m.dir).
			Build()
	}
	m.logger.Info("Removed temporary output directory", logfields.Path(m.dir))
	m.dir = ""
	return nil
}
