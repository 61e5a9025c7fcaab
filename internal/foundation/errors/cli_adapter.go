package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CLIErrorAdapter reports a command's final error to the terminal and picks
// the exit status.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
}

// NewCLIErrorAdapter returns an adapter writing to stderr. A nil logger
// means slog.Default().
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger, out: os.Stderr}
}

// FormatError is the one line shown to the user. Internal errors are
// reduced to a hint unless the adapter is verbose.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	if !a.verbose && HasCategory(err, CategoryInternal) {
		return "Internal error occurred (use -v for details)"
	}
	return "Error: " + err.Error()
}

// HandleError logs err, prints it, and returns the exit status.
func (a *CLIErrorAdapter) HandleError(err error) int {
	if err == nil {
		return 0
	}
	if ce, ok := AsClassified(err); ok {
		a.logger.LogAttrs(context.Background(), levelFor(ce.severity), ce.message, ce.attrs()...)
	} else {
		a.logger.Error("Unclassified error", "error", err)
	}
	_, _ = fmt.Fprintln(a.out, a.FormatError(err))
	return ExitCode(err)
}
