package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyTask       = "task"
	KeyUnitKind   = "unit_kind"
	KeyTarget     = "target"
	KeySource     = "source"
	KeyPattern    = "pattern"
	KeyPath       = "path"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyExitCode   = "exit_code"
	KeyError      = "error"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyAddr       = "addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr { return slog.String(KeyBuildID, id) }
func Task(id string) slog.Attr    { return slog.String(KeyTask, id) }
func UnitKind(k string) slog.Attr { return slog.String(KeyUnitKind, k) }
func Target(t string) slog.Attr   { return slog.String(KeyTarget, t) }
func Source(s string) slog.Attr   { return slog.String(KeySource, s) }
func Pattern(p string) slog.Attr  { return slog.String(KeyPattern, p) }
func Path(p string) slog.Attr     { return slog.String(KeyPath, p) }
func Count(n int) slog.Attr       { return slog.Int(KeyCount, n) }
func ExitCode(code int) slog.Attr { return slog.Int(KeyExitCode, code) }
func Method(m string) slog.Attr   { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr   { return slog.Int(KeyStatus, code) }
func Addr(a string) slog.Attr     { return slog.String(KeyAddr, a) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
