package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// Fields is the structured context carried by a ClassifiedError.
type Fields map[string]any

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	v, ok := f[key]
	return v, ok
}

// GetString returns the value stored under key when it is a string.
func (f Fields) GetString(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

// with returns a copy of f with key set.
func (f Fields) with(key string, value any) Fields {
	out := make(Fields, len(f)+1)
	maps.Copy(out, f)
	out[key] = value
	return out
}

// ClassifiedError is an error with a category, a severity, a retry hint and
// structured context. Values are immutable once built.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	fields   Fields
}

// Error renders "category: message (k=v, ...): cause" with context keys
// sorted, so a declaration mistake can be located from the text alone.
func (e *ClassifiedError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.category))
	b.WriteString(": ")
	b.WriteString(e.message)
	if len(e.fields) > 0 {
		b.WriteString(" (")
		for i, k := range slices.Sorted(maps.Keys(e.fields)) {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.fields[k])
		}
		b.WriteByte(')')
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory      { return e.category }
func (e *ClassifiedError) Severity() ErrorSeverity      { return e.severity }
func (e *ClassifiedError) RetryStrategy() RetryStrategy { return e.retry }
func (e *ClassifiedError) Message() string              { return e.message }
func (e *ClassifiedError) Context() Fields              { return e.fields }

// CanRetry reports whether a later attempt may succeed without the user
// touching the declaration.
func (e *ClassifiedError) CanRetry() bool { return e.retry == RetryOnChange }

// WithContext returns a copy of e with key set.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	cp := *e
	cp.fields = e.fields.with(key, value)
	return &cp
}

// Is matches another ClassifiedError with the same category and message,
// which lets callers compare against sentinel values.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	return ok && e.category == other.category && e.message == other.message
}

// attrs flattens e for structured logging.
func (e *ClassifiedError) attrs() []slog.Attr {
	out := []slog.Attr{slog.String("category", string(e.category))}
	for _, k := range slices.Sorted(maps.Keys(e.fields)) {
		out = append(out, slog.Any(k, e.fields[k]))
	}
	if e.cause != nil {
		out = append(out, slog.String("cause", e.cause.Error()))
	}
	return out
}

// AsClassified finds the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// HasCategory reports whether the first ClassifiedError in err's chain has
// category c.
func HasCategory(err error, c ErrorCategory) bool {
	ce, ok := AsClassified(err)
	return ok && ce.category == c
}

// GetCategory returns the category of err, or CategoryInternal when err
// carries none.
func GetCategory(err error) ErrorCategory {
	if ce, ok := AsClassified(err); ok {
		return ce.category
	}
	return CategoryInternal
}

func levelFor(s ErrorSeverity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
