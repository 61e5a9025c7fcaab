package errors

// ErrorBuilder assembles a ClassifiedError.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts an error in category c with that category's default
// severity and retry hint.
func NewError(c ErrorCategory, message string) *ErrorBuilder {
	p := profileOf(c)
	return &ErrorBuilder{err: ClassifiedError{
		category: c,
		severity: p.severity,
		retry:    p.retry,
		message:  message,
	}}
}

// WrapError is NewError with cause set.
func WrapError(cause error, c ErrorCategory, message string) *ErrorBuilder {
	return NewError(c, message).WithCause(cause)
}

func (b *ErrorBuilder) WithSeverity(s ErrorSeverity) *ErrorBuilder { b.err.severity = s; return b }
func (b *ErrorBuilder) WithRetry(r RetryStrategy) *ErrorBuilder    { b.err.retry = r; return b }
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder          { b.err.cause = err; return b }

func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.fields = b.err.fields.with(key, value)
	return b
}

// Warning downgrades the error so adapters log it at warn level.
func (b *ErrorBuilder) Warning() *ErrorBuilder { return b.WithSeverity(SeverityWarning) }

// OnChange marks the error as one the next source change may clear.
func (b *ErrorBuilder) OnChange() *ErrorBuilder { return b.WithRetry(RetryOnChange) }

// UserAction marks the error as needing the user to fix something.
func (b *ErrorBuilder) UserAction() *ErrorBuilder { return b.WithRetry(RetryUserAction) }

// Build returns the finished error. The builder may keep being used.
func (b *ErrorBuilder) Build() *ClassifiedError {
	e := b.err
	return &e
}

// ConfigError reports a mistake in the site declaration.
func ConfigError(message string) *ErrorBuilder { return NewError(CategoryConfig, message) }

func ValidationError(message string) *ErrorBuilder { return NewError(CategoryValidation, message) }

func NotFoundError(message string) *ErrorBuilder { return NewError(CategoryNotFound, message) }

// DocumentError reports malformed input in a single source document.
func DocumentError(message string) *ErrorBuilder { return NewError(CategoryDocument, message) }

// DependencyError reports a problem in the task graph.
func DependencyError(message string) *ErrorBuilder { return NewError(CategoryDependency, message) }

func BuildError(message string) *ErrorBuilder { return NewError(CategoryBuild, message) }

func FileSystemError(message string) *ErrorBuilder { return NewError(CategoryFileSystem, message) }

func MonitorError(message string) *ErrorBuilder { return NewError(CategoryMonitor, message) }

func InternalError(message string) *ErrorBuilder { return NewError(CategoryInternal, message) }
