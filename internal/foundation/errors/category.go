package errors

import "net/http"

// ErrorCategory groups failures by what the user has to fix.
type ErrorCategory string

const (
	// CategoryConfig covers mistakes in a site declaration: bad target
	// templates, unknown dependency ids, targets escaping the output root.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"
	// CategoryDocument covers malformed source input such as unterminated
	// front matter.
	CategoryDocument   ErrorCategory = "document"
	CategoryDependency ErrorCategory = "dependency"
	CategoryBuild      ErrorCategory = "build"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryMonitor    ErrorCategory = "monitor"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity is how far a failure reaches.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

// RetryStrategy says what has to happen before the same operation can
// succeed.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"
	RetryOnChange   RetryStrategy = "on_change" // the next source change may fix it
	RetryUserAction RetryStrategy = "user"
)

// profile is everything derived from a category alone.
type profile struct {
	severity ErrorSeverity
	retry    RetryStrategy
	exitCode int
	status   int
}

var profiles = map[ErrorCategory]profile{
	CategoryValidation: {SeverityFatal, RetryNever, 2, http.StatusBadRequest},
	CategoryNotFound:   {SeverityFatal, RetryUserAction, 3, http.StatusNotFound},
	CategoryDocument:   {SeverityError, RetryOnChange, 4, http.StatusUnprocessableEntity},
	CategoryDependency: {SeverityFatal, RetryUserAction, 6, http.StatusUnprocessableEntity},
	CategoryConfig:     {SeverityFatal, RetryUserAction, 7, http.StatusBadRequest},
	CategoryInternal:   {SeverityFatal, RetryNever, 10, http.StatusInternalServerError},
	CategoryBuild:      {SeverityError, RetryOnChange, 11, http.StatusUnprocessableEntity},
	CategoryFileSystem: {SeverityError, RetryNever, 11, http.StatusInternalServerError},
	CategoryMonitor:    {SeverityError, RetryNever, 12, http.StatusServiceUnavailable},
}

func profileOf(c ErrorCategory) profile {
	if p, ok := profiles[c]; ok {
		return p
	}
	return profile{SeverityError, RetryNever, 1, http.StatusInternalServerError}
}

// ExitCode is the process exit status for err. Unclassified errors exit 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ce, ok := AsClassified(err); ok {
		return profileOf(ce.category).exitCode
	}
	return 1
}

// HTTPStatus is the response status for err. Unclassified errors are 500s.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if ce, ok := AsClassified(err); ok {
		return profileOf(ce.category).status
	}
	return http.StatusInternalServerError
}
