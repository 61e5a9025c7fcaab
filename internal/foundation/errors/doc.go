// Package errors provides the classified error primitives used across sitepress.
//
// Every failure the build engine raises is a ClassifiedError carrying a
// category (config, document, dependency, filesystem, ...), a severity and a
// structured context (task id, template, offending item) so that a bad site
// declaration can be located from the message alone.
//
// Example usage:
//
//	err := errors.ConfigError("unknown field in target template").
//		WithContext("task", "posts").
//		WithContext("template", "{slug}.html").
//		WithCause(ErrUnknownField).
//		Build()
package errors
