// Package errors provides the core's standardized error kinds, adapted
// from the wider service's StandardError pattern but scoped to the eight
// surface names the core is allowed to return.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind is one of the §7 error-handling-design surface names.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindAlreadyExists      Kind = "AlreadyExists"
	KindInvalidInput       Kind = "InvalidInput"
	KindAlreadySyncing     Kind = "AlreadySyncing"
	KindPerFileFailure     Kind = "PerFileFailure"
	KindVectorIndexFailure Kind = "VectorIndexFailure"
	KindBudgetExceeded     Kind = "BudgetExceeded"
	KindInternal           Kind = "Internal"
)

// CoreError is the error type returned across every exposed core
// operation. Its Kind lets callers branch on category without string
// matching the message.
type CoreError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// New creates a CoreError of the given kind.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap creates a CoreError of the given kind around a lower-level cause.
func Wrap(kind Kind, message string, err error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Err: err}
}

// NotFound, AlreadyExists, InvalidInput, and AlreadySyncing are
// convenience constructors for the kinds most call sites reach for.
func NotFound(format string, args ...interface{}) *CoreError {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func AlreadyExists(format string, args ...interface{}) *CoreError {
	return New(KindAlreadyExists, fmt.Sprintf(format, args...))
}

func InvalidInput(format string, args ...interface{}) *CoreError {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

func AlreadySyncing(collection string) *CoreError {
	return New(KindAlreadySyncing, fmt.Sprintf("collection %q is already syncing", collection))
}

// Internal wraps an unexpected error, sanitizing it before it is safe to
// return to a caller.
func Internal(err error) *CoreError {
	return &CoreError{Kind: KindInternal, Message: Sanitize(err.Error()), Err: err}
}

var (
	credentialPattern = regexp.MustCompile(`(?i)(api[_-]?key|password|secret|token)\s*[:=]\s*\S+`)
	filePathPattern    = regexp.MustCompile(`(?:[A-Za-z]:\\|/)[\w./\\-]+`)
)

// Sanitize scrubs credentials, URLs with embedded secrets, and
// filesystem paths from a message before it leaves the core, per the
// §7 propagation policy.
func Sanitize(msg string) string {
	msg = credentialPattern.ReplaceAllString(msg, "$1=[redacted]")
	msg = sanitizeURLs(msg)
	msg = filePathPattern.ReplaceAllString(msg, "[path]")
	return msg
}

func sanitizeURLs(msg string) string {
	fields := strings.Fields(msg)
	for i, f := range fields {
		u, err := url.Parse(f)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		if u.User != nil {
			u.User = url.UserPassword("redacted", "redacted")
			fields[i] = u.String()
		}
	}
	return strings.Join(fields, " ")
}

// Is reports whether err (or something it wraps) is a CoreError of kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ce, ok := err.(*CoreError); ok && ce.Kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
