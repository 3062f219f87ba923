// Package fault carries the error taxonomy for the ask pipeline. Every error
// that crosses a package boundary on the way back to the caller is wrapped in
// a *Error so the originating kind survives intact.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfigInvalid         Kind = "config_invalid"
	KindConnectionRefused     Kind = "connection_refused"
	KindAuthenticationFailed  Kind = "authentication_failed"
	KindCertificateInvalid    Kind = "certificate_invalid"
	KindConnectTimeout        Kind = "connect_timeout"
	KindCompletionUnavailable Kind = "completion_service_unavailable"
	KindTranslationMalformed  Kind = "translation_malformed"
	KindTranslationRefused    Kind = "translation_refused"
	KindTranslateTimeout      Kind = "translate_timeout"
	KindQuerySyntax           Kind = "query_syntax_error"
	KindQueryTimeout          Kind = "query_timeout"
	KindPermissionDenied      Kind = "permission_denied"
	KindExecuteTimeout        Kind = "execute_timeout"
	KindConnectionLost        Kind = "connection_lost"
	KindUnknown               Kind = "unknown"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with an operation name and a kind. If err is already a
// *Error its kind is preserved and only the op chain grows, so the first
// classification wins.
func New(kind Kind, op string, err error) *Error {
	var inner *Error
	if errors.As(err, &inner) {
		kind = inner.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a leaf fault with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may reasonably retry the request.
// Timeouts and lost connections are transient; malformed config, refused
// translations and syntax errors are not.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnectTimeout, KindTranslateTimeout, KindExecuteTimeout,
		KindQueryTimeout, KindConnectionLost, KindCompletionUnavailable,
		KindConnectionRefused:
		return true
	default:
		return false
	}
}
