package payhoa

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can react without matching message
// text. The kind strings are stable: the tool surface exposes them verbatim.
type Kind string

const (
	// KindCredentialSource means no usable credentials exist (env vars unset
	// and the 1Password CLI unavailable or failing). Fatal configuration
	// error, raised before any network activity.
	KindCredentialSource Kind = "credential_source_unavailable"

	// KindAuthenticationFailed covers a rejected login, a login transport
	// failure, or a session the upstream refused twice in a row. Never
	// retried automatically beyond the single re-login a rejected session
	// gets.
	KindAuthenticationFailed Kind = "authentication_failed"

	// KindSessionStoreIO is a session file read or write problem.
	// Recoverable: the session continues in memory.
	KindSessionStoreIO Kind = "session_store_io"

	// KindUpstreamUnavailable is a transport failure or 5xx. Retried with
	// backoff a bounded number of times inside one logical call.
	KindUpstreamUnavailable Kind = "upstream_unavailable"

	// KindUpstreamRejected is a non-auth 4xx. Not retried; carries a trimmed
	// body snippet for context.
	KindUpstreamRejected Kind = "upstream_rejected"

	// KindMalformedResponse means a payload did not decode into the expected
	// shape. Indicates upstream contract drift; not retried.
	KindMalformedResponse Kind = "malformed_response"

	// KindInvalidInput is a caller mistake caught before any network I/O.
	KindInvalidInput Kind = "invalid_input"

	// KindNotFound means an id the caller supplied does not exist upstream.
	KindNotFound Kind = "not_found"
)

// Error is the error type for PayHOA operations.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the operation that failed (e.g. "list_transactions", "login").
	Op string

	// Status is the HTTP status code when one was received.
	Status int

	// Body is a trimmed upstream payload snippet, kept for rejected
	// requests.
	Body string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface. The message always begins with the
// stable kind string so the tool surface can pass it through unchanged.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		fmt.Fprintf(&b, ": %s", e.Op)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

// Unwrap implements the errors.Unwrap interface.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or "" when err is not (and does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// invalidInput builds a caller-mistake error for op.
func invalidInput(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}
