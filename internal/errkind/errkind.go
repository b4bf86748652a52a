// Package errkind defines the shared taxonomy of failure categories that the
// pipeline, HTTP handlers, and persistence layer map every error into, so no
// layer compares error strings to decide how to respond.
package errkind

import "net/http"

// Kind is a closed vocabulary of failure categories.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindMaterializeFailed  Kind = "materialize_failed"
	KindDecryptFailed      Kind = "decrypt_failed"
	KindExtractFailed      Kind = "extract_failed"
	KindRuleSelectFailed   Kind = "rule_select_failed"
	KindAgentUnavailable   Kind = "agent_unavailable"
	KindAgentTimeout       Kind = "agent_timeout"
	KindAgentCrash         Kind = "agent_crash"
	KindParseFailure       Kind = "parse_failure"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
	KindServerRestart      Kind = "server_restart"
)

// Retryable reports whether a task that failed with this Kind is safe to
// resubmit without operator intervention. ServerRestart is deliberately
// excluded (§7: retry = Manual) even though it is an operational rather
// than a request-caused failure — the orphaned task's own state is
// unknown, so auto-resubmission is not safe.
func (k Kind) Retryable() bool {
	switch k {
	case KindAgentTimeout, KindAgentUnavailable, KindInternal:
		return true
	default:
		return false
	}
}

// StatusCode returns the HTTP status an API response should use when this
// Kind is the terminal cause of a request-scoped failure.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAgentUnavailable:
		return http.StatusServiceUnavailable
	case KindAgentTimeout:
		return http.StatusGatewayTimeout
	case KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error wraps an underlying error with a Kind so callers can branch on
// category without string matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// As extracts the Kind of err if it is (or wraps) an *Error, defaulting to
// KindInternal otherwise.
func As(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	for {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
		if err == nil {
			break
		}
	}
	if e == nil {
		return KindInternal
	}
	return e.Kind
}
