package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure surfaced by the extraction pipeline
type Kind string

const (
	KindInvalidDuration           Kind = "invalid_duration"
	KindAccountNotFound           Kind = "account_not_found"
	KindAccountForbidden          Kind = "account_forbidden"
	KindRateLimitExhausted        Kind = "rate_limit_exhausted"
	KindTransientFailureExhausted Kind = "transient_failure_exhausted"
	KindCorruptCheckpoint         Kind = "corrupt_checkpoint"
	KindSchemaViolation           Kind = "schema_violation"
	KindConfig                    Kind = "config"
	KindOutput                    Kind = "output"
	KindUnknown                   Kind = "unknown"
)

// Sentinels for errors.Is comparisons. Matching is by Kind only.
var (
	ErrInvalidDuration           = &Error{Kind: KindInvalidDuration}
	ErrAccountNotFound           = &Error{Kind: KindAccountNotFound}
	ErrAccountForbidden          = &Error{Kind: KindAccountForbidden}
	ErrRateLimitExhausted        = &Error{Kind: KindRateLimitExhausted}
	ErrTransientFailureExhausted = &Error{Kind: KindTransientFailureExhausted}
	ErrCorruptCheckpoint         = &Error{Kind: KindCorruptCheckpoint}
	ErrSchemaViolation           = &Error{Kind: KindSchemaViolation}
	ErrConfig                    = &Error{Kind: KindConfig}
	ErrOutput                    = &Error{Kind: KindOutput}
)

// Error is a classified pipeline error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRecoverable reports whether a failure of this kind is handled locally
// instead of aborting the run
func IsRecoverable(kind Kind) bool {
	return kind == KindCorruptCheckpoint
}

// IsRetryable reports whether the operation that produced this kind may be
// attempted again by the caller
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindAccountNotFound, KindAccountForbidden, KindRateLimitExhausted,
		KindTransientFailureExhausted, KindInvalidDuration, KindSchemaViolation, KindConfig:
		return false
	default:
		return true
	}
}

// ExitCode maps an error to a process exit status. Each kind gets its own code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindInvalidDuration:
		return 2
	case KindConfig:
		return 3
	case KindAccountNotFound:
		return 4
	case KindAccountForbidden:
		return 5
	case KindRateLimitExhausted:
		return 6
	case KindTransientFailureExhausted:
		return 7
	case KindSchemaViolation:
		return 8
	case KindOutput:
		return 9
	case KindCorruptCheckpoint:
		return 10
	default:
		return 1
	}
}
