package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Error is the error type returned across every shardbase package boundary.
// It carries a stable numeric Code (see codes.go) alongside a human message,
// mirroring the wire error shape of spec §6: {ok:0, code:int32, errmsg:string}.
type Error struct {
	Code    Code
	Message string
	// cause is preserved for %+v / Unwrap but never shown to clients; assertion
	// and fatal errors log it, user and transient errors do not need it.
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", ClassOf(e.Code).String(), e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a plain user/transient error with no wrapped cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an assertion error around cause, capturing a stack trace via
// github.com/pkg/errors so that a fatal-log line can print it. Use for
// "invariant violation in a non-debug path" per spec §7.
func Wrap(cause error, code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   pkgerrors.WithStack(cause),
	}
}

// StackTrace returns the captured stack, if any, for assertion/fatal errors
// built with Wrap. Returns "" for plain errors built with New.
func (e *Error) StackTrace() string {
	if e.cause == nil {
		return ""
	}
	return fmt.Sprintf("%+v", e.cause)
}

// CodeOf extracts the numeric code from err, defaulting to CodeInternalError
// for any error that did not originate from this package (e.g. an I/O error
// surfaced by the storage engine).
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var se *Error
	if ok := asError(err, &se); ok {
		return se.Code
	}
	return CodeInternalError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (c Class) String() string {
	switch c {
	case ClassUser:
		return "UserError"
	case ClassTransient:
		return "TransientError"
	case ClassAssertion:
		return "AssertionError"
	case ClassFatal:
		return "FatalError"
	default:
		return "UnknownError"
	}
}
