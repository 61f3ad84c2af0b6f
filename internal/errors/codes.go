// Package errors defines the numeric error-code taxonomy shared by every
// component of shardbase. See errors.go for the taxonomy classes themselves;
// this file only enumerates the stable codes tests and clients depend on.
package errors

// Code is a stable numeric error code. Codes are never renumbered:
// clients and replay logs key off the numeric value, not the message.
type Code int

const (
	// User errors: bad input, reported to the client, never crash the process.
	CodeBadValue         Code = 2
	CodeTypeMismatch     Code = 14
	CodeShardKeyNotFound Code = 61
	CodeDuplicateKey     Code = 11000
	CodeNamespaceInvalid Code = 73

	// Transient operational errors: caller should retry after a metadata
	// refresh or backoff; not logged at warning level on each occurrence.
	CodeNotMaster      Code = 10107
	CodeStaleConfig    Code = 13388
	CodeLockTimeout    Code = 24
	CodeWriteConflict  Code = 112
	CodeInterrupted    Code = 11601
	CodeExceededTime   Code = 50
	CodeCursorNotFound Code = 43

	// Assertion errors: invariant violation on a non-debug path.
	CodeInternalError    Code = 1
	CodeInvariantFailure Code = 67

	// Fatal errors: process cannot continue safely.
	CodeFatalAssertion Code = 40
	CodeClockSkew      Code = 10108
)

// Class identifies which of the four §7 taxonomy buckets a Code belongs to.
type Class int

const (
	ClassUser Class = iota
	ClassTransient
	ClassAssertion
	ClassFatal
)

var classOf = map[Code]Class{
	CodeBadValue:         ClassUser,
	CodeTypeMismatch:     ClassUser,
	CodeShardKeyNotFound: ClassUser,
	CodeDuplicateKey:     ClassUser,
	CodeNamespaceInvalid: ClassUser,

	CodeNotMaster:      ClassTransient,
	CodeStaleConfig:    ClassTransient,
	CodeLockTimeout:    ClassTransient,
	CodeWriteConflict:  ClassTransient,
	CodeInterrupted:    ClassTransient,
	CodeExceededTime:   ClassTransient,
	CodeCursorNotFound: ClassTransient,

	CodeInternalError:    ClassAssertion,
	CodeInvariantFailure: ClassAssertion,

	CodeFatalAssertion: ClassFatal,
	CodeClockSkew:      ClassFatal,
}

// ClassOf reports the taxonomy class for a code, defaulting to ClassAssertion
// for any code that was not registered above (better to over-log than to
// silently treat an unknown failure as routine).
func ClassOf(c Code) Class {
	if cl, ok := classOf[c]; ok {
		return cl
	}
	return ClassAssertion
}

// Retryable reports whether the taxonomy class permits blind client retry
// after the caller refreshes whatever metadata the error names.
func (c Class) Retryable() bool {
	return c == ClassTransient
}
