package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrUnauthorized indicates the user is not on the allow-list.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput indicates a rejected reply (bad format, empty name, no files).
	ErrInvalidInput = errors.New("invalid input")

	// ErrCompression indicates the archive backend failed or could not honor a password.
	ErrCompression = errors.New("compression failed")

	// ErrSplit indicates an I/O failure while splitting an artifact into parts.
	ErrSplit = errors.New("split failed")

	// ErrDelivery indicates the transport rejected an artifact or part.
	ErrDelivery = errors.New("delivery failed")

	// ErrResourceLimit indicates a session, file count or file size cap was hit.
	ErrResourceLimit = errors.New("resource limit exceeded")
)

// Error wraps an underlying error with a classification and a user-facing reason.
// It preserves the original error in the chain for inspection via errors.As.
type Error struct {
	// Kind is the sentinel error for classification (e.g., ErrCompression).
	Kind error
	// Op is the operation that failed (e.g., "build", "split", "stage").
	Op string
	// Reason is safe to show to the user.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s: %v: %s: %v", e.Op, e.Kind, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Reason)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewError creates a classified error.
func NewError(kind error, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// CompressionError classifies a backend failure.
func CompressionError(reason string, err error) error {
	return NewError(ErrCompression, "build", reason, err)
}

// SplitError classifies a splitter I/O failure.
func SplitError(reason string, err error) error {
	return NewError(ErrSplit, "split", reason, err)
}

// InvalidInputError classifies a rejected user reply.
func InvalidInputError(reason string) error {
	return NewError(ErrInvalidInput, "input", reason, nil)
}

// ResourceLimitError classifies a cap violation.
func ResourceLimitError(reason string) error {
	return NewError(ErrResourceLimit, "limit", reason, nil)
}

// Reason extracts the user-facing reason from a classified error.
// Returns fallback when err carries no reason.
func Reason(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return fallback
}
