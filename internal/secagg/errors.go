package secagg

import (
	"errors"
	"fmt"
)

// Error kinds shared across the protocol packages. Callers classify with
// errors.Is; diagnostics are attached by wrapping.
var (
	// ErrFailedPrecondition marks an operation that is not allowed in the
	// current protocol state.
	ErrFailedPrecondition = errors.New("failed precondition")
	// ErrInvalidArgument marks malformed input, e.g. a vector element at or
	// above its bound, or a share list of the wrong cardinality.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCancelled marks an operation interrupted by the async abort signal.
	ErrCancelled = errors.New("cancelled")
	// ErrInternal marks an invariant violation.
	ErrInternal = errors.New("internal")
)

func wrapInvalidf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

func wrapInternalf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInternal)...)
}
