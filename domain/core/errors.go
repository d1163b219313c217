package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors surface at plan construction, before any computation
	ErrConfiguration       = errors.New("configuration error")
	ErrUnknownField        = fmt.Errorf("%w: unknown metadata field", ErrConfiguration)
	ErrDuplicateExperiment = fmt.Errorf("%w: duplicate experiment id", ErrConfiguration)
	ErrDuplicateGroup      = fmt.Errorf("%w: duplicate group", ErrConfiguration)
	ErrUnregisteredExport  = fmt.Errorf("%w: unregistered group export", ErrConfiguration)
	ErrUnrelatedPair       = fmt.Errorf("%w: unrelated subtraction pair", ErrConfiguration)
	ErrInvalidParameter    = fmt.Errorf("%w: invalid analysis parameter", ErrConfiguration)
	ErrMalformedPredicate  = fmt.Errorf("%w: malformed predicate", ErrConfiguration)
	ErrUnsupportedFormat   = fmt.Errorf("%w: unsupported format", ErrConfiguration)

	// Degenerate-input errors are fatal to one operation only
	ErrDegenerateInput   = errors.New("degenerate input")
	ErrEmptyGroup        = fmt.Errorf("%w: empty peak set", ErrDegenerateInput)
	ErrTooFewExperiments = fmt.Errorf("%w: too few contributing experiments", ErrDegenerateInput)
	ErrIdenticalGroups   = fmt.Errorf("%w: identical experiment sets", ErrDegenerateInput)

	// Backend and I/O failures
	ErrBackend = errors.New("backend computation failed")
	ErrIO      = errors.New("i/o failure")

	// Dependency errors mark units skipped because an input unit failed
	ErrDependencyFailed = errors.New("dependency failed")
)

// NewConfigError builds a configuration error with context
func NewConfigError(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// NewDegenerateError builds a degenerate-input error with context
func NewDegenerateError(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// NewIOError wraps a file-system failure
func NewIOError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}

// NewBackendError wraps a numerical failure from the statistics backend
func NewBackendError(unit string, err error) error {
	return fmt.Errorf("%w for %s: %w", ErrBackend, unit, err)
}

// Error checking helpers
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsDegenerateError(err error) bool {
	return errors.Is(err, ErrDegenerateInput)
}

func IsBackendError(err error) bool {
	return errors.Is(err, ErrBackend)
}

func IsIOError(err error) bool {
	return errors.Is(err, ErrIO)
}
