// Package errors defines the failure kinds of the topic-model pipeline and
// an AppError wrapper that carries a human message and a process exit code
// while staying transparent to errors.Is / errors.As.
package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidCorpus        = errors.New("invalid corpus")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNumericalInstability = errors.New("numerical instability")
	ErrDegenerateTopic      = errors.New("degenerate topic")
	ErrMissingDocument      = errors.New("missing document")
	ErrTimeout              = errors.New("operation timed out")
	ErrSinkUnavailable      = errors.New("export sink unavailable")
)

// Exit codes returned by the command-line tools.
const (
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitCorpus        = 3
	ExitNumerical     = 4
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCodeFor(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCodeFor(sentinel),
	}
}

// Is reports whether any error in err's chain matches target. It re-exports
// the standard library function so callers only import one errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As re-exports the standard library errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Reclassify wraps err as a NumericalInstability unless it already is one.
func Reclassify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNumericalInstability) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrNumericalInstability, fmt.Sprintf(format, args...), err)
}

// FromContext converts a context error into ErrTimeout when the deadline
// expired and passes cancellation through unchanged.
func FromContext(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", operation, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func ExitCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrInvalidCorpus), errors.Is(err, ErrMissingDocument):
		return ExitCorpus
	case errors.Is(err, ErrNumericalInstability), errors.Is(err, ErrDegenerateTopic):
		return ExitNumerical
	default:
		return ExitFailure
	}
}
