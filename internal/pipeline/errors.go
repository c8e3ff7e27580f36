package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/kyc-ledger/internal/config"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
)

// ErrParse marks a model response that could not be decoded. Stages recover
// it into a fallback; it never reaches AnalyzeDocument.
var ErrParse = errors.New("parse error")

// ErrPanic marks a recovered panic.
var ErrPanic = errors.New("panic during analysis")

// Error types reported on failed analyses.
const (
	ErrorTypeConfiguration = "ConfigurationError"
	ErrorTypeTransport     = "TransportError"
	ErrorTypeTimeout       = "TimeoutError"
	ErrorTypeCanceled      = "CanceledError"
	ErrorTypePanic         = "PanicError"
	ErrorTypeInternal      = "InternalError"
)

// ErrorType classifies err into one of the reported error types.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPanic):
		return ErrorTypePanic
	case errors.Is(err, extraction.ErrConfiguration), errors.Is(err, config.ErrMissingConfig):
		return ErrorTypeConfiguration
	case errors.Is(err, extraction.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case errors.Is(err, extraction.ErrTransport):
		return ErrorTypeTransport
	default:
		return ErrorTypeInternal
	}
}

// StageError records which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// parseError wraps a decode failure with ErrParse.
func parseError(task extraction.TaskID, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrParse, task, err)
}

// isFatal reports whether a service error must fail the stage even when the
// stage has a default: caller cancellation and configuration problems.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, extraction.ErrConfiguration)
}
