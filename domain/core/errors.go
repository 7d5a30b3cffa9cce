package core

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Fit / resampling errors
	ErrNotConverged      = errors.New("fit has not converged")
	ErrInvalidTrialCount = errors.New("invalid bootstrap trial count")
	ErrNoData            = errors.New("no image data loaded")

	// Evaluation errors
	ErrDimensionMismatch   = errors.New("parameter vector length does not match model")
	ErrUndefinedQuantity   = errors.New("derived quantity is undefined")
	ErrEvaluationFailure   = errors.New("row evaluation failed")
	ErrUnsupportedFunction = errors.New("unsupported image function")

	// Summary errors
	ErrEmptyDistribution = errors.New("distribution has no values")
	ErrInvalidBinEdges   = errors.New("histogram bin edges must be strictly increasing")
)

// Kind is the error category reported for a failed row or operation.
type Kind string

const (
	KindNotConverged      Kind = "not_converged"
	KindInvalidTrialCount Kind = "invalid_trial_count"
	KindNoData            Kind = "no_data"
	KindDimensionMismatch Kind = "dimension_mismatch"
	KindUndefinedQuantity Kind = "undefined_quantity"
	KindUnsupported       Kind = "unsupported_function"
	KindEmptyDistribution Kind = "empty_distribution"
	KindInvalidBinEdges   Kind = "invalid_bin_edges"
	KindCanceled          Kind = "canceled"
	KindEvaluation        Kind = "evaluation_failure"
)

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrNotConverged, KindNotConverged},
	{ErrInvalidTrialCount, KindInvalidTrialCount},
	{ErrNoData, KindNoData},
	{ErrDimensionMismatch, KindDimensionMismatch},
	{ErrUndefinedQuantity, KindUndefinedQuantity},
	{ErrUnsupportedFunction, KindUnsupported},
	{ErrEmptyDistribution, KindEmptyDistribution},
	{ErrInvalidBinEdges, KindInvalidBinEdges},
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindCanceled},
}

// KindOf classifies err against the domain sentinels. Anything unrecognised
// is reported as KindEvaluation.
func KindOf(err error) Kind {
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindEvaluation
}

// EvaluationError wraps the failure of a single ensemble row.
type EvaluationError struct {
	Index int
	Cause error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%v at row %d: %v", ErrEvaluationFailure, e.Index, e.Cause)
}

// Unwrap exposes both the generic evaluation sentinel and the row cause.
func (e *EvaluationError) Unwrap() []error {
	return []error{ErrEvaluationFailure, e.Cause}
}

// Kind returns the category of the underlying cause.
func (e *EvaluationError) Kind() Kind {
	return KindOf(e.Cause)
}

// Error constructors with context
func NewDimensionError(want, got int) error {
	return fmt.Errorf("%w: expected %d parameters, got %d", ErrDimensionMismatch, want, got)
}

func NewTrialCountError(n int) error {
	return fmt.Errorf("%w: %d (must be positive)", ErrInvalidTrialCount, n)
}

func NewUndefinedError(reason string) error {
	return fmt.Errorf("%w: %s", ErrUndefinedQuantity, reason)
}

func NewUnsupportedFunctionError(funcType string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFunction, funcType)
}

// Error checking helpers
func IsUndefinedQuantity(err error) bool {
	return errors.Is(err, ErrUndefinedQuantity)
}

func IsDimensionMismatch(err error) bool {
	return errors.Is(err, ErrDimensionMismatch)
}

func IsFitStateError(err error) bool {
	return errors.Is(err, ErrNotConverged) ||
		errors.Is(err, ErrNoData)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidTrialCount) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInvalidBinEdges)
}
