package contracts

import (
	"errors"
	"fmt"
)

// Checkpoint error codes. They are persisted in the checkpoint store and
// aggregated in RunSummary.ErrorCounts.
const (
	CodeFetchTransient    = "fetch_transient"
	CodeNoData            = "no_data"
	CodeFetchRejected     = "fetch_rejected"
	CodeInsufficientData  = "insufficient_data"
	CodeNonPositivePrice  = "non_positive_price"
	CodeExtremeMove       = "extreme_move"
	CodeNonFinite         = "non_finite"
	CodeIncompleteMetrics = "incomplete_metrics"
	CodeSinkError         = "sink_error"
	CodeCheckpointError   = "checkpoint_error"
	CodeInternal          = "internal"
)

// ErrStoreUnavailable is fatal for a whole run
var ErrStoreUnavailable = errors.New("checkpoint store unavailable")

// FetchKind classifies source failures
type FetchKind int

const (
	// FetchTransient covers network errors, timeouts, throttling and 5xx
	FetchTransient FetchKind = iota
	// FetchNotFound means the symbol has no data at the provider
	FetchNotFound
	// FetchRejected means the provider refused the request (non-retryable 4xx)
	FetchRejected
)

func (k FetchKind) String() string {
	switch k {
	case FetchTransient:
		return "transient"
	case FetchNotFound:
		return "not_found"
	case FetchRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FetchError is returned by SourceAdapter implementations
type FetchError struct {
	Kind   FetchKind
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewTransient wraps err as a transient fetch error
func NewTransient(symbol string, err error) *FetchError {
	return &FetchError{Kind: FetchTransient, Symbol: symbol, Err: err}
}

// NewNotFound builds a "no data" fetch error
func NewNotFound(symbol string, err error) *FetchError {
	return &FetchError{Kind: FetchNotFound, Symbol: symbol, Err: err}
}

// NewRejected builds a non-retryable fetch error
func NewRejected(symbol string, err error) *FetchError {
	return &FetchError{Kind: FetchRejected, Symbol: symbol, Err: err}
}

// IsTransient reports whether err is a transient fetch error
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchTransient
}

// IsNotFound reports whether err is a "no data" fetch error
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchNotFound
}

// ValidationError rejects a raw series before any computation
type ValidationError struct {
	Code   string // one of CodeInsufficientData, CodeNonPositivePrice, CodeExtremeMove, CodeNonFinite
	Index  int    // offending point, -1 when not applicable
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("validation %s at point %d: %s", e.Code, e.Index, e.Detail)
	}
	return fmt.Sprintf("validation %s: %s", e.Code, e.Detail)
}

// ComputationError means mandatory snapshot fields could not be determined
type ComputationError struct {
	Code    string
	Missing []string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation %s: missing %v", e.Code, e.Missing)
}

// SinkError is returned by SinkAdapter implementations. Always retryable.
type SinkError struct {
	Symbol string
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink upsert %s: %v", e.Symbol, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// CheckpointError wraps a failed checkpoint write for one symbol
type CheckpointError struct {
	Symbol string
	Err    error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Symbol, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// ErrorCode maps any per-symbol error to its checkpoint code
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case FetchNotFound:
			return CodeNoData
		case FetchRejected:
			return CodeFetchRejected
		default:
			return CodeFetchTransient
		}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}

	var ce *ComputationError
	if errors.As(err, &ce) {
		return ce.Code
	}

	var se *SinkError
	if errors.As(err, &se) {
		return CodeSinkError
	}

	var cpe *CheckpointError
	if errors.As(err, &cpe) {
		return CodeCheckpointError
	}

	return CodeInternal
}
