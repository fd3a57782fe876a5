package models

import "errors"

// ErrorKind closes the error taxonomy the core surfaces from the analysis
// engine up to the worker pool. Adapters never throw out of their own
// call; they report these kinds through a result envelope instead.
type ErrorKind string

const (
	ErrSegmentMissing          ErrorKind = "SegmentMissing"
	ErrFrameDecodeFailed       ErrorKind = "FrameDecodeFailed"
	ErrUnconfiguredCapability  ErrorKind = "UnconfiguredCapability"
	ErrAdapterTransient        ErrorKind = "AdapterTransient"
	ErrRemoteTimeout           ErrorKind = "RemoteTimeout"
	ErrRemoteUnreachable       ErrorKind = "RemoteUnreachable"
	ErrDuplicateSegmentAnalysis ErrorKind = "DuplicateSegmentAnalysis"
	ErrBroadcastDropped        ErrorKind = "BroadcastDropped"
	ErrConfigReloadFailed      ErrorKind = "ConfigReloadFailed"
)

// Retryable reports whether a failure of this kind should be retried
// with backoff rather than failed terminally.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrAdapterTransient, ErrRemoteTimeout, ErrRemoteUnreachable:
		return true
	default:
		return false
	}
}

// AnalysisError carries a structured ErrorKind alongside a human-readable
// cause, so the worker pool can decide retry vs. fail vs. drop without
// string matching.
type AnalysisError struct {
	Kind  ErrorKind
	Cause error
}

func (e *AnalysisError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *AnalysisError) Unwrap() error { return e.Cause }

// NewAnalysisError wraps cause with a structured kind.
func NewAnalysisError(kind ErrorKind, cause error) *AnalysisError {
	return &AnalysisError{Kind: kind, Cause: cause}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is
// an *AnalysisError, and reports whether one was found.
func KindOf(err error) (ErrorKind, bool) {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// ErrDuplicateProviderCapability is returned by the provider registry
// when an activation would leave two active providers claiming the same
// capability.
var ErrDuplicateProviderCapability = errors.New("capability already claimed by another active provider")

// ErrSecondStreamActive is returned when activating a stream while
// another stream is already active (single-tenant invariant).
var ErrSecondStreamActive = errors.New("another stream is already active")
