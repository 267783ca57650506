package memory

import (
	"context"
	"errors"
)

var (
	// ErrBackendUnavailable is wrapped by adapters when a backend cannot be
	// reached or rejects the operation for connectivity reasons.
	ErrBackendUnavailable = errors.New("memory: backend unavailable")

	// ErrExtractionFailure is wrapped by extractors when the model output
	// cannot be parsed into facts.
	ErrExtractionFailure = errors.New("memory: fact extraction failed")
)

// Failure kinds reported by Classify.
const (
	KindNone        = "none"
	KindUnavailable = "unavailable"
	KindExtraction  = "extraction"
	KindCanceled    = "canceled"
	KindTimeout     = "timeout"
	KindError       = "error"
)

// Classify maps err to a failure kind for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBackendUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrExtractionFailure):
		return KindExtraction
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindError
	}
}
