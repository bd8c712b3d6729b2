package models

import "errors"

// Static errors shared across the engine. Callers branch with errors.Is;
// wrapping with fmt.Errorf("...: %w", err) preserves the sentinel.
var (
	// ErrInvalidInput marks a malformed patient case (empty symptoms, age
	// out of range, non-enum severity). Reported to the caller, no retry.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEncoderUnavailable marks an embedding backend failure.
	ErrEncoderUnavailable = errors.New("encoder unavailable")

	// ErrIndexUnavailable marks a vector store failure after retries.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrCacheUnavailable marks an embedding cache failure. Logged and
	// treated as a miss; never fails a request.
	ErrCacheUnavailable = errors.New("embedding cache unavailable")

	// ErrTimeout marks a deadline expiry with no partial result assembled.
	ErrTimeout = errors.New("analysis deadline exceeded")

	// ErrSchemaMismatch marks an existing collection whose dimension or
	// distance metric differs from the configured one. Ingest-time only.
	ErrSchemaMismatch = errors.New("collection schema mismatch")

	// ErrServiceUnavailable marks a request that could not assemble any
	// differential at all.
	ErrServiceUnavailable = errors.New("service unavailable")
)
