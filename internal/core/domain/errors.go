package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// Point lookups return it instead of throwing; callers treat it as absence.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable indicates a backend cannot open its underlying
	// engine. The repository factory falls back to a less capable backend.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDuplicateFingerprint indicates an insert was rejected because a task
	// with the same file fingerprint already exists.
	ErrDuplicateFingerprint = errors.New("duplicate file fingerprint")

	// ErrPersistenceFailure indicates a write succeeded in memory but failed
	// durably. The session continues in a degraded-durability state.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAnalysisFailed indicates the image analysis provider returned an error.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrSynthesisFailed indicates the speech synthesis provider returned an error.
	ErrSynthesisFailed = errors.New("speech synthesis failed")

	// ErrRateLimited indicates the provider's quota was exceeded.
	// Callers apply bounded exponential backoff before re-invoking.
	ErrRateLimited = errors.New("rate limited")
)
