package services

import "errors"

var (
	// ErrAuthenticity: bad signature, stale timestamp or malformed payload.
	ErrAuthenticity = errors.New("webhook authenticity check failed")
	// ErrConfiguration: a secret, key or URL the operation needs is unset.
	ErrConfiguration = errors.New("billing configuration missing")
	// ErrLookupMiss: the referenced entity does not exist locally.
	ErrLookupMiss = errors.New("no matching entitlement record")
	// ErrWriteConflict: optimistic concurrency retries were exhausted.
	ErrWriteConflict = errors.New("entitlement write conflict")
	// ErrUpstreamUnavailable: the billing provider failed or timed out.
	ErrUpstreamUnavailable = errors.New("billing provider unavailable")
	// ErrCustomerMissing: the provider has no live customer under the ref.
	ErrCustomerMissing = errors.New("billing customer missing or deleted")
)
