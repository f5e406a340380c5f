// Package apperr defines the sentinel errors shared across the service's
// components, matched with errors.Is rather than type assertions.
package apperr

import "errors"

var (
	// ErrKVUnavailable is returned by the KV gateway when neither the writer
	// nor the reader client is in a ready state.
	ErrKVUnavailable = errors.New("kv: unavailable")

	// ErrStorageTransient marks a durable-store error the retry harness
	// considers worth retrying.
	ErrStorageTransient = errors.New("store: transient error")

	// ErrStorageFatal marks a durable-store error that will not succeed on
	// retry.
	ErrStorageFatal = errors.New("store: fatal error")

	// ErrConflict marks a uniqueness violation on registration.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a missing lookup target.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated marks a missing or invalid credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden marks a caller that authenticated but is not permitted.
	ErrForbidden = errors.New("forbidden")
)
