// Package qudagerrors defines the error-kind taxonomy shared across QuDAG
// components (spec §7). Components absorb everything local to themselves
// and only ever hand one of these sentinels back to a caller.
package qudagerrors

import "errors"

var (
	// ErrMalformed means wire parsing or field validation failed. The
	// input is discarded; this error never crosses a peer boundary.
	ErrMalformed = errors.New("malformed input")

	// ErrUnauthenticated means a signature or AEAD tag failed to verify.
	// Callers get this single sentinel regardless of which check failed,
	// so no oracle is leaked to a forging sender.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConflict means admission or registration collided with an
	// existing record. Reported to the local submitter only.
	ErrConflict = errors.New("conflict")

	// ErrMissingDependency means referenced parents are not yet known.
	// The caller's input is buffered and retried automatically.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrExhausted means a bounded resource (circuit table, pending
	// buffer, cache) is full.
	ErrExhausted = errors.New("resource exhausted")

	// ErrTimeout means an operation exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled means a cancellation token fired. Never retried
	// automatically.
	ErrCancelled = errors.New("cancelled")

	// ErrStuck means consensus could not reach finality for a vertex
	// within finality_timeout. Not fatal; the application may resubmit.
	ErrStuck = errors.New("stuck")

	// ErrDuplicate means the exact same record was already admitted.
	ErrDuplicate = errors.New("duplicate")

	// ErrNotFound means a lookup found nothing.
	ErrNotFound = errors.New("not found")

	// ErrExpired means a record's validity window has closed.
	ErrExpired = errors.New("expired")

	// ErrRateLimited means a per-origin quota was exceeded.
	ErrRateLimited = errors.New("rate limited")
)
