// Package model defines the chain-agnostic entities the indexer core
// operates on: blocks, transactions, events, cursors, finality records,
// and cross-chain messages.
package model

import "errors"

// Sentinel error kinds shared by chain adapters, the storage engine, and
// the pipeline. Adapters and storage surface these upward without
// interpretation; the pipeline is the sole place retry/halt decisions are
// made (see the propagation policy in spec §7).
var (
	// ErrNotFound is returned when a requested entity is absent.
	ErrNotFound = errors.New("model: not found")

	// ErrMalformedData is returned when an upstream payload cannot be decoded.
	ErrMalformedData = errors.New("model: malformed upstream data")

	// ErrNetwork wraps a transient adapter/transport failure.
	ErrNetwork = errors.New("model: network error")

	// ErrStorageTransient wraps a retryable backend failure.
	ErrStorageTransient = errors.New("model: transient storage error")

	// ErrStorageFatal wraps an unretryable backend failure.
	ErrStorageFatal = errors.New("model: fatal storage error")

	// ErrReorgDetected is a normal control-flow signal, not a failure.
	ErrReorgDetected = errors.New("model: reorg detected")

	// ErrDeepReorg is returned when no common ancestor was found within
	// the configured bounded depth.
	ErrDeepReorg = errors.New("model: reorg exceeded bounded depth")

	// ErrDivergent is returned when the fast and rich stores disagree
	// after a commit and cannot be reconciled by replay.
	ErrDivergent = errors.New("model: fast and rich store diverged")

	// ErrUnsupported is returned when a chain adapter does not offer a
	// requested capability (e.g. a finality status the chain lacks).
	ErrUnsupported = errors.New("model: capability not supported by adapter")

	// ErrTimeout is returned when an operation exceeded its deadline.
	ErrTimeout = errors.New("model: operation timed out")

	// ErrValidation is returned when caller-supplied inputs violate an
	// invariant.
	ErrValidation = errors.New("model: validation error")
)

// StorageError distinguishes transient (retry) from fatal (halt) storage
// failures while preserving the underlying cause.
type StorageError struct {
	Transient bool
	Cause     error
}

func (e *StorageError) Error() string {
	if e.Transient {
		return "storage error (transient): " + e.Cause.Error()
	}
	return "storage error (fatal): " + e.Cause.Error()
}

func (e *StorageError) Unwrap() error { return e.Cause }

// Is reports whether target matches the transient/fatal sentinel
// corresponding to this error, so callers can use errors.Is(err,
// model.ErrStorageTransient) without caring about the wrapped cause.
func (e *StorageError) Is(target error) bool {
	if e.Transient {
		return target == ErrStorageTransient
	}
	return target == ErrStorageFatal
}

// NewTransientStorageError wraps cause as a retryable storage failure.
func NewTransientStorageError(cause error) error {
	return &StorageError{Transient: true, Cause: cause}
}

// NewFatalStorageError wraps cause as an unretryable storage failure.
func NewFatalStorageError(cause error) error {
	return &StorageError{Transient: false, Cause: cause}
}
