package slotpool

import "errors"

// Sentinel errors returned by slotpool operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, slotpool.ErrPoolFull) {
//	    pool.AddCapacity(batch)
//	    // retry the open
//	}
var (
	// ErrNotFound indicates an open without create (or a stat-like call)
	// named a path with no binding.
	//
	// Recovery: open with create, or treat as a missing file.
	ErrNotFound = errors.New("slotpool: not found")

	// ErrPoolFull indicates a create was requested but the free partition
	// is empty.
	//
	// The pool never grows itself. Recovery: call [Pool.AddCapacity], then
	// retry the open.
	ErrPoolFull = errors.New("slotpool: pool full")

	// ErrPathTooLong indicates a logical path does not fit the fixed
	// header path field ([PathFieldSize] bytes, UTF-8).
	//
	// The failed rebind leaves the slot untouched; no header bytes are
	// written unless encoding succeeds.
	//
	// This is a programming error.
	ErrPathTooLong = errors.New("slotpool: path too long")

	// ErrIO indicates the substrate accepted fewer bytes than requested.
	//
	// Retry policy belongs to the caller; the pool never retries.
	ErrIO = errors.New("slotpool: short write")

	// ErrNotAttached indicates the pool has not completed startup
	// reconciliation. Call [Pool.Attach] first.
	//
	// This is a programming error.
	ErrNotAttached = errors.New("slotpool: not attached")

	// ErrClosed indicates the [Pool] or [Handle] has already been closed,
	// or the handle's binding was deleted out from under it.
	//
	// This is a programming error.
	ErrClosed = errors.New("slotpool: closed")

	// ErrInvalidInput indicates invalid arguments were provided.
	//
	// Common causes: empty path, path containing a NUL byte, negative
	// offset or size.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("slotpool: invalid input")
)
