package slotpool

import (
	"fmt"
)

// Handle is an ephemeral reference to a bound slot, created per engine-level
// open call.
//
// All offsets are logical: relative to the start of the payload, which the
// handle translates past the header region. Closing a handle does not close
// the underlying slot file; slots stay open for the lifetime of the pool.
//
// A handle goes stale when its binding is deleted (directly or via
// delete-on-close) or when the pool is closed; stale handles fail with
// [ErrClosed].
type Handle struct {
	pool   *Pool
	slot   *slot
	path   string
	gen    uint64 // slot generation at open time
	closed bool
}

// Path returns the logical path this handle was opened with.
func (h *Handle) Path() string {
	return h.path
}

// live rejects operations on closed or stale handles.
//
// Staleness is generational: every rebind bumps the slot's generation, so a
// handle outliving its binding fails even when the slot is later rebound to
// the very same path. Comparing paths alone would resurrect such a handle
// onto the new incarnation's payload.
func (h *Handle) live() error {
	if h.closed || h.pool.closed {
		return ErrClosed
	}

	if h.slot.gen != h.gen {
		return fmt.Errorf("%w: binding for %s was deleted", ErrClosed, h.path)
	}

	return nil
}

// ReadAt reads len(p) bytes of payload starting at logical offset off.
//
// Short reads return the bytes read together with [io.EOF], matching
// [os.File.ReadAt]; callers that need SQLite-style semantics zero-fill the
// remainder. Short reads are an outcome, not a failure.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if err := h.live(); err != nil {
		return 0, err
	}

	if off < 0 {
		return 0, fmt.Errorf("%w: negative read offset %d", ErrInvalidInput, off)
	}

	return h.slot.file.ReadAt(p, HeaderSize+off)
}

// WriteAt writes len(p) bytes of payload starting at logical offset off,
// extending the file as needed.
//
// A write the substrate accepts only partially fails with [ErrIO].
func (h *Handle) WriteAt(p []byte, off int64) error {
	if err := h.live(); err != nil {
		return err
	}

	if off < 0 {
		return fmt.Errorf("%w: negative write offset %d", ErrInvalidInput, off)
	}

	n, err := h.slot.file.WriteAt(p, HeaderSize+off)
	if err != nil {
		return fmt.Errorf("writing %s: %w", h.path, err)
	}

	if n != len(p) {
		return fmt.Errorf("%w: %s: wrote %d of %d bytes", ErrIO, h.path, n, len(p))
	}

	return nil
}

// Truncate sets the payload size to size logical bytes.
func (h *Handle) Truncate(size int64) error {
	if err := h.live(); err != nil {
		return err
	}

	if size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidInput, size)
	}

	if err := h.slot.file.Truncate(HeaderSize + size); err != nil {
		return fmt.Errorf("truncating %s: %w", h.path, err)
	}

	return nil
}

// Sync flushes the slot to stable storage.
func (h *Handle) Sync() error {
	if err := h.live(); err != nil {
		return err
	}

	if err := h.slot.file.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", h.path, err)
	}

	return nil
}

// Size returns the payload size in logical bytes.
func (h *Handle) Size() (int64, error) {
	if err := h.live(); err != nil {
		return 0, err
	}

	size, err := h.slot.file.Size()
	if err != nil {
		return 0, fmt.Errorf("sizing %s: %w", h.path, err)
	}

	if size < HeaderSize {
		// A bound slot is always at least header-sized on disk; a shorter
		// file means someone truncated it behind our back. Report empty
		// rather than a negative size.
		return 0, nil
	}

	return size - HeaderSize, nil
}

// Close releases the handle. Idempotent. The underlying slot file stays
// open; only capacity contraction or [Pool.Close] closes physical files.
func (h *Handle) Close() error {
	h.closed = true

	return nil
}
