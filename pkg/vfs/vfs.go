// Package vfs adapts a [slotpool.Pool] to the call surface a database engine
// expects from its file system: open/close/read/write/truncate/sync/size
// plus namespace queries.
//
// The adapter owns no state beyond the pool reference. Error sentinels from
// [slotpool] pass through unwrapped so the engine can map them to its own
// status codes with [errors.Is]. The one semantic this layer adds is the
// short-read contract: [File.Read] zero-fills the unread tail of the buffer
// and reports the condition distinctly instead of returning an error.
package vfs

import (
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/slotvfs/pkg/slotpool"
)

// Flag controls open behavior.
type Flag uint32

const (
	// Create binds a free slot to the path if no binding exists.
	Create Flag = 1 << iota

	// DeleteOnClose destroys the binding when the file is closed.
	DeleteOnClose
)

// FS is the engine-facing file system over a slot pool.
type FS struct {
	pool *slotpool.Pool
}

// New returns an FS over pool. The pool must already be attached.
func New(pool *slotpool.Pool) *FS {
	return &FS{pool: pool}
}

// Open opens the logical file name, creating a binding first if the
// [Create] flag is set.
//
// Typed failures: [slotpool.ErrNotFound] (no binding, no Create flag) and
// [slotpool.ErrPoolFull] (Create requested, pool exhausted).
func (v *FS) Open(name string, flags Flag) (*File, error) {
	h, err := v.pool.Open(name, flags&Create != 0)
	if err != nil {
		return nil, err
	}

	return &File{
		fs:            v,
		handle:        h,
		name:          name,
		deleteOnClose: flags&DeleteOnClose != 0,
	}, nil
}

// Access reports whether a binding exists for name.
func (v *FS) Access(name string) bool {
	return v.pool.Exists(name)
}

// Delete removes the binding for name, releasing its slot back to the free
// partition. Deleting a non-existent name is a no-op.
func (v *FS) Delete(name string) error {
	return v.pool.Delete(name)
}

// File is an open logical file.
//
// File is not safe for concurrent use; the engine issues one operation at a
// time (see the slotpool concurrency model).
type File struct {
	fs            *FS
	handle        *slotpool.Handle
	name          string
	deleteOnClose bool
	closed        bool
}

// Name returns the logical path this file was opened with.
func (f *File) Name() string {
	return f.name
}

// Read reads len(p) bytes at logical offset off.
//
// When fewer than len(p) bytes are available the remainder of p is filled
// with zeros and short is true with a nil error; the engine decides whether
// a short read is acceptable for the region it asked for.
func (f *File) Read(p []byte, off int64) (n int, short bool, err error) {
	if f.closed {
		return 0, false, slotpool.ErrClosed
	}

	n, err = f.handle.ReadAt(p, off)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return n, false, fmt.Errorf("reading %s: %w", f.name, err)
		}

		clear(p[n:])

		return n, true, nil
	}

	return n, false, nil
}

// Write writes len(p) bytes at logical offset off. Partial writes surface
// as [slotpool.ErrIO].
func (f *File) Write(p []byte, off int64) error {
	if f.closed {
		return slotpool.ErrClosed
	}

	return f.handle.WriteAt(p, off)
}

// Truncate sets the logical file size.
func (f *File) Truncate(size int64) error {
	if f.closed {
		return slotpool.ErrClosed
	}

	return f.handle.Truncate(size)
}

// Sync flushes the file to stable storage.
func (f *File) Sync() error {
	if f.closed {
		return slotpool.ErrClosed
	}

	return f.handle.Sync()
}

// Size returns the logical file size.
func (f *File) Size() (int64, error) {
	if f.closed {
		return 0, slotpool.ErrClosed
	}

	return f.handle.Size()
}

// Close releases the file. If the file was opened with [DeleteOnClose], the
// binding is destroyed as well. Close is idempotent.
func (f *File) Close() error {
	if f.closed {
		return nil
	}

	f.closed = true

	if err := f.handle.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", f.name, err)
	}

	if f.deleteOnClose {
		return f.fs.Delete(f.name)
	}

	return nil
}
