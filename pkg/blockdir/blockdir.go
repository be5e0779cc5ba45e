// Package blockdir provides the storage substrate for a slot pool: a flat
// directory of opaque, independently openable storage units ("slot files"),
// each supporting random-access read/write with explicit truncate and flush.
//
// The main types are:
//   - [Dir]: interface for directory-level operations (enumerate, create,
//     open, remove slot files)
//   - [SlotFile]: interface for an open slot file (satisfied by the handles
//     returned from [Real])
//   - [Real]: production implementation backed by an OS directory
//   - [Chaos]: testing implementation that injects failures at chosen points
//
// A [Real] directory is exclusively owned: opening it takes a non-blocking
// flock on a lock file inside the directory, so two processes cannot drive
// the same pool concurrently.
package blockdir

// SlotFile is an open slot file.
//
// All offsets are absolute file offsets; callers that maintain their own
// header regions are responsible for offset translation.
type SlotFile interface {
	// ReadAt reads len(p) bytes starting at offset off.
	// Short reads return the bytes read together with [io.EOF],
	// matching [os.File.ReadAt].
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes len(p) bytes starting at offset off, extending the
	// file if needed.
	WriteAt(p []byte, off int64) (int, error)

	// Truncate changes the file size.
	Truncate(size int64) error

	// Sync flushes file contents to stable storage.
	Sync() error

	// Size returns the current file size in bytes.
	Size() (int64, error)

	// Close closes the file handle.
	Close() error
}

// Dir is a flat directory of slot files.
//
// Implementations are not required to be safe for concurrent use; the slot
// pool drives a Dir from a single goroutine.
type Dir interface {
	// List returns the names of all slot files in the directory,
	// sorted lexically. Internal bookkeeping files are excluded.
	List() ([]string, error)

	// Create creates a new, empty slot file. It fails if a file with the
	// same name already exists.
	Create(name string) (SlotFile, error)

	// Open opens an existing slot file for read/write access.
	Open(name string) (SlotFile, error)

	// Remove deletes a slot file. The file must not be open.
	Remove(name string) error
}
