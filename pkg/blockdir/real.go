package blockdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by [OpenReal] when another process already owns the
// directory.
//
// Recovery: wait for the other owner to close the directory, or point the
// pool at a different directory.
var ErrLocked = errors.New("blockdir: directory locked by another process")

const (
	lockFileName = ".lock"

	slotFilePerm = 0o644
	slotDirPerm  = 0o755
)

// Real implements [Dir] over an OS directory.
//
// Slot file creation and removal fsync the directory afterwards, so a crash
// right after a capacity change cannot lose the directory entry while the
// pool believes the slot exists.
type Real struct {
	path string
	dirf *os.File // held open for directory fsync
	lock *os.File // holds the flock for the lifetime of the handle
}

// OpenReal opens (creating if necessary) the directory at path and takes
// exclusive ownership of it.
//
// Returns an error satisfying [errors.Is] with [ErrLocked] if another
// process holds the directory.
func OpenReal(path string) (*Real, error) {
	if err := os.MkdirAll(path, slotDirPerm); err != nil {
		return nil, fmt.Errorf("creating slot directory: %w", err)
	}

	lock, err := os.OpenFile(filepath.Join(path, lockFileName), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	err = flockRetryEINTR(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = lock.Close()

		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}

		return nil, fmt.Errorf("locking slot directory: %w", err)
	}

	dirf, err := os.Open(path)
	if err != nil {
		_ = lock.Close()

		return nil, fmt.Errorf("opening slot directory: %w", err)
	}

	return &Real{path: path, dirf: dirf, lock: lock}, nil
}

// Path returns the directory path this handle was opened with.
func (d *Real) Path() string {
	return d.path
}

func (d *Real) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("listing slot directory: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == lockFileName {
			continue
		}

		names = append(names, e.Name())
	}

	return names, nil
}

func (d *Real) Create(name string) (SlotFile, error) {
	f, err := os.OpenFile(filepath.Join(d.path, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, slotFilePerm)
	if err != nil {
		return nil, fmt.Errorf("creating slot file %s: %w", name, err)
	}

	if err := d.syncDir(); err != nil {
		_ = f.Close()
		_ = os.Remove(filepath.Join(d.path, name))

		return nil, err
	}

	return &realFile{f}, nil
}

func (d *Real) Open(name string) (SlotFile, error) {
	f, err := os.OpenFile(filepath.Join(d.path, name), os.O_RDWR, slotFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening slot file %s: %w", name, err)
	}

	return &realFile{f}, nil
}

func (d *Real) Remove(name string) error {
	if err := os.Remove(filepath.Join(d.path, name)); err != nil {
		return fmt.Errorf("removing slot file %s: %w", name, err)
	}

	return d.syncDir()
}

// Close releases the directory lock. Slot files opened through this handle
// are unaffected and must be closed by their owners.
//
// Close is idempotent.
func (d *Real) Close() error {
	if d.lock == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(int(d.lock.Fd()), unix.LOCK_UN)
	closeErr := errors.Join(d.lock.Close(), d.dirf.Close())

	d.lock = nil
	d.dirf = nil

	return errors.Join(unlockErr, closeErr)
}

// syncDir fsyncs the directory so entry creation/removal is durable.
func (d *Real) syncDir() error {
	if err := unix.Fsync(int(d.dirf.Fd())); err != nil {
		return fmt.Errorf("syncing slot directory: %w", err)
	}

	return nil
}

// flockRetryEINTR wraps flock, retrying on EINTR.
//
// Signals (SIGCHLD, SIGWINCH, timers) can interrupt a blocking syscall before
// it completes; the call did not fail, it just needs to be retried. Retries
// are capped to avoid spinning under a pathological signal storm.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for i := 0; i < maxEINTRRetries; i++ {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}

// realFile adapts [os.File] to [SlotFile].
type realFile struct {
	*os.File
}

func (f *realFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}
