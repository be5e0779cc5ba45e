package blockdir

import "errors"

// ErrInjected is the error returned by [Chaos] when an armed fault fires.
//
// Tests check for it with [errors.Is] to distinguish injected faults from
// real substrate failures.
var ErrInjected = errors.New("blockdir: injected fault")

// Chaos wraps a [Dir] and injects failures at chosen operation counts.
//
// Each fault point is a countdown: arming it with n makes the (n+1)-th
// matching operation fail with [ErrInjected]; operations before that pass
// through. A disarmed fault point never fires. Chaos is for tests only.
type Chaos struct {
	inner Dir

	createCountdown   countdown
	writeCountdown    countdown
	syncCountdown     countdown
	truncateCountdown countdown
	removeCountdown   countdown
}

// countdown is a simple armed/disarmed operation counter.
type countdown struct {
	armed     bool
	remaining int
}

// fire decrements the countdown and reports whether the fault should trigger.
func (c *countdown) fire() bool {
	if !c.armed {
		return false
	}

	if c.remaining > 0 {
		c.remaining--
		return false
	}

	return true
}

// NewChaos wraps inner with all fault points disarmed.
func NewChaos(inner Dir) *Chaos {
	return &Chaos{inner: inner}
}

// Disarm disarms every fault point; subsequent operations pass through.
func (c *Chaos) Disarm() {
	c.createCountdown = countdown{}
	c.writeCountdown = countdown{}
	c.syncCountdown = countdown{}
	c.truncateCountdown = countdown{}
	c.removeCountdown = countdown{}
}

// FailCreateAfter arms the create fault point: the next n Create calls
// succeed, the one after that fails.
func (c *Chaos) FailCreateAfter(n int) {
	c.createCountdown = countdown{armed: true, remaining: n}
}

// FailWriteAfter arms the write fault point across all files opened or
// created through this Chaos.
func (c *Chaos) FailWriteAfter(n int) {
	c.writeCountdown = countdown{armed: true, remaining: n}
}

// FailSyncAfter arms the sync fault point across all files opened or
// created through this Chaos.
func (c *Chaos) FailSyncAfter(n int) {
	c.syncCountdown = countdown{armed: true, remaining: n}
}

// FailTruncateAfter arms the truncate fault point across all files opened
// or created through this Chaos.
func (c *Chaos) FailTruncateAfter(n int) {
	c.truncateCountdown = countdown{armed: true, remaining: n}
}

// FailRemoveAfter arms the remove fault point.
func (c *Chaos) FailRemoveAfter(n int) {
	c.removeCountdown = countdown{armed: true, remaining: n}
}

func (c *Chaos) List() ([]string, error) {
	return c.inner.List()
}

func (c *Chaos) Create(name string) (SlotFile, error) {
	if c.createCountdown.fire() {
		return nil, ErrInjected
	}

	f, err := c.inner.Create(name)
	if err != nil {
		return nil, err
	}

	return &chaosFile{inner: f, chaos: c}, nil
}

func (c *Chaos) Open(name string) (SlotFile, error) {
	f, err := c.inner.Open(name)
	if err != nil {
		return nil, err
	}

	return &chaosFile{inner: f, chaos: c}, nil
}

func (c *Chaos) Remove(name string) error {
	if c.removeCountdown.fire() {
		return ErrInjected
	}

	return c.inner.Remove(name)
}

// chaosFile routes per-file fault points back through the owning Chaos so a
// single countdown covers all files in the directory.
type chaosFile struct {
	inner SlotFile
	chaos *Chaos
}

func (f *chaosFile) ReadAt(p []byte, off int64) (int, error) {
	return f.inner.ReadAt(p, off)
}

func (f *chaosFile) WriteAt(p []byte, off int64) (int, error) {
	if f.chaos.writeCountdown.fire() {
		return 0, ErrInjected
	}

	return f.inner.WriteAt(p, off)
}

func (f *chaosFile) Truncate(size int64) error {
	if f.chaos.truncateCountdown.fire() {
		return ErrInjected
	}

	return f.inner.Truncate(size)
}

func (f *chaosFile) Sync() error {
	if f.chaos.syncCountdown.fire() {
		return ErrInjected
	}

	return f.inner.Sync()
}

func (f *chaosFile) Size() (int64, error) {
	return f.inner.Size()
}

func (f *chaosFile) Close() error {
	return f.inner.Close()
}
