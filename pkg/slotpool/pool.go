package slotpool

import (
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/slotvfs/pkg/blockdir"
)

// slot is one physical storage unit and its current binding state.
//
// path mirrors the on-disk header: empty for a free slot, the bound logical
// path otherwise. The file handle stays open for the lifetime of the pool;
// only capacity contraction and [Pool.Close] close it.
type slot struct {
	name string // physical file name, opaque to the engine
	file blockdir.SlotFile
	path string // "" when free
	gen  uint64 // bumped on every rebind; stale-handle detection
}

// Pool owns the complete mapping between logical paths and physical slots.
//
// The free/bound partition is structural: free slots live in a stack, bound
// slots in a path-keyed map. A slot is in exactly one of the two at any
// time, so the free-before-bound allocation invariant cannot be violated by
// insertion order.
//
// Allocation policy: the most recently freed (or most recently added) slot
// is reused first. Any deterministic O(1) choice of a free slot is
// equivalent for correctness; LIFO keeps recently touched files hot.
type Pool struct {
	dir blockdir.Dir

	attached bool
	closed   bool

	free  []*slot          // stack; top is free[len(free)-1]
	bound map[string]*slot // logical path -> slot

	nextSeq uint64 // next physical name sequence number
}

// New creates a pool over dir. The pool is unusable until [Pool.Attach]
// completes.
func New(dir blockdir.Dir) *Pool {
	return &Pool{
		dir:   dir,
		bound: make(map[string]*slot),
	}
}

// Attach runs startup reconciliation: it enumerates every physical slot in
// the directory, opens it, reads its header, and partitions it as free or
// bound.
//
// A slot whose header digest does not verify (torn write, truncation,
// foreign file) is repaired to the canonical free state. If two slots claim
// the same logical path, the later one in enumeration order is repaired to
// free; a path never resolves to more than one slot.
//
// On failure the pool remains unattached with no partial state and no slot
// files left open; Attach may be retried. Attach must not be called again
// after it succeeds.
func (p *Pool) Attach() error {
	if p.closed {
		return ErrClosed
	}

	if p.attached {
		return errors.New("slotpool: pool already attached")
	}

	names, err := p.dir.List()
	if err != nil {
		return fmt.Errorf("enumerating slots: %w", err)
	}

	// Reconcile into locals and commit to the receiver only once the whole
	// pass has succeeded. A failed Attach must leave the pool exactly as it
	// was: partial partitions surviving an abort would let a retry mistake
	// a healthy slot for a duplicate claimant and heal it to free.
	var (
		free    []*slot
		bound   = make(map[string]*slot)
		nextSeq uint64
	)

	var opened []*slot

	fail := func(err error) error {
		for _, s := range opened {
			_ = s.file.Close()
		}

		return err
	}

	for _, name := range names {
		f, err := p.dir.Open(name)
		if err != nil {
			return fail(fmt.Errorf("opening slot %s: %w", name, err))
		}

		s := &slot{name: name, file: f}
		opened = append(opened, s)

		if seq, ok := parseSlotName(name); ok && seq >= nextSeq {
			nextSeq = seq + 1
		}

		path, ok, err := readHeader(f)
		if err != nil {
			return fail(fmt.Errorf("reading header of %s: %w", name, err))
		}

		if ok && path != "" {
			if _, dup := bound[path]; !dup {
				s.path = path
				bound[path] = s

				continue
			}

			// Second slot claiming an already-bound path. Repair it to
			// free so the path keeps resolving to exactly one slot.
			ok = false
		}

		if !ok {
			if err := p.rebind(s, ""); err != nil {
				return fail(fmt.Errorf("repairing header of %s: %w", name, err))
			}
		}

		free = append(free, s)
	}

	p.free = free
	p.bound = bound
	p.nextSeq = nextSeq
	p.attached = true

	return nil
}

// readHeader reads and verifies a slot header.
//
// A file shorter than the header region decodes as not-ok rather than
// failing: it is the truncation case the digest exists to catch.
func readHeader(f blockdir.SlotFile) (path string, ok bool, err error) {
	buf := make([]byte, HeaderSize)

	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}

	if n != HeaderSize {
		return "", false, nil
	}

	path, ok = decodeHeader(buf)

	return path, ok, nil
}

// ready gates every operation behind the two-phase lifecycle.
func (p *Pool) ready() error {
	if p.closed {
		return ErrClosed
	}

	if !p.attached {
		return ErrNotAttached
	}

	return nil
}

// Open resolves path to its bound slot, binding a free slot first if create
// is true and no binding exists.
//
// Returns [ErrNotFound] if no binding exists and create is false, and
// [ErrPoolFull] if create is true but the free partition is empty. The pool
// never grows itself; callers recover from [ErrPoolFull] by calling
// [Pool.AddCapacity] and retrying.
func (p *Pool) Open(path string, create bool) (*Handle, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	if err := validatePath(path); err != nil {
		return nil, err
	}

	if s, ok := p.bound[path]; ok {
		return &Handle{pool: p, slot: s, path: path, gen: s.gen}, nil
	}

	if !create {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	if len(p.free) == 0 {
		return nil, fmt.Errorf("%w: cannot create %s", ErrPoolFull, path)
	}

	s := p.free[len(p.free)-1]

	// Rebind before repartitioning: a failed rebind (path too long, I/O)
	// must leave the slot free and the pool state unchanged.
	if err := p.rebind(s, path); err != nil {
		return nil, err
	}

	p.free = p.free[:len(p.free)-1]
	p.bound[path] = s

	return &Handle{pool: p, slot: s, path: path, gen: s.gen}, nil
}

// Delete destroys the binding for path, resets the slot header to the
// canonical free state, truncates its payload, and returns the slot to the
// free partition. Deleting a path with no binding is a no-op, not an error.
//
// Handles still open on the path become stale and fail with [ErrClosed].
func (p *Pool) Delete(path string) error {
	if err := p.ready(); err != nil {
		return err
	}

	s, ok := p.bound[path]
	if !ok {
		return nil
	}

	if err := p.rebind(s, ""); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}

	delete(p.bound, path)
	p.free = append(p.free, s)

	return nil
}

// Exists reports whether a binding currently exists for path. Pure lookup,
// no side effects.
func (p *Pool) Exists(path string) bool {
	if p.ready() != nil {
		return false
	}

	_, ok := p.bound[path]

	return ok
}

// Paths returns the currently bound logical paths, in no particular order.
func (p *Pool) Paths() []string {
	paths := make([]string, 0, len(p.bound))
	for path := range p.bound {
		paths = append(paths, path)
	}

	return paths
}

// Len returns the number of current bindings.
func (p *Pool) Len() int {
	return len(p.bound)
}

// Cap returns the total number of slots, free and bound.
func (p *Pool) Cap() int {
	return len(p.free) + len(p.bound)
}

// FreeSlots returns the number of slots available for new bindings.
func (p *Pool) FreeSlots() int {
	return len(p.free)
}

// AddCapacity creates n new physical slots, initializes each with a free
// header, and adds them to the free partition.
//
// Returns the number of slots actually added. A failure partway through
// leaves previously created slots intact and counted; the slot whose
// creation failed is cleaned up.
func (p *Pool) AddCapacity(n int) (int, error) {
	if err := p.ready(); err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("%w: negative capacity %d", ErrInvalidInput, n)
	}

	added := 0

	for i := 0; i < n; i++ {
		name := slotName(p.nextSeq)

		f, err := p.dir.Create(name)
		if err != nil {
			return added, fmt.Errorf("creating slot %s: %w", name, err)
		}

		p.nextSeq++

		s := &slot{name: name, file: f}

		if err := p.rebind(s, ""); err != nil {
			_ = f.Close()
			_ = p.dir.Remove(name)

			return added, fmt.Errorf("initializing slot %s: %w", name, err)
		}

		p.free = append(p.free, s)
		added++
	}

	return added, nil
}

// RemoveCapacity closes and physically deletes up to n free slots, stopping
// early when the free partition is exhausted.
//
// A bound slot is never removed, so capacity cannot drop below the current
// number of bindings. Returns the number of slots actually removed.
func (p *Pool) RemoveCapacity(n int) (int, error) {
	if err := p.ready(); err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("%w: negative capacity %d", ErrInvalidInput, n)
	}

	removed := 0

	for removed < n && len(p.free) > 0 {
		s := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]

		closeErr := s.file.Close()

		if err := p.dir.Remove(s.name); err != nil {
			return removed, errors.Join(closeErr, fmt.Errorf("removing slot %s: %w", s.name, err))
		}

		if closeErr != nil {
			return removed, fmt.Errorf("closing slot %s: %w", s.name, closeErr)
		}

		removed++
	}

	return removed, nil
}

// Close closes every slot file and marks the pool unusable. Close is
// idempotent. It does not delete anything; a later [Pool.Attach] on a fresh
// pool over the same directory rebuilds the bindings from the headers.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}

	p.closed = true

	var errs []error

	for _, s := range p.free {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing slot %s: %w", s.name, err))
		}
	}

	for _, s := range p.bound {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing slot %s: %w", s.name, err))
		}
	}

	p.free = nil
	p.bound = map[string]*slot{}

	return errors.Join(errs...)
}

// rebind rewrites a slot's header to bind it to path ("" for the free
// state) and flushes the slot.
//
// Encoding happens before any byte is written: a path that does not fit
// fails with [ErrPathTooLong] and leaves the slot untouched. Rebinding to
// the free state also truncates the payload away, since free slots carry
// none. The flush before returning makes the header durable; a crash
// between an unflushed rebind and the next reconciliation must never leave
// a slot whose header disagrees with its partition.
func (p *Pool) rebind(s *slot, path string) error {
	hdr, err := encodeHeader(path)
	if err != nil {
		return err
	}

	n, err := s.file.WriteAt(hdr, 0)
	if err != nil {
		return fmt.Errorf("writing header of %s: %w", s.name, err)
	}

	if n != len(hdr) {
		return fmt.Errorf("%w: header of %s: wrote %d of %d bytes", ErrIO, s.name, n, len(hdr))
	}

	if path == "" {
		if err := s.file.Truncate(HeaderSize); err != nil {
			return fmt.Errorf("truncating %s: %w", s.name, err)
		}
	}

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("flushing %s: %w", s.name, err)
	}

	s.path = path
	s.gen++

	return nil
}
