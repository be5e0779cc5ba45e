// Package slotpool manages a fixed-capacity pool of storage slots that backs
// a virtual file namespace.
//
// A slot is a physical storage unit in a [blockdir.Dir]. Every slot starts
// with a fixed 520-byte header: a 512-byte UTF-8, null-padded logical path
// field followed by a 64-bit FNV-1a digest of the padded field. A slot whose
// path field is empty is free; a slot whose path field names a logical path
// is bound to that path. Payload bytes begin immediately after the header,
// and all per-file offsets are translated by [HeaderSize].
//
// The pool persists nothing besides the slot headers. After a restart,
// [Pool.Attach] re-reads every header, verifies its digest, and rebuilds the
// bindings. A header whose digest does not verify is self-healed to the free
// state rather than surfaced as an error, so a torn header write degrades to
// a lost binding, never to a wrong one.
//
// # Lifecycle
//
//	dir, err := blockdir.OpenReal("/var/lib/engine/slots")
//	pool := slotpool.New(dir)
//	if err := pool.Attach(); err != nil { ... }
//	defer pool.Close()
//
//	h, err := pool.Open("/main.db", true)
//	n, err := h.ReadAt(buf, 0)
//
// Attach must complete before any other operation; until then every call
// fails with [ErrNotAttached]. Capacity changes ([Pool.AddCapacity],
// [Pool.RemoveCapacity]) must not be interleaved with per-file operations.
//
// # Concurrency
//
// The pool provides no internal locking. The consuming engine is expected to
// issue exactly one operation at a time; wrap the pool if you need
// concurrent callers. Cross-process exclusion is the substrate's job (see
// [blockdir.OpenReal]).
package slotpool
