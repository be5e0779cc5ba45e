// Pool binding and partition behavior tests.
//
// Oracle: at every point the bound slots hold exactly one binding per
// distinct open logical path, and a slot is free or bound, never both.

package slotpool_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/calvinalkan/slotvfs/pkg/blockdir"
	"github.com/calvinalkan/slotvfs/pkg/slotpool"
)

// newTestPool opens an attached pool over a fresh temp directory.
func newTestPool(t *testing.T) *slotpool.Pool {
	t.Helper()

	return newTestPoolAt(t, t.TempDir())
}

// newTestPoolAt opens an attached pool over dirPath, registering cleanup.
func newTestPoolAt(t *testing.T, dirPath string) *slotpool.Pool {
	t.Helper()

	dir, err := blockdir.OpenReal(dirPath)
	if err != nil {
		t.Fatalf("OpenReal failed: %v", err)
	}

	t.Cleanup(func() { _ = dir.Close() })

	pool := slotpool.New(dir)
	if err := pool.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	t.Cleanup(func() { _ = pool.Close() })

	return pool
}

func Test_Operations_Return_ErrNotAttached_Before_Attach(t *testing.T) {
	t.Parallel()

	dir, err := blockdir.OpenReal(t.TempDir())
	if err != nil {
		t.Fatalf("OpenReal failed: %v", err)
	}
	defer dir.Close()

	pool := slotpool.New(dir)

	if _, err := pool.Open("/a.db", true); !errors.Is(err, slotpool.ErrNotAttached) {
		t.Fatalf("Open error mismatch: got=%v want=%v", err, slotpool.ErrNotAttached)
	}

	if _, err := pool.AddCapacity(1); !errors.Is(err, slotpool.ErrNotAttached) {
		t.Fatalf("AddCapacity error mismatch: got=%v want=%v", err, slotpool.ErrNotAttached)
	}

	if err := pool.Delete("/a.db"); !errors.Is(err, slotpool.ErrNotAttached) {
		t.Fatalf("Delete error mismatch: got=%v want=%v", err, slotpool.ErrNotAttached)
	}

	if pool.Exists("/a.db") {
		t.Fatal("Exists reported a binding on an unattached pool")
	}
}

// The end-to-end allocation scenario: exhaustion, deletion, slot reuse.
func Test_Pool_Allocation_Lifecycle_End_To_End(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)

	if pool.Cap() != 0 {
		t.Fatalf("fresh pool capacity: got=%d want=0", pool.Cap())
	}

	added, err := pool.AddCapacity(2)
	if err != nil || added != 2 {
		t.Fatalf("AddCapacity(2): got=(%d, %v) want=(2, nil)", added, err)
	}

	if pool.Cap() != 2 || pool.Len() != 0 {
		t.Fatalf("after AddCapacity: cap=%d len=%d, want cap=2 len=0", pool.Cap(), pool.Len())
	}

	if _, err := pool.Open("/a.db", true); err != nil {
		t.Fatalf("Open(/a.db, create) failed: %v", err)
	}

	if pool.Len() != 1 {
		t.Fatalf("bindings after first open: got=%d want=1", pool.Len())
	}

	if _, err := pool.Open("/b.db", true); err != nil {
		t.Fatalf("Open(/b.db, create) failed: %v", err)
	}

	if pool.Len() != 2 {
		t.Fatalf("bindings after second open: got=%d want=2", pool.Len())
	}

	if _, err := pool.Open("/c.db", true); !errors.Is(err, slotpool.ErrPoolFull) {
		t.Fatalf("Open on exhausted pool: got=%v want=%v", err, slotpool.ErrPoolFull)
	}

	if err := pool.Delete("/a.db"); err != nil {
		t.Fatalf("Delete(/a.db) failed: %v", err)
	}

	if _, err := pool.Open("/c.db", true); err != nil {
		t.Fatalf("Open(/c.db) after delete failed: %v", err)
	}

	if pool.Exists("/a.db") {
		t.Fatal("Exists(/a.db) true after delete")
	}

	if !pool.Exists("/b.db") || !pool.Exists("/c.db") {
		t.Fatal("surviving bindings missing")
	}

	if pool.Cap() != 2 {
		t.Fatalf("capacity changed by binding churn: got=%d want=2", pool.Cap())
	}
}

func Test_Open_Returns_ErrNotFound_Without_Create(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)

	if _, err := pool.AddCapacity(1); err != nil {
		t.Fatalf("AddCapacity failed: %v", err)
	}

	_, err := pool.Open("/missing.db", false)
	if !errors.Is(err, slotpool.ErrNotFound) {
		t.Fatalf("error mismatch: got=%v want=%v", err, slotpool.ErrNotFound)
	}

	if pool.FreeSlots() != 1 {
		t.Fatalf("failed open consumed a slot: free=%d want=1", pool.FreeSlots())
	}
}

func Test_Open_Returns_Same_Slot_For_Existing_Binding(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)

	if _, err := pool.AddCapacity(1); err != nil {
		t.Fatalf("AddCapacity failed: %v", err)
	}

	h1, err := pool.Open("/a.db", true)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	if err := h1.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	// A second open of the same path resolves to the same slot: bytes
	// written through the first handle are visible through the second.
	h2, err := pool.Open("/a.db", false)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}

	buf := make([]byte, 5)

	n, err := h2.ReadAt(buf, 0)
	if err != nil || n != 5 {
		t.Fatalf("ReadAt: got=(%d, %v) want=(5, nil)", n, err)
	}

	if string(buf) != "hello" {
		t.Fatalf("payload mismatch: got=%q want=%q", buf, "hello")
	}

	if pool.Len() != 1 {
		t.Fatalf("double open created a second binding: len=%d", pool.Len())
	}
}

func Test_Delete_Is_NoOp_When_Path_Not_Bound(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)

	if err := pool.Delete("/never-bound.db"); err != nil {
		t.Fatalf("Delete of unbound path errored: %v", err)
	}
}

func Test_Delete_Truncates_Payload_Before_Slot_Reuse(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)

	if _, err := pool.AddCapacity(1); err != nil {
		t.Fatalf("AddCapacity failed: %v", err)
	}

	h, err := pool.Open("/a.db", true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := h.WriteAt([]byte("leftover payload"), 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	if err := pool.Delete("/a.db"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// The reused slot must start empty, not leak the previous file's bytes.
	h2, err := pool.Open("/b.db", true)
	if err != nil {
		t.Fatalf("Open(/b.db) failed: %v", err)
	}

	size, err := h2.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}

	if size != 0 {
		t.Fatalf("reused slot payload size: got=%d want=0", size)
	}
}

func Test_Open_Returns_ErrPathTooLong_And_Leaves_Pool_Unchanged(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)

	if _, err := pool.AddCapacity(1); err != nil {
		t.Fatalf("AddCapacity failed: %v", err)
	}

	long := strings.Repeat("p", slotpool.PathFieldSize+1)

	_, err := pool.Open(long, true)
	if !errors.Is(err, slotpool.ErrPathTooLong) {
		t.Fatalf("error mismatch: got=%v want=%v", err, slotpool.ErrPathTooLong)
	}

	if pool.FreeSlots() != 1 || pool.Len() != 0 {
		t.Fatalf("failed rebind changed pool state: free=%d len=%d", pool.FreeSlots(), pool.Len())
	}

	// The untouched slot must still be usable.
	if _, err := pool.Open("/ok.db", true); err != nil {
		t.Fatalf("Open after failed rebind: %v", err)
	}
}

func Test_Open_Rejects_Invalid_Paths(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)

	if _, err := pool.AddCapacity(1); err != nil {
		t.Fatalf("AddCapacity failed: %v", err)
	}

	for _, path := range []string{"", "bad\x00path"} {
		_, err := pool.Open(path, true)
		if !errors.Is(err, slotpool.ErrInvalidInput) {
			t.Fatalf("Open(%q) error mismatch: got=%v want=%v", path, err, slotpool.ErrInvalidInput)
		}
	}
}

func Test_Pool_Returns_ErrClosed_After_Close(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)

	if _, err := pool.AddCapacity(1); err != nil {
		t.Fatalf("AddCapacity failed: %v", err)
	}

	h, err := pool.Open("/a.db", true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("second Close errored: %v", err)
	}

	if _, err := pool.Open("/b.db", true); !errors.Is(err, slotpool.ErrClosed) {
		t.Fatalf("Open after Close: got=%v want=%v", err, slotpool.ErrClosed)
	}

	if err := h.Sync(); !errors.Is(err, slotpool.ErrClosed) {
		t.Fatalf("handle op after pool Close: got=%v want=%v", err, slotpool.ErrClosed)
	}
}
