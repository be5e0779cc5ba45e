package slotpool

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Slot header format constants.
//
// The header occupies the first [HeaderSize] bytes of every slot file:
//
//	[path field: 512 bytes, UTF-8, null-padded][digest: 8 bytes, little-endian]
//
// The digest is FNV-1a 64-bit computed over the full padded path field. It
// detects accidental corruption (torn writes, truncation); it is not a
// security boundary.
//
// These are format constants: changing them is a breaking format change that
// requires a migration pass over all existing slots.
const (
	// PathFieldSize is the fixed width of the encoded path field in bytes.
	PathFieldSize = 512

	// DigestSize is the width of the header digest field in bytes.
	DigestSize = 8

	// HeaderSize is the total header size; payload begins at this offset.
	HeaderSize = PathFieldSize + DigestSize
)

// FNV-1a 64-bit hash constants.
const (
	fnv1aOffsetBasis uint64 = 14695981039346656037
	fnv1aPrime       uint64 = 1099511628211
)

// fnv1a64 computes the FNV-1a 64-bit hash over data.
func fnv1a64(data []byte) uint64 {
	hash := fnv1aOffsetBasis
	for _, b := range data {
		hash ^= uint64(b)
		hash *= fnv1aPrime
	}

	return hash
}

// encodeHeader serializes path into a fresh [HeaderSize]-byte header.
//
// Returns [ErrPathTooLong] if the UTF-8 encoding of path exceeds
// [PathFieldSize] bytes. No partial encoding is produced on failure.
func encodeHeader(path string) ([]byte, error) {
	if len(path) > PathFieldSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPathTooLong, len(path), PathFieldSize)
	}

	buf := make([]byte, HeaderSize)
	copy(buf, path)
	binary.LittleEndian.PutUint64(buf[PathFieldSize:], fnv1a64(buf[:PathFieldSize]))

	return buf, nil
}

// decodeHeader verifies the digest of a raw header and extracts the path.
//
// ok is false when the stored digest does not match the digest recomputed
// from the path field; the slot must then be treated as unbound. A verified
// header with an empty path field is the canonical free state.
func decodeHeader(buf []byte) (path string, ok bool) {
	if len(buf) != HeaderSize {
		return "", false
	}

	want := binary.LittleEndian.Uint64(buf[PathFieldSize:])
	if fnv1a64(buf[:PathFieldSize]) != want {
		return "", false
	}

	field := buf[:PathFieldSize]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}

	return string(field), true
}

// validatePath rejects logical paths the header encoding cannot round-trip.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidInput)
	}

	if strings.IndexByte(path, 0) >= 0 {
		return fmt.Errorf("%w: path contains NUL byte", ErrInvalidInput)
	}

	return nil
}

// Physical slot file naming.
//
// Physical names are opaque to the engine and never collide with logical
// paths (logical paths are absolute-style strings, physical names are flat
// file names). The sequence number only has to be unique within the
// directory; gaps are fine.
const (
	slotNamePrefix = "slot-"
	slotNameSuffix = ".bin"
)

// slotName formats the physical file name for sequence number seq.
func slotName(seq uint64) string {
	return fmt.Sprintf("%s%08d%s", slotNamePrefix, seq, slotNameSuffix)
}

// parseSlotName extracts the sequence number from a physical file name.
// Foreign names are still valid slots; they just do not advance the
// allocation sequence.
func parseSlotName(name string) (uint64, bool) {
	s, ok := strings.CutPrefix(name, slotNamePrefix)
	if !ok {
		return 0, false
	}

	s, ok = strings.CutSuffix(s, slotNameSuffix)
	if !ok {
		return 0, false
	}

	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}

	return seq, true
}
