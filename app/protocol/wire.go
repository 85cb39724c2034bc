package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// NoPath is the sentinel in a path-length byte meaning "no path known".
const NoPath byte = 0xFF

// DecodeError is returned by the Decode* wrappers when a payload cannot be
// parsed as the named entity.
type DecodeError struct {
	Entity string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("protocol: cannot decode %s frame", e.Entity)
	}
	return fmt.Sprintf("protocol: cannot decode %s frame: %s", e.Entity, e.Reason)
}

func decodeErr(entity string) error {
	return &DecodeError{Entity: entity}
}

// byteAt returns buf[off] if the buffer is long enough.
func byteAt(buf []byte, off int) (byte, bool) {
	if off < 0 || off >= len(buf) {
		return 0, false
	}
	return buf[off], true
}

// uint16At reads a little-endian uint16 at off.
func uint16At(buf []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(buf[off:]), true
}

// int16At reads a little-endian signed 16-bit value at off.
func int16At(buf []byte, off int) (int16, bool) {
	v, ok := uint16At(buf, off)
	return int16(v), ok
}

// uint32At reads a little-endian uint32 at off.
func uint32At(buf []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[off:]), true
}

// int32At reads a little-endian signed 32-bit value at off.
func int32At(buf []byte, off int) (int32, bool) {
	v, ok := uint32At(buf, off)
	return int32(v), ok
}

// cString decodes a fixed-width NUL-padded field as UTF-8, truncating at the
// first NUL (or the full width if none) and trimming surrounding whitespace.
func cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return strings.TrimSpace(string(field))
}

// allZero reports whether every byte of the block is zero. Used for the
// "unencrypted channel" secret sentinel.
func allZero(block []byte) bool {
	for _, b := range block {
		if b != 0 {
			return false
		}
	}
	return true
}

// trimTrailingNULs strips the run of NUL bytes some firmware builds append
// to message text.
func trimTrailingNULs(b []byte) []byte {
	return bytes.TrimRight(b, "\x00")
}

// printableRun reports whether buf[off] starts a plausible name: a run of at
// least minRun printable (or high-bit) bytes containing at least two distinct
// values. Contact records from older firmware pad the fixed fields before the
// name inconsistently, so the name field is located by scanning rather than
// by a fixed offset.
func printableRun(buf []byte, off, minRun int) bool {
	if off+minRun > len(buf) {
		return false
	}
	distinct := map[byte]struct{}{}
	for i := off; i < off+minRun; i++ {
		b := buf[i]
		if b < 0x20 || b == 0x7F {
			return false
		}
		distinct[b] = struct{}{}
	}
	return len(distinct) >= 2
}
