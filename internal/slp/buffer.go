// Package slp implements the core Service Location Protocol v2 agent
// (RFC 2608, RFC 2614): the binary message codec, authentication blocks,
// the Known-DA tracker, the registration database, and the request
// dispatcher that together let an agent act as SA, UA, and DA.
package slp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sentinel errors for buffer operations. Every short-read is surfaced as
// one of these rather than a panic or a raw io.EOF, so callers can turn a
// malformed datagram into PARSE_ERROR without inspecting byte offsets.
var (
	// ErrBufferUnderrun indicates a read would advance curpos past end.
	ErrBufferUnderrun = errors.New("slp: buffer underrun")

	// ErrBufferOverrun indicates a write would advance past the
	// allocated capacity.
	ErrBufferOverrun = errors.New("slp: buffer overrun")

	// ErrStringTooLong indicates a string length prefix does not fit in
	// the remaining buffer.
	ErrStringTooLong = errors.New("slp: string length exceeds remaining buffer")
)

// buffer is a contiguous byte region with three cursors: start, curpos,
// and end (spec.md §4.1). Read primitives advance curpos and fail rather
// than cross end; write primitives advance curpos and fail rather than
// cross the capacity of the backing slice.
//
// Integers are big-endian. 24-bit integers occupy three consecutive bytes,
// high byte first. Strings are length-prefixed by a 16-bit unsigned count;
// the payload is not NUL-terminated.
type buffer struct {
	data   []byte
	start  int
	curpos int
	end    int
}

// newReadBuffer wraps an existing byte slice for parsing. end is set to
// len(data): the whole slice is readable.
func newReadBuffer(data []byte) *buffer {
	return &buffer{data: data, start: 0, curpos: 0, end: len(data)}
}

// newWriteBuffer allocates a buffer of exactly size bytes for
// serialization. Serializers compute the full length before calling this
// (spec.md §4.2): a serialization never emits padding bytes.
func newWriteBuffer(size int) *buffer {
	return &buffer{data: make([]byte, size), start: 0, curpos: 0, end: size}
}

// remaining returns the number of unread/unwritten bytes between curpos
// and end.
func (b *buffer) remaining() int {
	return b.end - b.curpos
}

// bytesWritten returns the number of bytes produced so far, i.e. the final
// slice length once serialization is complete.
func (b *buffer) bytesWritten() int {
	return b.curpos
}

// requireRemaining fails fast when fewer than n bytes remain, used by both
// read and write paths (the write path pre-sizes its buffer exactly, so an
// overrun there indicates a length-computation bug, not untrusted input).
func (b *buffer) requireRemaining(n int, overrun error) error {
	if n < 0 || b.remaining() < n {
		return overrun
	}
	return nil
}

// --- reads ---

func (b *buffer) readUint8() (uint8, error) {
	if err := b.requireRemaining(1, ErrBufferUnderrun); err != nil {
		return 0, err
	}
	v := b.data[b.curpos]
	b.curpos++
	return v, nil
}

func (b *buffer) readUint16() (uint16, error) {
	if err := b.requireRemaining(2, ErrBufferUnderrun); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.data[b.curpos:])
	b.curpos += 2
	return v, nil
}

// readUint24 reads a 24-bit big-endian integer, used for the header
// length and extension-offset fields (spec.md §4.1).
func (b *buffer) readUint24() (uint32, error) {
	if err := b.requireRemaining(3, ErrBufferUnderrun); err != nil {
		return 0, err
	}
	v := uint32(b.data[b.curpos])<<16 | uint32(b.data[b.curpos+1])<<8 | uint32(b.data[b.curpos+2])
	b.curpos += 3
	return v, nil
}

func (b *buffer) readUint32() (uint32, error) {
	if err := b.requireRemaining(4, ErrBufferUnderrun); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.data[b.curpos:])
	b.curpos += 4
	return v, nil
}

// readBytes reads n raw bytes, returning a sub-slice of the underlying
// buffer (not a copy). Callers that retain the result past the next parse
// must copy it themselves.
func (b *buffer) readBytes(n int) ([]byte, error) {
	if err := b.requireRemaining(n, ErrBufferUnderrun); err != nil {
		return nil, err
	}
	v := b.data[b.curpos : b.curpos+n]
	b.curpos += n
	return v, nil
}

// readString reads a 16-bit length-prefixed string. The parser validates
// that the length prefix fits the remaining bytes before slicing
// (spec.md §4.2: "The parser validates that each length prefix fits the
// remaining bytes").
func (b *buffer) readString() (string, error) {
	n, err := b.readUint16()
	if err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	if int(n) > b.remaining() {
		return "", fmt.Errorf("string length %d exceeds remaining %d: %w", n, b.remaining(), ErrStringTooLong)
	}
	raw, err := b.readBytes(int(n))
	if err != nil {
		return "", fmt.Errorf("read string body: %w", err)
	}
	return string(raw), nil
}

// --- writes ---

func (b *buffer) writeUint8(v uint8) error {
	if err := b.requireRemaining(1, ErrBufferOverrun); err != nil {
		return err
	}
	b.data[b.curpos] = v
	b.curpos++
	return nil
}

func (b *buffer) writeUint16(v uint16) error {
	if err := b.requireRemaining(2, ErrBufferOverrun); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b.data[b.curpos:], v)
	b.curpos += 2
	return nil
}

func (b *buffer) writeUint24(v uint32) error {
	if err := b.requireRemaining(3, ErrBufferOverrun); err != nil {
		return err
	}
	b.data[b.curpos] = byte(v >> 16)
	b.data[b.curpos+1] = byte(v >> 8)
	b.data[b.curpos+2] = byte(v)
	b.curpos += 3
	return nil
}

func (b *buffer) writeUint32(v uint32) error {
	if err := b.requireRemaining(4, ErrBufferOverrun); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b.data[b.curpos:], v)
	b.curpos += 4
	return nil
}

func (b *buffer) writeBytes(v []byte) error {
	if err := b.requireRemaining(len(v), ErrBufferOverrun); err != nil {
		return err
	}
	copy(b.data[b.curpos:], v)
	b.curpos += len(v)
	return nil
}

// writeString writes a 16-bit length-prefixed string.
func (b *buffer) writeString(s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string length %d exceeds uint16 range: %w", len(s), ErrStringTooLong)
	}
	if err := b.writeUint16(uint16(len(s))); err != nil { //nolint:gosec // bounds checked above
		return err
	}
	return b.writeBytes([]byte(s))
}

// stringEncodedLen returns the number of wire bytes a length-prefixed
// string occupies, used by length-computation passes before allocation.
func stringEncodedLen(s string) int {
	return 2 + len(s)
}
