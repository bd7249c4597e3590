// Package sflow decodes sFlow v5 datagrams: the XDR-style, big-endian,
// length-prefixed wire format switches and routers use to report sampled
// packet headers and interface counters.
package sflow

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode error taxonomy. Every failure returned by Decode wraps one of
// these sentinels so callers can classify with errors.Is without parsing
// strings.
var (
	ErrShortBuffer            = errors.New("sflow: short buffer")
	ErrUnsupportedVersion     = errors.New("sflow: unsupported version")
	ErrUnsupportedAddressType = errors.New("sflow: unsupported agent address type")
	ErrTruncated              = errors.New("sflow: truncated sample")
	ErrLengthMismatch         = errors.New("sflow: length mismatch")
)

// Reader is a forward-only cursor over a borrowed byte slice. It never
// allocates: ReadExact hands back a bounds-checked view into the caller's
// backing array rather than a copy. Every method that needs more bytes
// than remain returns ErrShortBuffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential, bounds-checked reads.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos reports the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if n < 0 || n > r.Remaining() {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, r.Remaining())
	}
	return nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// Uint64 reads a big-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadExact returns a view of the next n bytes without copying. The
// returned slice aliases the Reader's backing array and is only valid for
// as long as that array is.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadInto copies exactly len(dst) bytes into dst.
func (r *Reader) ReadInto(dst []byte) error {
	v, err := r.ReadExact(len(dst))
	if err != nil {
		return err
	}
	copy(dst, v)
	return nil
}

// Skip advances the cursor by n bytes without returning them.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}
