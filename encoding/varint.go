// Package encoding implements the variable-length integer/string/float
// codec (spec.md §4.1, C2) and the stateful compressed streams built on
// top of it (spec.md §4.2, C3) used by the update wire format.
//
// Numbers are written little-endian in base-128: bit 7 of each byte is a
// continuation flag, the low 7 bits carry the payload LSB-first. Signed
// integers reserve bit 6 of the first byte as a sign bit; subsequent
// bytes use the plain 7-payload-bit form. This must stay byte-compatible
// with any other implementation of the same wire generation (spec §6.1).
package encoding

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Sentinel errors per spec.md §7 (DecodingError family).
var (
	ErrUnexpectedEOF    = errors.New("encoding: unexpected end of input")
	ErrIntegerOutOfRange = errors.New("encoding: integer out of range")
	ErrUnknownAnyTag    = errors.New("encoding: unknown any type tag")
)

// Encoder accumulates bytes for an update/snapshot/awareness message.
// It is the innermost primitive every higher-level codec in this module
// writes through.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder ready to write.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated byte slice. The caller must not mutate
// the returned slice's backing array across further writes.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len reports how many bytes have been written so far.
func (e *Encoder) Len() int { return len(e.buf) }

// WriteByte appends a single raw byte.
func (e *Encoder) WriteByte(b byte) { e.buf = append(e.buf, b) }

// WriteBytes appends raw bytes with no length prefix.
func (e *Encoder) WriteBytes(b []byte) { e.buf = append(e.buf, b...) }

// WriteUvarint writes an unsigned integer in base-128 varint form.
func (e *Encoder) WriteUvarint(v uint64) {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
}

// WriteVarint writes a signed integer. The first byte reserves bit 6 for
// sign and bit 7 for continuation; remaining bytes are plain 7-bit
// groups, matching spec.md §4.1.
func (e *Encoder) WriteVarint(v int64) {
	if v < 0 {
		e.WriteSignedMagnitude(true, uint64(-v))
	} else {
		e.WriteSignedMagnitude(false, uint64(v))
	}
}

// WriteSignedMagnitude writes the same layout as WriteVarint but takes
// the sign explicitly rather than deriving it from the magnitude's own
// sign. This is what lets UintOptRLE (spec §4.2) distinguish a repeated
// run of the value 0 (negative=true, magnitude=0) from a single
// occurrence of 0 (negative=false, magnitude=0) — something a plain
// int64 negation cannot express, since -int64(0) == 0. The reference
// implementation relies on JavaScript's distinguishable IEEE -0 for the
// same purpose; this is the systems-language equivalent.
func (e *Encoder) WriteSignedMagnitude(negative bool, u uint64) {
	first := byte(u & 0x3f)
	u >>= 6
	if negative {
		first |= 0x40
	}
	if u > 0 {
		first |= 0x80
	}
	e.buf = append(e.buf, first)
	for u > 0 {
		b := byte(u & 0x7f)
		u >>= 7
		if u > 0 {
			b |= 0x80
		}
		e.buf = append(e.buf, b)
	}
}

// WriteString writes varUint(byte-length) || utf8-bytes.
func (e *Encoder) WriteString(s string) {
	e.WriteUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteByteArray writes a length-prefixed byte slice.
func (e *Encoder) WriteByteArray(b []byte) {
	e.WriteUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteFloat32 writes a big-endian IEEE-754 single.
func (e *Encoder) WriteFloat32(f float32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], math.Float32bits(f))
	e.buf = append(e.buf, tmp[:]...)
}

// WriteFloat64 writes a big-endian IEEE-754 double.
func (e *Encoder) WriteFloat64(f float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(f))
	e.buf = append(e.buf, tmp[:]...)
}

// Decoder reads sequentially from a fixed byte slice. Every read method
// returns ErrUnexpectedEOF if it runs past the end, which is fatal to
// the containing update (spec §4.1).
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential reads starting at offset 0.
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// Pos returns the current read offset.
func (d *Decoder) Pos() int { return d.pos }

// Len returns the number of unread bytes remaining.
func (d *Decoder) Len() int { return len(d.buf) - d.pos }

// HasMore reports whether any unread bytes remain.
func (d *Decoder) HasMore() bool { return d.pos < len(d.buf) }

// ReadByte reads a single raw byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads n raw bytes with no length prefix.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, ErrUnexpectedEOF
	}
	out := d.buf[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

// ReadUvarint reads an unsigned base-128 varint. Overflow of the target
// 64-bit width is reported as ErrIntegerOutOfRange.
func (d *Decoder) ReadUvarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := d.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, ErrIntegerOutOfRange
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadUvarint32 reads a varuint and checks it fits in 32 bits.
func (d *Decoder) ReadUvarint32() (uint32, error) {
	v, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, ErrIntegerOutOfRange
	}
	return uint32(v), nil
}

// ReadVarint reads a signed varint in the layout written by WriteVarint.
func (d *Decoder) ReadVarint() (int64, error) {
	negative, result, err := d.ReadSignedMagnitude()
	if err != nil {
		return 0, err
	}
	if negative {
		return -int64(result), nil
	}
	return int64(result), nil
}

// ReadSignedMagnitude is the explicit-sign counterpart to
// WriteSignedMagnitude: it returns the sign bit and magnitude
// separately instead of folding them into a possibly sign-losing int64.
func (d *Decoder) ReadSignedMagnitude() (negative bool, magnitude uint64, err error) {
	first, err := d.ReadByte()
	if err != nil {
		return false, 0, err
	}
	negative = first&0x40 != 0
	result := uint64(first & 0x3f)
	if first&0x80 == 0 {
		return negative, result, nil
	}
	var shift uint = 6
	for {
		b, err := d.ReadByte()
		if err != nil {
			return false, 0, err
		}
		if shift >= 70 {
			return false, 0, ErrIntegerOutOfRange
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return negative, result, nil
}

// ReadString reads varUint(byte-length) || utf8-bytes.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return "", err
	}
	b, err := d.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadByteArray reads a length-prefixed byte slice, returning a copy so
// the caller owns it independent of the decoder's backing buffer.
func (d *Decoder) ReadByteArray() ([]byte, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	b, err := d.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadFloat32 reads a big-endian IEEE-754 single.
func (d *Decoder) ReadFloat32() (float32, error) {
	b, err := d.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

// ReadFloat64 reads a big-endian IEEE-754 double.
func (d *Decoder) ReadFloat64() (float64, error) {
	b, err := d.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}
