package encoding

// This file implements the four stateful compressed stream encoders of
// spec.md §4.2 (C3), composed inside the v2 update format (spec §4.9) to
// shrink structurally repetitive fields: client IDs, clocks, info bytes,
// parent-info flags, type refs, struct lengths.

// RLEEncoder emits a value followed by a run-length count. It is generic
// over the comparable payload type T; the caller supplies how a single T
// is written via the write callback.
type RLEEncoder[T comparable] struct {
	enc   *Encoder
	write func(*Encoder, T)

	started bool
	value   T
	count   uint64
}

// NewRLEEncoder wraps enc with run-length encoding for values written
// through write.
func NewRLEEncoder[T comparable](enc *Encoder, write func(*Encoder, T)) *RLEEncoder[T] {
	return &RLEEncoder[T]{enc: enc, write: write}
}

// Write buffers v into the current run, flushing the prior run first if
// v differs from it.
func (r *RLEEncoder[T]) Write(v T) {
	if r.started && v == r.value {
		r.count++
		return
	}
	r.flush()
	r.started = true
	r.value = v
	r.count = 1
}

func (r *RLEEncoder[T]) flush() {
	if !r.started {
		return
	}
	r.write(r.enc, r.value)
	r.enc.WriteUvarint(r.count - 1)
}

// Finish flushes any pending run. Must be called exactly once after the
// last Write.
func (r *RLEEncoder[T]) Finish() { r.flush() }

// RLEDecoder is the reading half of RLEEncoder.
type RLEDecoder[T any] struct {
	dec  *Decoder
	read func(*Decoder) (T, error)

	value     T
	remaining uint64
}

// NewRLEDecoder wraps dec for reading values through read.
func NewRLEDecoder[T any](dec *Decoder, read func(*Decoder) (T, error)) *RLEDecoder[T] {
	return &RLEDecoder[T]{dec: dec, read: read}
}

// Read returns the next value in the run-length stream.
func (r *RLEDecoder[T]) Read() (T, error) {
	if r.remaining == 0 {
		v, err := r.read(r.dec)
		if err != nil {
			var zero T
			return zero, err
		}
		n, err := r.dec.ReadUvarint()
		if err != nil {
			var zero T
			return zero, err
		}
		r.value = v
		r.remaining = n + 1
	}
	r.remaining--
	return r.value, nil
}

// HasContent reports whether more decoded bytes are available to start
// a new run (the caller is responsible for knowing how many logical
// values to pull; this is only useful for streams with a known total).
func (r *RLEDecoder[T]) HasContent() bool {
	return r.remaining > 0 || r.dec.HasMore()
}

// UintOptRLEEncoder implements spec §4.2's UintOptRLE: a run of length 1
// is written as a positive varint of the value; a run of length > 1 is
// written as the negation of the value followed by count-2.
type UintOptRLEEncoder struct {
	enc *Encoder

	started bool
	value   uint64
	count   uint64
}

// NewUintOptRLEEncoder wraps enc.
func NewUintOptRLEEncoder(enc *Encoder) *UintOptRLEEncoder {
	return &UintOptRLEEncoder{enc: enc}
}

// Write buffers v, extending the current run if it repeats the last
// value.
func (u *UintOptRLEEncoder) Write(v uint64) {
	if u.started && v == u.value {
		u.count++
		return
	}
	u.flush()
	u.started = true
	u.value = v
	u.count = 1
}

func (u *UintOptRLEEncoder) flush() {
	if !u.started {
		return
	}
	if u.count == 1 {
		u.enc.WriteSignedMagnitude(false, u.value)
	} else {
		u.enc.WriteSignedMagnitude(true, u.value)
		u.enc.WriteUvarint(u.count - 2)
	}
}

// Finish flushes the pending run.
func (u *UintOptRLEEncoder) Finish() { u.flush() }

// UintOptRLEDecoder is the reading half of UintOptRLEEncoder. The
// decoder recognizes the negative flag, including negative zero, to
// distinguish a single occurrence from a repeated run (spec §4.2).
type UintOptRLEDecoder struct {
	dec *Decoder

	value     uint64
	remaining uint64
}

// NewUintOptRLEDecoder wraps dec.
func NewUintOptRLEDecoder(dec *Decoder) *UintOptRLEDecoder {
	return &UintOptRLEDecoder{dec: dec}
}

// Read returns the next decoded unsigned value. The negative-flag check
// is on the explicit sign bit (ReadSignedMagnitude), not on the
// magnitude's arithmetic sign, so a run of the value 0 is distinguished
// correctly from a single occurrence of 0 (spec §4.2's "negative zero"
// case).
func (u *UintOptRLEDecoder) Read() (uint64, error) {
	if u.remaining == 0 {
		negative, magnitude, err := u.dec.ReadSignedMagnitude()
		if err != nil {
			return 0, err
		}
		if negative {
			count, err := u.dec.ReadUvarint()
			if err != nil {
				return 0, err
			}
			u.value = magnitude
			u.remaining = count + 2
		} else {
			u.value = magnitude
			u.remaining = 1
		}
	}
	u.remaining--
	return u.value, nil
}

// HasMore reports whether more values are pending in the current run or
// bytes remain to start a new one.
func (u *UintOptRLEDecoder) HasMore() bool {
	return u.remaining > 0 || u.dec.HasMore()
}

// IntDiffOptRLEEncoder implements spec §4.2's IntDiffOptRLE: tracks the
// previous value and encodes the delta; the LSB of the encoded varint
// marks "more than one occurrence", the next bit is sign, the rest is
// diff magnitude; when the flag is set a varUint count follows.
type IntDiffOptRLEEncoder struct {
	enc *Encoder

	started bool
	prev    int64
	diff    int64
	count   uint64
}

// NewIntDiffOptRLEEncoder wraps enc.
func NewIntDiffOptRLEEncoder(enc *Encoder) *IntDiffOptRLEEncoder {
	return &IntDiffOptRLEEncoder{enc: enc}
}

// Write buffers v, computing its delta from the previous value and
// extending the current run if the delta repeats.
func (e *IntDiffOptRLEEncoder) Write(v int64) {
	if !e.started {
		e.started = true
		e.diff = v
		e.prev = v
		e.count = 1
		return
	}
	d := v - e.prev
	if d == e.diff {
		e.count++
		e.prev = v
		return
	}
	e.flush()
	e.diff = d
	e.prev = v
	e.count = 1
}

func (e *IntDiffOptRLEEncoder) flush() {
	if !e.started {
		return
	}
	more := e.count > 1
	encoded := e.diff << 1
	if more {
		encoded |= 1
	}
	e.enc.WriteVarint(encoded)
	if more {
		e.enc.WriteUvarint(e.count - 1)
	}
}

// Finish flushes the pending run.
func (e *IntDiffOptRLEEncoder) Finish() { e.flush() }

// IntDiffOptRLEDecoder is the reading half of IntDiffOptRLEEncoder.
type IntDiffOptRLEDecoder struct {
	dec *Decoder

	value     int64
	diff      int64
	remaining uint64
	started   bool
}

// NewIntDiffOptRLEDecoder wraps dec.
func NewIntDiffOptRLEDecoder(dec *Decoder) *IntDiffOptRLEDecoder {
	return &IntDiffOptRLEDecoder{dec: dec}
}

// Read returns the next decoded signed value.
func (d *IntDiffOptRLEDecoder) Read() (int64, error) {
	if d.remaining == 0 {
		encoded, err := d.dec.ReadVarint()
		if err != nil {
			return 0, err
		}
		more := encoded&1 != 0
		diff := encoded >> 1
		count := uint64(1)
		if more {
			n, err := d.dec.ReadUvarint()
			if err != nil {
				return 0, err
			}
			count = n + 1
		}
		d.diff = diff
		d.remaining = count
		if !d.started {
			d.value = diff
			d.started = true
		} else {
			d.value += diff
		}
	} else {
		d.value += d.diff
	}
	d.remaining--
	return d.value, nil
}

// HasMore reports whether more values are pending or bytes remain.
func (d *IntDiffOptRLEDecoder) HasMore() bool {
	return d.remaining > 0 || d.dec.HasMore()
}

// StringEncoder concatenates all strings written to it into one UTF-8
// buffer appended at the end, with per-string lengths routed through a
// UintOptRLE side-channel (spec §4.2).
type StringEncoder struct {
	lengths *UintOptRLEEncoder
	lenEnc  *Encoder
	data    []byte
}

// NewStringEncoder creates an empty string-stream encoder.
func NewStringEncoder() *StringEncoder {
	lenEnc := NewEncoder()
	return &StringEncoder{
		lengths: NewUintOptRLEEncoder(lenEnc),
		lenEnc:  lenEnc,
	}
}

// Write appends s to the string-data buffer and records its length.
func (s *StringEncoder) Write(str string) {
	s.lengths.Write(uint64(len(str)))
	s.data = append(s.data, str...)
}

// Finish flushes the length side-channel. Must be called before Flush.
func (s *StringEncoder) Finish() { s.lengths.Finish() }

// Flush writes the side-channel length bytes then the concatenated
// string data, both length-prefixed, into dst.
func (s *StringEncoder) Flush(dst *Encoder) {
	dst.WriteByteArray(s.lenEnc.Bytes())
	dst.WriteByteArray(s.data)
}

// StringDecoder is the reading half of StringEncoder.
type StringDecoder struct {
	lengths *UintOptRLEDecoder
	data    []byte
	pos     int
}

// NewStringDecoder reads the two length-prefixed blocks Flush wrote and
// returns a decoder ready to yield strings in original write order.
func NewStringDecoder(src *Decoder) (*StringDecoder, error) {
	lenBytes, err := src.ReadByteArray()
	if err != nil {
		return nil, err
	}
	data, err := src.ReadByteArray()
	if err != nil {
		return nil, err
	}
	return &StringDecoder{
		lengths: NewUintOptRLEDecoder(NewDecoder(lenBytes)),
		data:    data,
	}, nil
}

// Read returns the next string in the stream.
func (s *StringDecoder) Read() (string, error) {
	n, err := s.lengths.Read()
	if err != nil {
		return "", err
	}
	if s.pos+int(n) > len(s.data) {
		return "", ErrUnexpectedEOF
	}
	str := string(s.data[s.pos : s.pos+int(n)])
	s.pos += int(n)
	return str, nil
}
