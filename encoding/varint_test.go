package encoding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUvarint_RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, math.MaxUint32, math.MaxUint64}
	for _, v := range values {
		e := NewEncoder()
		e.WriteUvarint(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadUvarint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVarint_RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, -63, 64, -64, 1000, -1000, math.MaxInt32, math.MinInt32}
	for _, v := range values {
		e := NewEncoder()
		e.WriteVarint(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadVarint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestString_RoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteString("hello, \xe4\xb8\x96\xe7\x95\x8c")
	d := NewDecoder(e.Bytes())
	got, err := d.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello, \xe4\xb8\x96\xe7\x95\x8c", got)
}

func TestFloats_RoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteFloat32(3.5)
	e.WriteFloat64(2.718281828)
	d := NewDecoder(e.Bytes())

	f32, err := d.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f32)

	f64, err := d.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 2.718281828, f64)
}

func TestDecoder_UnexpectedEOF(t *testing.T) {
	d := NewDecoder([]byte{0x80})
	_, err := d.ReadUvarint()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestByteArray_RoundTrip(t *testing.T) {
	e := NewEncoder()
	payload := []byte{1, 2, 3, 4, 5}
	e.WriteByteArray(payload)
	d := NewDecoder(e.Bytes())
	got, err := d.ReadByteArray()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
