package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUintOptRLE_RoundTrip(t *testing.T) {
	values := []uint64{5, 5, 5, 7, 1, 1, 0, 0, 0, 9}
	e := NewEncoder()
	enc := NewUintOptRLEEncoder(e)
	for _, v := range values {
		enc.Write(v)
	}
	enc.Finish()

	d := NewDecoder(e.Bytes())
	dec := NewUintOptRLEDecoder(d)
	for _, want := range values {
		got, err := dec.Read()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestIntDiffOptRLE_RoundTrip(t *testing.T) {
	values := []int64{0, 1, 2, 3, 3, 3, 10, 5, 0, -5}
	e := NewEncoder()
	enc := NewIntDiffOptRLEEncoder(e)
	for _, v := range values {
		enc.Write(v)
	}
	enc.Finish()

	d := NewDecoder(e.Bytes())
	dec := NewIntDiffOptRLEDecoder(d)
	for _, want := range values {
		got, err := dec.Read()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestStringStream_RoundTrip(t *testing.T) {
	values := []string{"alpha", "beta", "beta", "", "gamma"}
	senc := NewStringEncoder()
	for _, s := range values {
		senc.Write(s)
	}
	senc.Finish()

	e := NewEncoder()
	senc.Flush(e)

	d := NewDecoder(e.Bytes())
	sdec, err := NewStringDecoder(d)
	require.NoError(t, err)
	for _, want := range values {
		got, err := sdec.Read()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRLEEncoder_Generic(t *testing.T) {
	values := []uint32{1, 1, 1, 2, 2, 3}
	e := NewEncoder()
	enc := NewRLEEncoder(e, func(enc *Encoder, v uint32) { enc.WriteUvarint(uint64(v)) })
	for _, v := range values {
		enc.Write(v)
	}
	enc.Finish()

	d := NewDecoder(e.Bytes())
	dec := NewRLEDecoder(d, func(d *Decoder) (uint32, error) {
		v, err := d.ReadUvarint32()
		return v, err
	})
	for _, want := range values {
		got, err := dec.Read()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
