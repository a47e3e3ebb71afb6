package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAny_RoundTrip(t *testing.T) {
	values := []Any{
		{Kind: AnyUndefined},
		{Kind: AnyNull},
		{Kind: AnyInt, Int: -42},
		{Kind: AnyFloat32, Float32: 1.5},
		{Kind: AnyFloat64, Float64: 1.23456789},
		{Kind: AnyBigInt, BigInt: 123456789012},
		{Kind: AnyBool, Bool: true},
		{Kind: AnyBool, Bool: false},
		{Kind: AnyString, String: "hi"},
		{Kind: AnyBytes, Bytes: []byte{9, 8, 7}},
		{Kind: AnyArray, Array: []Any{{Kind: AnyInt, Int: 1}, {Kind: AnyString, String: "x"}}},
		{Kind: AnyObject, Object: map[string]Any{"k": {Kind: AnyInt, Int: 7}}},
	}
	for _, v := range values {
		e := NewEncoder()
		e.WriteAny(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadAny()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestClassifyNumber(t *testing.T) {
	assert.Equal(t, Any{Kind: AnyInt, Int: 5}, ClassifyNumber(5))
	assert.Equal(t, AnyFloat64, ClassifyNumber(1.0000000001).Kind)
}

func TestReadAny_UnknownTag(t *testing.T) {
	d := NewDecoder([]byte{0x00})
	_, err := d.ReadAny()
	assert.ErrorIs(t, err, ErrUnknownAnyTag)
}
