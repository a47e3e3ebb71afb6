package encoding

import (
	"math"

	"github.com/pkg/errors"
)

// AnyKind discriminates the closed set of dynamically-typed values the
// wire format can carry (spec.md §4.1 "any value tag table", generalized
// per §9's "Dynamic typing of any" design note into a tagged sum type).
type AnyKind int

const (
	AnyUndefined AnyKind = iota
	AnyNull
	AnyInt
	AnyFloat32
	AnyFloat64
	AnyBigInt
	AnyBool
	AnyString
	AnyObject
	AnyArray
	AnyBytes
)

// Any is a statically-typed stand-in for the JSON/JS "any" value that
// Yjs-class content variants (Embed, Any, JSON) carry. Exactly one field
// is meaningful per Kind.
type Any struct {
	Kind    AnyKind
	Int     int32
	Float32 float32
	Float64 float64
	BigInt  int64 // BigInt is modeled as int64; spec §9 only requires round-trip fidelity, not arbitrary precision.
	Bool    bool
	String  string
	Object  map[string]Any
	Array   []Any
	Bytes   []byte
}

// Tag bytes from the fixed table in spec.md §4.1.
const (
	tagUndefined byte = 127
	tagNull      byte = 126
	tagInteger   byte = 125
	tagFloat32   byte = 124
	tagFloat64   byte = 123
	tagBigInt    byte = 122
	tagFalse     byte = 121
	tagTrue      byte = 120
	tagString    byte = 119
	tagObject    byte = 118
	tagArray     byte = 117
	tagUint8Arr  byte = 116
)

// WriteAny encodes a a value using the fixed tag-prefix table. Numbers
// are tagged by the Kind they already carry (AnyInt -> 125, AnyFloat32
// -> 124, AnyFloat64 -> 123, AnyBigInt -> 122); ClassifyNumber is what
// picks that Kind for a plain float64 by spec §4.1's rule (int32, else
// exact float32, else float64).
func (e *Encoder) WriteAny(v Any) {
	switch v.Kind {
	case AnyUndefined:
		e.WriteByte(tagUndefined)
	case AnyNull:
		e.WriteByte(tagNull)
	case AnyInt:
		e.WriteByte(tagInteger)
		e.WriteVarint(int64(v.Int))
	case AnyFloat32:
		e.WriteByte(tagFloat32)
		e.WriteFloat32(v.Float32)
	case AnyFloat64:
		e.WriteByte(tagFloat64)
		e.WriteFloat64(v.Float64)
	case AnyBigInt:
		e.WriteByte(tagBigInt)
		e.WriteVarint(v.BigInt)
	case AnyBool:
		if v.Bool {
			e.WriteByte(tagTrue)
		} else {
			e.WriteByte(tagFalse)
		}
	case AnyString:
		e.WriteByte(tagString)
		e.WriteString(v.String)
	case AnyObject:
		e.WriteByte(tagObject)
		e.WriteUvarint(uint64(len(v.Object)))
		for k, val := range v.Object {
			e.WriteString(k)
			e.WriteAny(val)
		}
	case AnyArray:
		e.WriteByte(tagArray)
		e.WriteUvarint(uint64(len(v.Array)))
		for _, val := range v.Array {
			e.WriteAny(val)
		}
	case AnyBytes:
		e.WriteByte(tagUint8Arr)
		e.WriteByteArray(v.Bytes)
	default:
		e.WriteByte(tagUndefined)
	}
}

// ReadAny dispatches on the leading tag byte through a fixed table, per
// spec §4.1 ("the reader dispatches on the prefix through a fixed
// table"). An unrecognized tag is a DecodingError.
func (d *Decoder) ReadAny() (Any, error) {
	tag, err := d.ReadByte()
	if err != nil {
		return Any{}, err
	}
	switch tag {
	case tagUndefined:
		return Any{Kind: AnyUndefined}, nil
	case tagNull:
		return Any{Kind: AnyNull}, nil
	case tagInteger:
		v, err := d.ReadVarint()
		if err != nil {
			return Any{}, err
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return Any{}, ErrIntegerOutOfRange
		}
		return Any{Kind: AnyInt, Int: int32(v)}, nil
	case tagFloat32:
		v, err := d.ReadFloat32()
		if err != nil {
			return Any{}, err
		}
		return Any{Kind: AnyFloat32, Float32: v}, nil
	case tagFloat64:
		v, err := d.ReadFloat64()
		if err != nil {
			return Any{}, err
		}
		return Any{Kind: AnyFloat64, Float64: v}, nil
	case tagBigInt:
		v, err := d.ReadVarint()
		if err != nil {
			return Any{}, err
		}
		return Any{Kind: AnyBigInt, BigInt: v}, nil
	case tagFalse:
		return Any{Kind: AnyBool, Bool: false}, nil
	case tagTrue:
		return Any{Kind: AnyBool, Bool: true}, nil
	case tagString:
		s, err := d.ReadString()
		if err != nil {
			return Any{}, err
		}
		return Any{Kind: AnyString, String: s}, nil
	case tagObject:
		n, err := d.ReadUvarint()
		if err != nil {
			return Any{}, err
		}
		obj := make(map[string]Any, n)
		for i := uint64(0); i < n; i++ {
			k, err := d.ReadString()
			if err != nil {
				return Any{}, err
			}
			val, err := d.ReadAny()
			if err != nil {
				return Any{}, err
			}
			obj[k] = val
		}
		return Any{Kind: AnyObject, Object: obj}, nil
	case tagArray:
		n, err := d.ReadUvarint()
		if err != nil {
			return Any{}, err
		}
		arr := make([]Any, 0, n)
		for i := uint64(0); i < n; i++ {
			val, err := d.ReadAny()
			if err != nil {
				return Any{}, err
			}
			arr = append(arr, val)
		}
		return Any{Kind: AnyArray, Array: arr}, nil
	case tagUint8Arr:
		b, err := d.ReadByteArray()
		if err != nil {
			return Any{}, err
		}
		return Any{Kind: AnyBytes, Bytes: b}, nil
	default:
		return Any{}, errors.Wrapf(ErrUnknownAnyTag, "tag byte %d", tag)
	}
}

// ClassifyNumber maps a Go float64 (the natural decode target for
// dynamically-typed numeric input, e.g. from JSON) to the Any variant
// spec.md §4.1 mandates: int32 first, then float32 if exact, else
// float64.
func ClassifyNumber(f float64) Any {
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
		return Any{Kind: AnyInt, Int: int32(f)}
	}
	if f32 := float32(f); float64(f32) == f {
		return Any{Kind: AnyFloat32, Float32: f32}
	}
	return Any{Kind: AnyFloat64, Float64: f}
}
