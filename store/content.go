package store

import (
	"github.com/pkg/errors"

	"github.com/opencrdt/ydoc/encoding"
)

var errNoNestedTypeReader = errors.New("store: no NestedTypeReader registered (import package types)")

// Content tag bytes, spec.md §3.3. Tag 0 is reserved for GC structs and
// tag 10 for Skip structs at the struct level (see item.go); content
// tags only use 1..9.
const (
	ContentTagDeleted byte = 1
	ContentTagJSON    byte = 2
	ContentTagBinary  byte = 3
	ContentTagString  byte = 4
	ContentTagEmbed   byte = 5
	ContentTagFormat  byte = 6
	ContentTagType    byte = 7
	ContentTagAny     byte = 8
	ContentTagDoc     byte = 9
)

// Content is the closed tagged-sum of the nine content variants an Item
// may carry (spec.md §3.3, §9 "Dynamic content variants"). Every variant
// implements integrate/delete/gc/merge_with/write/split as described by
// the spec; "integrate" and "delete"/"gc" side effects are driven from
// outside (store/integrate.go, deleteset) since they need access to the
// owning Item and transaction, so Content itself stays a pure value type.
type Content interface {
	// Tag returns this variant's wire tag byte.
	Tag() byte
	// Len returns how many positions this content occupies. Every
	// variant contributes length (spec §3.3); whether that length is
	// "countable" for sequence-length accounting is Countable().
	Len() int
	// Countable reports whether this content counts toward the owning
	// type's visible length (spec §3.3: Format and Deleted are not).
	Countable() bool
	// Splittable reports whether Split may be called with 0 < offset < Len().
	Splittable() bool
	// Split divides the content at offset, returning the left and right
	// halves; offset must be in (0, Len()).
	Split(offset int) (left, right Content)
	// MergeWith attempts to fuse other onto the end of this content,
	// returning the fused content and true on success. Only content of
	// the same concrete variant can ever merge (invariant M6).
	MergeWith(other Content) (Content, bool)
	// Write serializes the content's payload (not its tag byte, which
	// the caller writes as part of the struct info byte).
	Write(enc *encoding.Encoder)
}

// ---- Deleted ----

// DeletedContent is a gap preserved after GC of other content; it
// contributes length but carries no payload (spec §3.3 tag 1).
type DeletedContent struct {
	length int
}

func NewDeletedContent(length int) *DeletedContent { return &DeletedContent{length: length} }

func (c *DeletedContent) Tag() byte        { return ContentTagDeleted }
func (c *DeletedContent) Len() int         { return c.length }
func (c *DeletedContent) Countable() bool  { return false }
func (c *DeletedContent) Splittable() bool { return true }
func (c *DeletedContent) Split(offset int) (Content, Content) {
	return &DeletedContent{length: offset}, &DeletedContent{length: c.length - offset}
}
func (c *DeletedContent) MergeWith(other Content) (Content, bool) {
	o, ok := other.(*DeletedContent)
	if !ok {
		return nil, false
	}
	return &DeletedContent{length: c.length + o.length}, true
}
func (c *DeletedContent) Write(enc *encoding.Encoder) { enc.WriteUvarint(uint64(c.length)) }

func ReadDeletedContent(dec *encoding.Decoder) (*DeletedContent, error) {
	n, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}
	return &DeletedContent{length: int(n)}, nil
}

// ---- JSON (legacy) ----

// JSONContent is an array of JSON-encoded scalars, kept for wire
// compatibility with legacy encoders (spec §3.3 tag 2).
type JSONContent struct {
	Values []string // pre-serialized JSON scalars, one per logical slot
}

func (c *JSONContent) Tag() byte        { return ContentTagJSON }
func (c *JSONContent) Len() int         { return len(c.Values) }
func (c *JSONContent) Countable() bool  { return true }
func (c *JSONContent) Splittable() bool { return true }
func (c *JSONContent) Split(offset int) (Content, Content) {
	return &JSONContent{Values: append([]string{}, c.Values[:offset]...)},
		&JSONContent{Values: append([]string{}, c.Values[offset:]...)}
}
func (c *JSONContent) MergeWith(other Content) (Content, bool) {
	o, ok := other.(*JSONContent)
	if !ok {
		return nil, false
	}
	merged := append(append([]string{}, c.Values...), o.Values...)
	return &JSONContent{Values: merged}, true
}
func (c *JSONContent) Write(enc *encoding.Encoder) {
	enc.WriteUvarint(uint64(len(c.Values)))
	for _, v := range c.Values {
		enc.WriteString(v)
	}
}

func ReadJSONContent(dec *encoding.Decoder) (*JSONContent, error) {
	n, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}
	vals := make([]string, n)
	for i := range vals {
		s, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		vals[i] = s
	}
	return &JSONContent{Values: vals}, nil
}

// ---- Binary ----

// BinaryContent is a single opaque byte blob (spec §3.3 tag 3). It is
// atomic: length is always 1 regardless of payload size, matching Yjs
// (a binary blob is one indivisible "character" of the sequence).
type BinaryContent struct {
	Data []byte
}

func (c *BinaryContent) Tag() byte                            { return ContentTagBinary }
func (c *BinaryContent) Len() int                             { return 1 }
func (c *BinaryContent) Countable() bool                      { return true }
func (c *BinaryContent) Splittable() bool                     { return false }
func (c *BinaryContent) Split(int) (Content, Content)         { panic("store: BinaryContent is not splittable") }
func (c *BinaryContent) MergeWith(Content) (Content, bool)    { return nil, false }
func (c *BinaryContent) Write(enc *encoding.Encoder)          { enc.WriteByteArray(c.Data) }

func ReadBinaryContent(dec *encoding.Decoder) (*BinaryContent, error) {
	b, err := dec.ReadByteArray()
	if err != nil {
		return nil, err
	}
	return &BinaryContent{Data: b}, nil
}

// ---- String ----

// StringContent is a UTF-16 code-unit string; Len() is the code-unit
// count, not the UTF-8 byte length or rune count (spec §3.3 tag 4).
// Stored internally as UTF-16 code units so splitting at an arbitrary
// offset can never straddle a surrogate pair silently; Split enforces
// the replacement-character rule from spec §8.2.
type StringContent struct {
	Units []uint16
}

// NewStringContentFromRunes encodes a Go string (UTF-8) into UTF-16 code
// units, the unit the wire format and index semantics operate on.
func NewStringContentFromRunes(s string) *StringContent {
	return &StringContent{Units: utf16Encode(s)}
}

func (c *StringContent) String() string { return utf16Decode(c.Units) }

func (c *StringContent) Tag() byte        { return ContentTagString }
func (c *StringContent) Len() int         { return len(c.Units) }
func (c *StringContent) Countable() bool  { return true }
func (c *StringContent) Splittable() bool { return true }
func (c *StringContent) Split(offset int) (Content, Content) {
	left := append([]uint16{}, c.Units[:offset]...)
	right := append([]uint16{}, c.Units[offset:]...)
	// spec §8.2: splitting across a surrogate pair replaces both halves
	// with U+FFFD rather than producing an invalid lone surrogate.
	if offset > 0 && offset < len(c.Units) && isHighSurrogate(c.Units[offset-1]) && isLowSurrogate(c.Units[offset]) {
		left[len(left)-1] = 0xFFFD
		right[0] = 0xFFFD
	}
	return &StringContent{Units: left}, &StringContent{Units: right}
}
func (c *StringContent) MergeWith(other Content) (Content, bool) {
	o, ok := other.(*StringContent)
	if !ok {
		return nil, false
	}
	merged := append(append([]uint16{}, c.Units...), o.Units...)
	return &StringContent{Units: merged}, true
}
func (c *StringContent) Write(enc *encoding.Encoder) { enc.WriteString(c.String()) }

func ReadStringContent(dec *encoding.Decoder) (*StringContent, error) {
	s, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	return NewStringContentFromRunes(s), nil
}

func isHighSurrogate(u uint16) bool { return u >= 0xD800 && u <= 0xDBFF }
func isLowSurrogate(u uint16) bool  { return u >= 0xDC00 && u <= 0xDFFF }

func utf16Encode(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r > 0xFFFF {
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		} else {
			units = append(units, uint16(r))
		}
	}
	return units
}

func utf16Decode(units []uint16) string {
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if isHighSurrogate(u) && i+1 < len(units) && isLowSurrogate(units[i+1]) {
			r := (rune(u)-0xD800)<<10 + (rune(units[i+1]) - 0xDC00) + 0x10000
			runes = append(runes, r)
			i++
		} else {
			runes = append(runes, rune(u))
		}
	}
	return string(runes)
}

// ---- Embed ----

// EmbedContent is a single opaque JSON/Any value, used for rich-text
// embeds (spec §3.3 tag 5). Length is always 1.
type EmbedContent struct {
	Value encoding.Any
}

func (c *EmbedContent) Tag() byte                         { return ContentTagEmbed }
func (c *EmbedContent) Len() int                           { return 1 }
func (c *EmbedContent) Countable() bool                    { return true }
func (c *EmbedContent) Splittable() bool                   { return false }
func (c *EmbedContent) Split(int) (Content, Content)       { panic("store: EmbedContent is not splittable") }
func (c *EmbedContent) MergeWith(Content) (Content, bool)  { return nil, false }
func (c *EmbedContent) Write(enc *encoding.Encoder)        { enc.WriteAny(c.Value) }

func ReadEmbedContent(dec *encoding.Decoder) (*EmbedContent, error) {
	v, err := dec.ReadAny()
	if err != nil {
		return nil, err
	}
	return &EmbedContent{Value: v}, nil
}

// ---- Format ----

// FormatContent is a rich-text formatting run marker {key, value}; its
// length is always 1 and it never contributes to sequence length (spec
// §3.3 tag 6).
type FormatContent struct {
	Key   string
	Value encoding.Any
}

func (c *FormatContent) Tag() byte                        { return ContentTagFormat }
func (c *FormatContent) Len() int                          { return 1 }
func (c *FormatContent) Countable() bool                   { return false }
func (c *FormatContent) Splittable() bool                  { return false }
func (c *FormatContent) Split(int) (Content, Content)      { panic("store: FormatContent is not splittable") }
func (c *FormatContent) MergeWith(Content) (Content, bool) { return nil, false }
func (c *FormatContent) Write(enc *encoding.Encoder) {
	enc.WriteString(c.Key)
	enc.WriteAny(c.Value)
}

func ReadFormatContent(dec *encoding.Decoder) (*FormatContent, error) {
	k, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	v, err := dec.ReadAny()
	if err != nil {
		return nil, err
	}
	return &FormatContent{Key: k, Value: v}, nil
}

// ---- Type (nested shared type) ----

// NestedType is the minimal contract store.Content needs from a nested
// shared type instance; package types' AbstractType implements it. This
// interface is the boundary that lets store avoid importing types
// (which itself imports store for Item/Parent).
type NestedType interface {
	// TypeKindTag identifies which concrete shared type this is, for
	// the wire "type ref" byte (array, map, text, xml-*).
	TypeKindTag() byte
}

// TypeContent owns a nested shared-type instance; ownership transfers
// to the Item (spec §3.3 tag 7, §3.6 "Content of variant Type transfers
// ownership of the nested shared type to the item").
type TypeContent struct {
	Inner NestedType
}

func (c *TypeContent) Tag() byte                        { return ContentTagType }
func (c *TypeContent) Len() int                          { return 1 }
func (c *TypeContent) Countable() bool                   { return true }
func (c *TypeContent) Splittable() bool                  { return false }
func (c *TypeContent) Split(int) (Content, Content)      { panic("store: TypeContent is not splittable") }
func (c *TypeContent) MergeWith(Content) (Content, bool) { return nil, false }
func (c *TypeContent) Write(enc *encoding.Encoder)       { enc.WriteByte(c.Inner.TypeKindTag()) }

// ReadContent dispatches on a content tag byte (1..9, as written in a
// struct's info byte low 5 bits) to the matching ReadXXXContent function,
// giving package update a single entry point for decoding an item's
// payload off the wire (spec §4.9).
func ReadContent(tag byte, dec *encoding.Decoder) (Content, error) {
	switch tag {
	case ContentTagDeleted:
		return ReadDeletedContent(dec)
	case ContentTagJSON:
		return ReadJSONContent(dec)
	case ContentTagBinary:
		return ReadBinaryContent(dec)
	case ContentTagString:
		return ReadStringContent(dec)
	case ContentTagEmbed:
		return ReadEmbedContent(dec)
	case ContentTagFormat:
		return ReadFormatContent(dec)
	case ContentTagType:
		return nil, errors.New("store: Type content needs a type_ref byte; call ReadTypeContent directly")
	case ContentTagAny:
		return ReadAnyContent(dec)
	case ContentTagDoc:
		return ReadDocContent(dec)
	default:
		return nil, errors.Errorf("store: unknown content tag %d", tag)
	}
}

// NestedTypeReader constructs an empty NestedType instance for a given
// type-ref tag byte when decoding a TypeContent off the wire. It is
// registered by package types' init() to avoid an import cycle (types
// depends on store for Item/Parent; store cannot depend back on types).
var NestedTypeReader func(typeRef byte) (NestedType, error)

// ReadTypeContent dispatches through NestedTypeReader, which must have
// been installed by importing package types (the ydoc root package does
// this on behalf of callers).
func ReadTypeContent(typeRef byte) (*TypeContent, error) {
	if NestedTypeReader == nil {
		return nil, errNoNestedTypeReader
	}
	inner, err := NestedTypeReader(typeRef)
	if err != nil {
		return nil, err
	}
	return &TypeContent{Inner: inner}, nil
}

// ---- Any ----

// AnyContent is an array of binary-encoded arbitrary values (spec §3.3
// tag 8) — the modern replacement for the legacy JSONContent.
type AnyContent struct {
	Values []encoding.Any
}

func (c *AnyContent) Tag() byte        { return ContentTagAny }
func (c *AnyContent) Len() int         { return len(c.Values) }
func (c *AnyContent) Countable() bool  { return true }
func (c *AnyContent) Splittable() bool { return true }
func (c *AnyContent) Split(offset int) (Content, Content) {
	return &AnyContent{Values: append([]encoding.Any{}, c.Values[:offset]...)},
		&AnyContent{Values: append([]encoding.Any{}, c.Values[offset:]...)}
}
func (c *AnyContent) MergeWith(other Content) (Content, bool) {
	o, ok := other.(*AnyContent)
	if !ok {
		return nil, false
	}
	return &AnyContent{Values: append(append([]encoding.Any{}, c.Values...), o.Values...)}, true
}
func (c *AnyContent) Write(enc *encoding.Encoder) {
	enc.WriteUvarint(uint64(len(c.Values)))
	for _, v := range c.Values {
		enc.WriteAny(v)
	}
}

func ReadAnyContent(dec *encoding.Decoder) (*AnyContent, error) {
	n, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}
	vals := make([]encoding.Any, n)
	for i := range vals {
		v, err := dec.ReadAny()
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &AnyContent{Values: vals}, nil
}

// ---- Doc (sub-document reference) ----

// DocContent identifies a sub-document by GUID plus load options (spec
// §3.3 tag 9, §4.7 "Sub-documents").
type DocContent struct {
	GUID       string
	AutoLoad   bool
	ShouldLoad bool
	Meta       encoding.Any
}

func (c *DocContent) Tag() byte                        { return ContentTagDoc }
func (c *DocContent) Len() int                          { return 1 }
func (c *DocContent) Countable() bool                   { return true }
func (c *DocContent) Splittable() bool                  { return false }
func (c *DocContent) Split(int) (Content, Content)      { panic("store: DocContent is not splittable") }
func (c *DocContent) MergeWith(Content) (Content, bool) { return nil, false }
func (c *DocContent) Write(enc *encoding.Encoder) {
	enc.WriteString(c.GUID)
	enc.WriteAny(c.Meta)
}

func ReadDocContent(dec *encoding.Decoder) (*DocContent, error) {
	guid, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	meta, err := dec.ReadAny()
	if err != nil {
		return nil, err
	}
	return &DocContent{GUID: guid, Meta: meta, AutoLoad: false, ShouldLoad: true}, nil
}
