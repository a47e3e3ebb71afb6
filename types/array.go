package types

import (
	"github.com/pkg/errors"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
)

// TypeRefArray is the wire type-ref byte for YArray (spec §4.9 "type_ref").
const TypeRefArray byte = 0

// Array is YArray (spec §4.7 "Sequence"): an ordered, insertable,
// deletable list of Any values, backed by the YATA item chain rooted at
// AbstractType._start.
type Array struct {
	AbstractType
}

// NewArray constructs a root-level Array bound to st/clock under client,
// named rootName. Nested arrays (owned by a Type-content item) are built
// via NewNestedArray instead.
func NewArray(st *store.Store, clock *id.Clock, client uint32, rootName string) *Array {
	arr := &Array{}
	arr.initAbstractType(arr, st, clock, client, rootName, nil)
	return arr
}

// NewNestedArray constructs an Array owned by owner (an Item whose
// content is a TypeContent wrapping this array), as created when a
// caller inserts an Array as a value inside another shared type.
func NewNestedArray(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) *Array {
	arr := &Array{}
	arr.initAbstractType(arr, st, clock, client, "", owner)
	return arr
}

func (a *Array) TypeKindTag() byte { return TypeRefArray }

// Insert inserts values starting at index, as a single Any-content run
// (spec §4.7: "allocate N items whose content is a single Any run").
func (a *Array) Insert(tx *transaction.Transaction, index int, values ...encoding.Any) error {
	if len(values) == 0 {
		return nil
	}
	_, err := a.insertOne(tx, index, &store.AnyContent{Values: values})
	return err
}

// Push appends values to the end of the array.
func (a *Array) Push(tx *transaction.Transaction, values ...encoding.Any) error {
	return a.Insert(tx, a.Len(), values...)
}

// Delete removes length visible values starting at index.
func (a *Array) Delete(tx *transaction.Transaction, index, length int) error {
	return a.deleteRange(tx, index, length)
}

// Get returns the value at index.
func (a *Array) Get(index int) (encoding.Any, error) {
	found, ok := a.valueAt(index)
	if !ok {
		return encoding.Any{}, errors.Errorf("types: array index %d out of range", index)
	}
	return found, nil
}

func (a *Array) valueAt(index int) (encoding.Any, bool) {
	pos := 0
	var result encoding.Any
	found := false
	a.visibleItems(func(it *store.Item) {
		if found {
			return
		}
		content, ok := it.Content.(*store.AnyContent)
		if !ok {
			pos += it.Content.Len()
			return
		}
		n := len(content.Values)
		if index < pos+n {
			result = content.Values[index-pos]
			found = true
			return
		}
		pos += n
	})
	return result, found
}

// ToSlice materializes every visible value in document order.
func (a *Array) ToSlice() []encoding.Any {
	var out []encoding.Any
	a.visibleItems(func(it *store.Item) {
		switch c := it.Content.(type) {
		case *store.AnyContent:
			out = append(out, c.Values...)
		case *store.EmbedContent:
			out = append(out, c.Value)
		}
	})
	return out
}
