package types

import (
	"strings"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
)

// TypeRefText is the wire type-ref byte for YText.
const TypeRefText byte = 2

// Text is YText (spec §4.7 "Text with formatting"): a countable run of
// UTF-16 code units interleaved with non-countable Format markers that
// record rich-text attribute runs.
type Text struct {
	AbstractType
}

func NewText(st *store.Store, clock *id.Clock, client uint32, rootName string) *Text {
	t := &Text{}
	t.initAbstractType(t, st, clock, client, rootName, nil)
	return t
}

func NewNestedText(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) *Text {
	t := &Text{}
	t.initAbstractType(t, st, clock, client, "", owner)
	return t
}

func (t *Text) TypeKindTag() byte { return TypeRefText }

// Insert inserts text at index. When attrs is non-empty, Format items
// bracket the inserted span: one applying each differing attribute right
// before the text, one reverting it to the cursor's prior value right
// after (spec §4.7: "emit Format items both before (apply) and after
// (revert) the insertion"). The three groups of sub-inserts (Format-apply,
// text, Format-revert) are chained off a single cursor that advances as
// each item is placed, rather than each re-deriving its position from the
// original index: re-deriving from index alone would find the same left
// neighbour for every sub-insert (Format items aren't countable, so they
// never move the visible index), and each new head-of-sequence insert
// would then land to the left of the one before it, inverting the whole
// span.
func (t *Text) Insert(tx *transaction.Transaction, index int, text string, attrs map[string]encoding.Any) error {
	if text == "" {
		return nil
	}
	current := t.attributesBefore(index)

	cursor, err := t.findPosition(index)
	if err != nil {
		return err
	}

	var reverts []struct {
		key string
		val encoding.Any
		has bool
	}
	for key, want := range attrs {
		cur, ok := current[key]
		if ok && anyEqual(cur, want) {
			continue
		}
		item, err := t.insertAfter(tx, cursor, &store.FormatContent{Key: key, Value: want}, index)
		if err != nil {
			return err
		}
		cursor = item
		reverts = append(reverts, struct {
			key string
			val encoding.Any
			has bool
		}{key: key, val: cur, has: ok})
	}

	textItem, err := t.insertAfter(tx, cursor, store.NewStringContentFromRunes(text), index)
	if err != nil {
		return err
	}
	cursor = textItem

	for _, r := range reverts {
		val := encoding.Any{Kind: encoding.AnyNull}
		if r.has {
			val = r.val
		}
		item, err := t.insertAfter(tx, cursor, &store.FormatContent{Key: r.key, Value: val}, index)
		if err != nil {
			return err
		}
		cursor = item
	}

	t.cleanupFormats(tx)
	return nil
}

// Delete removes length visible code units starting at index.
func (t *Text) Delete(tx *transaction.Transaction, index, length int) error {
	if err := t.deleteRange(tx, index, length); err != nil {
		return err
	}
	t.cleanupFormats(tx)
	return nil
}

// String renders the visible (non-deleted, countable) text, ignoring
// Format markers.
func (t *Text) String() string {
	var b strings.Builder
	t.visibleItems(func(it *store.Item) {
		if sc, ok := it.Content.(*store.StringContent); ok {
			b.WriteString(sc.String())
		}
	})
	return b.String()
}

// attributesBefore replays every Format item from the start of the
// sequence up to visible index, returning the attribute set in effect
// immediately before that cursor position.
func (t *Text) attributesBefore(index int) map[string]encoding.Any {
	attrs := map[string]encoding.Any{}
	visible := 0
	for cur := t.start; cur != nil && visible < index; cur = cur.Right {
		if fc, ok := cur.Content.(*store.FormatContent); ok {
			if !cur.Deleted() {
				attrs[fc.Key] = fc.Value
			}
			continue
		}
		if cur.Countable() {
			visible += cur.Content.Len()
		}
	}
	return attrs
}

// cleanupFormats removes redundant adjacent Format item pairs: a
// format-start immediately followed (with no intervening countable
// content) by an item that reasserts the same key to the same value,
// which is a no-op run the previous insert/delete left behind (spec
// §4.7 "a formatting cleanup pass removes redundant Format items").
func (t *Text) cleanupFormats(tx *transaction.Transaction) {
	for cur := t.start; cur != nil; {
		fc, ok := cur.Content.(*store.FormatContent)
		if !ok || cur.Deleted() {
			cur = cur.Right
			continue
		}
		next := cur.Right
		if next == nil {
			break
		}
		if nfc, ok := next.Content.(*store.FormatContent); ok && !next.Deleted() &&
			nfc.Key == fc.Key && anyEqual(nfc.Value, fc.Value) {
			// cur sets key, next immediately reasserts the same value:
			// cur is redundant, its effect never observably held.
			tx.DeleteItem(cur)
		}
		cur = next
	}
}

func anyEqual(a, b encoding.Any) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case encoding.AnyInt:
		return a.Int == b.Int
	case encoding.AnyFloat32:
		return a.Float32 == b.Float32
	case encoding.AnyFloat64:
		return a.Float64 == b.Float64
	case encoding.AnyBigInt:
		return a.BigInt == b.BigInt
	case encoding.AnyBool:
		return a.Bool == b.Bool
	case encoding.AnyString:
		return a.String == b.String
	default:
		return true // Null/Undefined/Object/Array/Bytes: identity not needed for format diffing
	}
}
