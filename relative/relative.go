// Package relative implements stable sequence anchors (spec.md §4.8,
// C11): a RelativePosition survives concurrent inserts/deletes around
// the index it was captured at, because it names a specific code-unit
// (or a type boundary) rather than a raw offset.
package relative

import (
	"github.com/pkg/errors"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

// Kind is the wire discriminator (spec §6.5): which of Position's
// optional fields is populated.
type Kind byte

const (
	// KindInterior anchors to a specific code-unit's ID.
	KindInterior Kind = 0
	// KindRootEnd anchors to a root-level type's start/end boundary.
	KindRootEnd Kind = 1
	// KindIDEnd anchors to a nested type's start/end boundary, named by
	// its owning Item's ID.
	KindIDEnd Kind = 2
)

// Position is a RelativePosition: {type_id, root_name, item, assoc}
// (spec §4.8), exactly one of Item/RootName/TypeID populated per Kind.
type Position struct {
	Kind     Kind
	Item     *id.ID
	RootName string
	TypeID   *id.ID
	Assoc    int32
}

// FromIndex captures a Position at index within parent's visible
// sequence, binding left of the boundary when assoc < 0 and right of it
// otherwise (spec §4.8: "walk type._start until the index falls within
// an item; record the ID of the code-unit under the cursor").
func FromIndex(parent store.Parent, index int, assoc int32) (*Position, error) {
	if index < 0 {
		return nil, errors.Errorf("relative: negative index %d", index)
	}
	pos := 0
	for it := parent.TypeStart(); it != nil; it = it.Right {
		if !it.Countable() {
			continue
		}
		n := it.Content.Len()
		if index < pos+n {
			target := id.ID{Client: it.IDVal.Client, Clock: it.IDVal.Clock + uint32(index-pos)}
			return &Position{Kind: KindInterior, Item: &target, Assoc: assoc}, nil
		}
		pos += n
	}
	if index != pos {
		return nil, errors.Errorf("relative: index %d beyond visible length %d", index, pos)
	}
	return endPosition(parent, assoc), nil
}

func endPosition(parent store.Parent, assoc int32) *Position {
	if owner := parent.OwnerItem(); owner != nil {
		ownerID := owner.IDVal
		return &Position{Kind: KindIDEnd, TypeID: &ownerID, Assoc: assoc}
	}
	return &Position{Kind: KindRootEnd, RootName: parent.RootName(), Assoc: assoc}
}

// visibleLength walks parent counting countable, non-deleted units.
func visibleLength(parent store.Parent) int {
	n := 0
	for it := parent.TypeStart(); it != nil; it = it.Right {
		if it.Countable() {
			n += it.Content.Len()
		}
	}
	return n
}

// ToIndex resolves pos back to a live (parent, index) pair. ok is false
// (with a nil error) when the anchor's target was deleted or garbage
// collected — a normal outcome, not a failure (spec §4.8: "if the
// referenced item has been deleted or garbage-collected ... return
// none"). resolveRoot is consulted only for a KindRootEnd position.
func ToIndex(st *store.Store, resolveRoot store.RootResolver, pos *Position) (parent store.Parent, index int, ok bool, err error) {
	switch pos.Kind {
	case KindInterior:
		return resolveInterior(st, pos)
	case KindRootEnd:
		if resolveRoot == nil {
			return nil, 0, false, errors.New("relative: root-bound position needs a RootResolver")
		}
		p, err := resolveRoot(pos.RootName)
		if err != nil {
			return nil, 0, false, err
		}
		return p, endIndex(p, pos.Assoc), true, nil
	case KindIDEnd:
		owner, err := st.GetItem(*pos.TypeID)
		if err != nil {
			return nil, 0, false, nil // owner item itself is gone
		}
		if owner.Deleted() {
			return nil, 0, false, nil
		}
		p, ok := nestedParent(owner)
		if !ok {
			return nil, 0, false, errors.Errorf("relative: item %s does not own a nested type", *pos.TypeID)
		}
		return p, endIndex(p, pos.Assoc), true, nil
	default:
		return nil, 0, false, errors.Errorf("relative: unknown position kind %d", pos.Kind)
	}
}

func endIndex(parent store.Parent, assoc int32) int {
	if assoc < 0 {
		return 0
	}
	return visibleLength(parent)
}

func resolveInterior(st *store.Store, pos *Position) (store.Parent, int, bool, error) {
	s, err := st.Get(pos.Item.Client, pos.Item.Clock)
	if err != nil {
		return nil, 0, false, nil // not locally known at all
	}
	it, ok := s.(*store.Item)
	if !ok {
		return nil, 0, false, nil // replaced by a GC placeholder
	}
	if it.Deleted() {
		return nil, 0, false, nil
	}
	if it.Parent == nil || it.Parent.Resolved == nil {
		return nil, 0, false, errors.New("relative: target item has no resolved parent")
	}
	parent := it.Parent.Resolved

	offsetInItem := int(pos.Item.Clock - it.IDVal.Clock)
	idx := offsetInItem
	for cur := parent.TypeStart(); cur != nil && cur != it; cur = cur.Right {
		if cur.Countable() {
			idx += cur.Content.Len()
		}
	}
	return parent, idx, true, nil
}

func nestedParent(owner *store.Item) (store.Parent, bool) {
	tc, ok := owner.Content.(*store.TypeContent)
	if !ok {
		return nil, false
	}
	p, ok := tc.Inner.(store.Parent)
	return p, ok
}

// Write serializes pos: discriminator byte, variant payload, trailing
// varInt assoc (spec §6.5).
func Write(enc *encoding.Encoder, pos *Position) {
	enc.WriteByte(byte(pos.Kind))
	switch pos.Kind {
	case KindInterior:
		enc.WriteUvarint(uint64(pos.Item.Client))
		enc.WriteUvarint(uint64(pos.Item.Clock))
	case KindRootEnd:
		enc.WriteString(pos.RootName)
	case KindIDEnd:
		enc.WriteUvarint(uint64(pos.TypeID.Client))
		enc.WriteUvarint(uint64(pos.TypeID.Clock))
	}
	enc.WriteVarint(int64(pos.Assoc))
}

// Read deserializes a Position written by Write.
func Read(dec *encoding.Decoder) (*Position, error) {
	raw, err := dec.ReadByte()
	if err != nil {
		return nil, err
	}
	pos := &Position{Kind: Kind(raw)}
	switch pos.Kind {
	case KindInterior:
		client, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		clock, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		pos.Item = &id.ID{Client: client, Clock: clock}
	case KindRootEnd:
		name, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		pos.RootName = name
	case KindIDEnd:
		client, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		clock, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		pos.TypeID = &id.ID{Client: client, Clock: clock}
	default:
		return nil, errors.Errorf("relative: unknown position kind %d", raw)
	}
	assoc, err := dec.ReadVarint()
	if err != nil {
		return nil, err
	}
	pos.Assoc = int32(assoc)
	return pos, nil
}
