package store

import "github.com/opencrdt/ydoc/id"

// Struct-kind tags used on the wire, alongside the 1..9 content tags
// (spec.md §4.9): 0 = GC, 1..9 = Item content tag, 10 = Skip.
const (
	StructTagGC   byte = 0
	StructTagSkip byte = 10
)

// Struct is satisfied by every entry a Store can hold for a client:
// Item, GC, or Skip (spec §3.2). Every struct has an ID and a length
// >= 1 (invariant: for consecutive structs in clients[c],
// prev.id.clock + prev.length == next.id.clock, i.e. S1).
type Struct interface {
	ID() id.ID
	Len() uint32
	SetLen(uint32)
	// Deleted reports whether this struct counts as logically deleted,
	// always false for GC/Skip (they carry no visible content at all).
	Deleted() bool
	// MergeWith fuses Struct with a following struct of the same
	// concrete kind when invariant M6 allows, returning the merged
	// struct and whether the merge happened.
	MergeWith(next Struct) (Struct, bool)
}

// GC is a length-only placeholder that replaces a garbage-collected
// Item; it carries no content (spec §3.2).
type GC struct {
	id     id.ID
	length uint32
}

func NewGC(i id.ID, length uint32) *GC { return &GC{id: i, length: length} }

func (g *GC) ID() id.ID       { return g.id }
func (g *GC) Len() uint32     { return g.length }
func (g *GC) SetLen(l uint32) { g.length = l }
func (g *GC) Deleted() bool   { return false }
func (g *GC) MergeWith(next Struct) (Struct, bool) {
	o, ok := next.(*GC)
	if !ok || o.id.Client != g.id.Client || o.id.Clock != g.id.Clock+g.length {
		return nil, false
	}
	return &GC{id: g.id, length: g.length + o.length}, true
}

// Skip is a gap marker used only inside on-the-wire updates to indicate
// a known missing range; it is never integrated into a replica's store
// (spec §3.2).
type Skip struct {
	id     id.ID
	length uint32
}

func NewSkip(i id.ID, length uint32) *Skip { return &Skip{id: i, length: length} }

func (s *Skip) ID() id.ID       { return s.id }
func (s *Skip) Len() uint32     { return s.length }
func (s *Skip) SetLen(l uint32) { s.length = l }
func (s *Skip) Deleted() bool   { return false }
func (s *Skip) MergeWith(next Struct) (Struct, bool) {
	o, ok := next.(*Skip)
	if !ok || o.id.Client != s.id.Client || o.id.Clock != s.id.Clock+s.length {
		return nil, false
	}
	return &Skip{id: s.id, length: s.length + o.length}, true
}

// ItemInfo is the bitfield spec §3.3 attaches to every Item.
type ItemInfo uint8

const (
	InfoDeleted ItemInfo = 1 << iota
	InfoCountable
	InfoKeep
	InfoMarker
)

func (i ItemInfo) Has(flag ItemInfo) bool { return i&flag != 0 }
func (i *ItemInfo) Set(flag ItemInfo, v bool) {
	if v {
		*i |= flag
	} else {
		*i &^= flag
	}
}

// Parent is the minimal contract an owning shared type must satisfy so
// Item/integrate can link into it without store importing package
// types (which imports store). Package types' AbstractType implements
// this for Array/Map/Text/XML.
type Parent interface {
	// TypeStart/SetTypeStart hold the sequence-parent's `_start` head
	// (spec §3.3); map parents ignore these and use TypeMap instead.
	TypeStart() *Item
	SetTypeStart(*Item)
	// TypeMap is the `_map: key -> Item` view map-style parents use.
	TypeMap() map[string]*Item
	// AdjustLength updates `_length`/size bookkeeping (invariant 5).
	AdjustLength(delta int)
	// OwnerItem returns the Item whose Content owns this type, or nil
	// if this is a root-level type (spec §3.3 "parent").
	OwnerItem() *Item
	// RootName returns the root name this type was defined under, or
	// "" if this is a nested (owned) type.
	RootName() string
}

// PendingParent represents an Item's parent reference before
// integration has resolved it: either a root-type name, an ID to
// dereference through the store, or an already-resolved Parent.
type PendingParent struct {
	Name     string
	ID       *id.ID
	Resolved Parent
}

// Item carries content and linked-list pointers; it may be tombstoned
// (spec §3.3).
type Item struct {
	IDVal       id.ID
	Length      uint32
	Origin      *id.ID
	RightOrigin *id.ID
	Left        *Item
	Right       *Item
	Parent      *PendingParent
	ParentSub   *string
	Redone      *id.ID
	Info        ItemInfo
	Content     Content
}

func (it *Item) ID() id.ID       { return it.IDVal }
func (it *Item) Len() uint32     { return it.Length }
func (it *Item) SetLen(l uint32) { it.Length = l }
func (it *Item) Deleted() bool { return it.Info.Has(InfoDeleted) }
func (it *Item) Keep() bool    { return it.Info.Has(InfoKeep) }
func (it *Item) SetKeep(v bool) { it.Info.Set(InfoKeep, v) }

// Countable reports whether this item contributes to its parent's
// visible length (invariant 5): it must be content-countable and not
// deleted.
func (it *Item) Countable() bool {
	return it.Content != nil && it.Content.Countable() && !it.Deleted()
}

// LastID returns the ID of the last unit this item occupies, used when
// a following item's `origin` must resolve to "the item immediately to
// the left", which is this item's last unit if it has length > 1.
func (it *Item) LastID() id.ID {
	return id.ID{Client: it.IDVal.Client, Clock: it.IDVal.Clock + it.Length - 1}
}

// MarkDeleted tombstones the item. Idempotent per invariant 4.
func (it *Item) MarkDeleted() {
	if it.Deleted() {
		return
	}
	it.Info.Set(InfoDeleted, true)
	if it.Parent != nil && it.Parent.Resolved != nil && it.Content != nil && it.Content.Countable() {
		it.Parent.Resolved.AdjustLength(-it.Content.Len())
	}
}

// MergeWith fuses this item with next when invariant M6 holds: same
// client, contiguous clocks, matching deleted flag, same concrete
// content variant, `this.right == next`, and content-level MergeWith
// succeeds.
func (it *Item) MergeWith(next Struct) (Struct, bool) {
	o, ok := next.(*Item)
	if !ok {
		return nil, false
	}
	if o.IDVal.Client != it.IDVal.Client || o.IDVal.Clock != it.IDVal.Clock+it.Length {
		return nil, false
	}
	if it.Deleted() != o.Deleted() {
		return nil, false
	}
	if it.Right != o {
		return nil, false
	}
	if it.Redone != nil || o.Redone != nil {
		return nil, false
	}
	if it.ParentSubEqual(o) == false {
		return nil, false
	}
	mergedContent, ok := it.Content.MergeWith(o.Content)
	if !ok {
		return nil, false
	}
	merged := &Item{
		IDVal:       it.IDVal,
		Length:      it.Length + o.Length,
		Origin:      it.Origin,
		RightOrigin: o.RightOrigin,
		Left:        it.Left,
		Right:       o.Right,
		Parent:      it.Parent,
		ParentSub:   it.ParentSub,
		Info:        it.Info,
		Content:     mergedContent,
	}
	return merged, true
}

func (it *Item) ParentSubEqual(o *Item) bool {
	if (it.ParentSub == nil) != (o.ParentSub == nil) {
		return false
	}
	if it.ParentSub == nil {
		return true
	}
	return *it.ParentSub == *o.ParentSub
}
