// Package update implements the v1/v2 wire codec of spec.md §4.9 (C9):
// encoding/decoding the structs-plus-delete-set message a Doc exchanges
// with peers, merging independently-produced updates, diffing an update
// against a state vector, converting between the v1 and v2 byte layouts,
// and obfuscating a payload for shareable bug reports.
package update

import (
	"github.com/pkg/errors"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

// Struct-kind markers used only within a decoded Update, before its
// structs have been integrated into a store (spec §3.2: "Struct is
// satisfied by Item, GC, or Skip"). Skip never reaches a replica's
// store; it exists solely to mark a gap the sender knows it cannot fill.
type structKind int

const (
	kindItem structKind = iota
	kindGC
	kindSkip
)

// pendingStruct is one struct as read off the wire: either a fully-formed
// *store.Item with an unresolved Parent/Origin (ready for store.Integrate
// once its dependencies are locally known), or a bare GC/Skip placeholder.
type pendingStruct struct {
	kind structKind
	item *store.Item
	gc   *store.GC
	skip *store.Skip
}

func (p *pendingStruct) id() id.ID {
	switch p.kind {
	case kindItem:
		return p.item.IDVal
	case kindGC:
		return p.gc.ID()
	default:
		return p.skip.ID()
	}
}

func (p *pendingStruct) length() uint32 {
	switch p.kind {
	case kindItem:
		return p.item.Length
	case kindGC:
		return p.gc.Len()
	default:
		return p.skip.Len()
	}
}

// asStruct returns the underlying store.Struct so the generic writeStruct
// (which dispatches on concrete *Item/*GC/*Skip type) can serialize it.
func (p *pendingStruct) asStruct() store.Struct {
	switch p.kind {
	case kindItem:
		return p.item
	case kindGC:
		return p.gc
	default:
		return p.skip
	}
}

// trimFront drops the first n units of p, returning a new pendingStruct
// starting n units later, or ok=false if p cannot be sliced that way
// (only splittable Item content supports a clean cut mid-struct).
func trimFront(p *pendingStruct, n uint32) (*pendingStruct, bool) {
	if n == 0 {
		return p, true
	}
	if n >= p.length() {
		return nil, false
	}
	switch p.kind {
	case kindGC:
		return &pendingStruct{kind: kindGC, gc: store.NewGC(id.ID{Client: p.gc.ID().Client, Clock: p.gc.ID().Clock + n}, p.gc.Len()-n)}, true
	case kindSkip:
		return &pendingStruct{kind: kindSkip, skip: store.NewSkip(id.ID{Client: p.skip.ID().Client, Clock: p.skip.ID().Clock + n}, p.skip.Len()-n)}, true
	default:
		if !p.item.Content.Splittable() {
			return nil, false
		}
		_, right := p.item.Content.Split(int(n))
		newID := id.ID{Client: p.item.IDVal.Client, Clock: p.item.IDVal.Clock + n}
		leftLastID := id.ID{Client: newID.Client, Clock: newID.Clock - 1}
		trimmed := &store.Item{
			IDVal:       newID,
			Length:      p.item.Length - n,
			Origin:      &leftLastID,
			RightOrigin: p.item.RightOrigin,
			Parent:      p.item.Parent,
			ParentSub:   p.item.ParentSub,
			Content:     right,
		}
		return &pendingStruct{kind: kindItem, item: trimmed}, true
	}
}

// Info-byte layout (spec §4.9): low 5 bits are the content reference (0 =
// GC, 1..9 = store content tag, 10 = Skip); the top three bits are
// presence flags for an Item struct's optional fields.
const (
	contentRefMask    = 0x1F
	flagHasParentSub  = 0x20
	flagHasRightOrigin = 0x40
	flagHasOrigin     = 0x80
)

const (
	contentRefGC   = 0
	contentRefSkip = 10
)

// writeStruct serializes one struct's info byte and body. Parent info is
// written only when origin is absent: an item with a left neighbour can
// always have its parent inferred from that neighbour at integration time
// (store/integrate.go resolveParent), so parent info is only load-bearing
// for an item that opens a fresh run with no local predecessor.
func writeStruct(enc *encoding.Encoder, s store.Struct) error {
	switch v := s.(type) {
	case *store.GC:
		enc.WriteByte(contentRefGC)
		enc.WriteUvarint(uint64(v.Len()))
		return nil
	case *store.Skip:
		enc.WriteByte(contentRefSkip)
		enc.WriteUvarint(uint64(v.Len()))
		return nil
	case *store.Item:
		return writeItem(enc, v)
	default:
		return errors.Errorf("update: unknown struct kind %T", s)
	}
}

func writeItem(enc *encoding.Encoder, it *store.Item) error {
	info := byte(it.Content.Tag())
	if it.ParentSub != nil {
		info |= flagHasParentSub
	}
	if it.RightOrigin != nil {
		info |= flagHasRightOrigin
	}
	if it.Origin != nil {
		info |= flagHasOrigin
	}
	enc.WriteByte(info)

	if it.Origin != nil {
		writeID(enc, *it.Origin)
	}
	if it.RightOrigin != nil {
		writeID(enc, *it.RightOrigin)
	}
	if it.Origin == nil {
		if it.Parent == nil {
			return errors.New("update: item has neither an origin nor a resolvable parent to write")
		}
		writeParent(enc, it.Parent)
	}
	if it.ParentSub != nil {
		enc.WriteString(*it.ParentSub)
	}
	if tc, ok := it.Content.(*store.TypeContent); ok {
		enc.WriteByte(tc.Inner.TypeKindTag())
	}
	it.Content.Write(enc)
	return nil
}

func writeID(enc *encoding.Encoder, i id.ID) {
	enc.WriteUvarint(uint64(i.Client))
	enc.WriteUvarint(uint64(i.Clock))
}

func readID(dec *encoding.Decoder) (id.ID, error) {
	client, err := dec.ReadUvarint32()
	if err != nil {
		return id.ID{}, err
	}
	clock, err := dec.ReadUvarint32()
	if err != nil {
		return id.ID{}, err
	}
	return id.ID{Client: client, Clock: clock}, nil
}

func writeParent(enc *encoding.Encoder, p *store.PendingParent) {
	if p.Name != "" || (p.Resolved != nil && p.Resolved.RootName() != "") {
		name := p.Name
		if name == "" {
			name = p.Resolved.RootName()
		}
		enc.WriteByte(0)
		enc.WriteString(name)
		return
	}
	enc.WriteByte(1)
	if p.ID != nil {
		writeID(enc, *p.ID)
		return
	}
	// p.Resolved is a nested (owned) type: its parent reference is the
	// ID of the item whose TypeContent wraps it.
	writeID(enc, p.Resolved.OwnerItem().IDVal)
}

// readStruct reads one struct whose id is (client, clock): clock is the
// running cursor the caller maintains while walking a client's run.
func readStruct(dec *encoding.Decoder, client, clock uint32) (*pendingStruct, error) {
	info, err := dec.ReadByte()
	if err != nil {
		return nil, err
	}
	ref := info & contentRefMask

	switch ref {
	case contentRefGC:
		n, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		return &pendingStruct{kind: kindGC, gc: store.NewGC(id.ID{Client: client, Clock: clock}, n)}, nil
	case contentRefSkip:
		n, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		return &pendingStruct{kind: kindSkip, skip: store.NewSkip(id.ID{Client: client, Clock: clock}, n)}, nil
	}

	hasOrigin := info&flagHasOrigin != 0
	hasRightOrigin := info&flagHasRightOrigin != 0
	hasParentSub := info&flagHasParentSub != 0

	var origin, rightOrigin *id.ID
	if hasOrigin {
		o, err := readID(dec)
		if err != nil {
			return nil, err
		}
		origin = &o
	}
	if hasRightOrigin {
		o, err := readID(dec)
		if err != nil {
			return nil, err
		}
		rightOrigin = &o
	}

	var parent *store.PendingParent
	if !hasOrigin {
		kind, err := dec.ReadByte()
		if err != nil {
			return nil, err
		}
		if kind == 0 {
			name, err := dec.ReadString()
			if err != nil {
				return nil, err
			}
			parent = &store.PendingParent{Name: name}
		} else {
			pid, err := readID(dec)
			if err != nil {
				return nil, err
			}
			parent = &store.PendingParent{ID: &pid}
		}
	}

	var parentSub *string
	if hasParentSub {
		key, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		parentSub = &key
	}

	var content store.Content
	if ref == store.ContentTagType {
		typeRef, err := dec.ReadByte()
		if err != nil {
			return nil, err
		}
		content, err = store.ReadTypeContent(typeRef)
		if err != nil {
			return nil, err
		}
	} else {
		content, err = store.ReadContent(ref, dec)
		if err != nil {
			return nil, err
		}
	}

	item := &store.Item{
		IDVal:       id.ID{Client: client, Clock: clock},
		Length:      uint32(content.Len()),
		Origin:      origin,
		RightOrigin: rightOrigin,
		Parent:      parent,
		ParentSub:   parentSub,
		Content:     content,
	}
	return &pendingStruct{kind: kindItem, item: item}, nil
}
