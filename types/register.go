package types

import (
	"github.com/pkg/errors"

	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

// init installs store.NestedTypeReader so decoding a TypeContent item off
// the wire (store/content.go ReadTypeContent) can construct the right
// concrete shared type without package store importing this package —
// the same boundary-interface trick content.go's doc comment describes.
func init() {
	store.NestedTypeReader = func(typeRef byte) (store.NestedType, error) {
		switch typeRef {
		case TypeRefArray:
			return &Array{}, nil
		case TypeRefMap:
			return &Map{}, nil
		case TypeRefText:
			return &Text{}, nil
		case TypeRefXmlFragment:
			return &XmlFragment{}, nil
		case TypeRefXmlElement:
			return &XmlElement{}, nil
		case TypeRefXmlText:
			return &XmlText{}, nil
		case TypeRefXmlHook:
			return &XmlHook{}, nil
		default:
			return nil, errors.Errorf("types: unknown type-ref byte %d", typeRef)
		}
	}
}

// Attach wires a bare instance produced by NestedTypeReader (which knows
// nothing but its own kind) to the store, clock, client and owning item
// once the Type-content item that carries it has been integrated. Doc
// calls this from its update-integration path (package update / ydoc).
func (a *Array) Attach(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) {
	a.initAbstractType(a, st, clock, client, "", owner)
}

func (m *Map) Attach(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) {
	m.initAbstractType(m, st, clock, client, "", owner)
}

func (t *Text) Attach(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) {
	t.initAbstractType(t, st, clock, client, "", owner)
}

func (f *XmlFragment) Attach(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) {
	f.initAbstractType(f, st, clock, client, "", owner)
}

func (e *XmlElement) Attach(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) {
	e.initAbstractType(e, st, clock, client, "", owner)
	e.attributes.initAbstractType(&e.attributes, st, clock, client, "", owner)
}

func (t *XmlText) Attach(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) {
	t.initAbstractType(t, st, clock, client, "", owner)
}

func (h *XmlHook) Attach(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) {
	h.initAbstractType(h, st, clock, client, "", owner)
}
