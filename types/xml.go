package types

import (
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

// Wire type-ref bytes for the XML family (spec §4.7 "Tree/XML").
const (
	TypeRefXmlFragment byte = 3
	TypeRefXmlElement  byte = 4
	TypeRefXmlText     byte = 5
	TypeRefXmlHook     byte = 6
)

// XmlFragment is YXmlFragment: an ordered list of XML children with no
// node name or attributes of its own. Child ordering uses the sequence
// algorithm (spec §4.7: "Child lists use the sequence algorithm").
type XmlFragment struct {
	Array
}

func NewXmlFragment(st *store.Store, clock *id.Clock, client uint32, rootName string) *XmlFragment {
	f := &XmlFragment{}
	f.initAbstractType(f, st, clock, client, rootName, nil)
	return f
}

func (f *XmlFragment) TypeKindTag() byte { return TypeRefXmlFragment }

// XmlElement is YXmlElement: a named node with a child list (sequence
// algorithm) and an attribute set (map algorithm). NodeName is immutable
// once set and travels with the item's encoding (spec §4.7).
type XmlElement struct {
	Array
	NodeName   string
	attributes Map
}

func NewXmlElement(st *store.Store, clock *id.Clock, client uint32, rootName, nodeName string) *XmlElement {
	e := &XmlElement{NodeName: nodeName}
	e.initAbstractType(e, st, clock, client, rootName, nil)
	e.attributes.initAbstractType(&e.attributes, st, clock, client, "", nil)
	return e
}

func (e *XmlElement) TypeKindTag() byte { return TypeRefXmlElement }

// Attributes exposes the element's attribute map (set(key,value)/get(key)
// use the Map algorithm per spec §4.7).
func (e *XmlElement) Attributes() *Map { return &e.attributes }

// XmlText is YXmlText: a text node using the same Text/formatting
// algorithm as a top-level Text value.
type XmlText struct {
	Text
}

func NewXmlText(st *store.Store, clock *id.Clock, client uint32, rootName string) *XmlText {
	t := &XmlText{}
	t.initAbstractType(t, st, clock, client, rootName, nil)
	return t
}

func (t *XmlText) TypeKindTag() byte { return TypeRefXmlText }

// XmlHook is YXmlHook: an opaque, externally-rendered node whose state is
// a plain key/value map (spec §4.7 groups it with the map algorithm).
type XmlHook struct {
	Map
}

func NewXmlHook(st *store.Store, clock *id.Clock, client uint32, rootName string) *XmlHook {
	h := &XmlHook{}
	h.initAbstractType(h, st, clock, client, rootName, nil)
	return h
}

func (h *XmlHook) TypeKindTag() byte { return TypeRefXmlHook }
