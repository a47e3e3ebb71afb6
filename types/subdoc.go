package types

import (
	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/store"
)

// SubDoc is the runtime view of a sub-document attached as content (spec
// §4.7 "Sub-documents": "A YDoc instance attached as content carries
// {guid, gc, auto_load, meta, should_load}"). GC is a local runtime
// override, never serialized — store.DocContent only carries the fields
// that travel on the wire.
type SubDoc struct {
	GUID       string
	GC         bool
	AutoLoad   bool
	ShouldLoad bool
	Meta       encoding.Any
}

// ToContent projects the wire-relevant fields into a store.DocContent,
// suitable for a Type-content item's payload.
func (s SubDoc) ToContent() *store.DocContent {
	return &store.DocContent{GUID: s.GUID, AutoLoad: s.AutoLoad, ShouldLoad: s.ShouldLoad, Meta: s.Meta}
}

// SubDocFromContent reconstructs a SubDoc from a decoded DocContent. GC
// is not carried by DocContent and is left false.
func SubDocFromContent(c *store.DocContent) SubDoc {
	return SubDoc{GUID: c.GUID, AutoLoad: c.AutoLoad, ShouldLoad: c.ShouldLoad, Meta: c.Meta}
}
