package ydoc

import (
	"github.com/google/uuid"

	"github.com/opencrdt/ydoc/store"
)

// GCFilter is consulted per deleted item when garbage collection is
// enabled; returning true means "keep", i.e. do not reclaim the item's
// content (spec §6.6 "gc_filter: fn(Item) -> bool").
type GCFilter func(*store.Item) bool

// config holds the options a Doc is constructed with (spec §6.6
// "Configuration options"). Unexported: callers only ever see it
// through the Option functions below, matching the teacher's
// functional-options convention for configuring a running CRDT
// (cshekharsharma-go-crdt's counters take plain constructor args, but
// orbas1-Synnergy's server commands build up options the same
// accumulate-then-apply way this does).
type config struct {
	gc          bool
	gcFilter    GCFilter
	guid        string
	collection  string
	hasCollection bool
	autoLoad    bool
	shouldLoad  bool
	meta        interface{}
	client      uint32
	hasClient   bool
	v2          bool
}

func defaultConfig() config {
	return config{
		guid:       uuid.NewString(),
		shouldLoad: true,
	}
}

// Option configures a Doc at construction time.
type Option func(*config)

// WithGC enables garbage collection of tombstoned items (spec §4.9,
// §7 UnsupportedGC). Disabled by default so DocumentFromSnapshot stays
// available without callers needing to think about it up front.
func WithGC(enabled bool) Option {
	return func(c *config) { c.gc = enabled }
}

// WithGCFilter installs a keep-filter consulted per deleted item when
// GC is enabled.
func WithGCFilter(filter GCFilter) Option {
	return func(c *config) { c.gcFilter = filter }
}

// WithGUID overrides the random UUID a Doc is otherwise assigned.
func WithGUID(guid string) Option {
	return func(c *config) { c.guid = guid }
}

// WithCollectionID tags a Doc as belonging to a named collection of
// related sub-documents.
func WithCollectionID(id string) Option {
	return func(c *config) { c.collection, c.hasCollection = id, true }
}

// WithAutoLoad marks a sub-document for eager loading by its parent.
func WithAutoLoad(enabled bool) Option {
	return func(c *config) { c.autoLoad = enabled }
}

// WithShouldLoad sets the initial should_load flag (default true).
func WithShouldLoad(enabled bool) Option {
	return func(c *config) { c.shouldLoad = enabled }
}

// WithMeta attaches an opaque value a binding or application layer can
// stash on the Doc.
func WithMeta(meta interface{}) Option {
	return func(c *config) { c.meta = meta }
}

// WithV2Updates selects the v2 wire generation for this Doc's own
// EmitUpdate broadcasts (spec §6.1, §4.9). ApplyUpdate always takes an
// explicit per-call v2 flag regardless of this setting, since a replica
// must be able to accept either generation from any peer.
func WithV2Updates(enabled bool) Option {
	return func(c *config) { c.v2 = enabled }
}

// WithClientID pins the replica's client identifier instead of letting
// New pick one at random via id.RandomClient. Intended for tests and for
// sub-documents that must share the parent's client_id on attach (spec
// §5 "Sub-documents share the parent's client_id on attach").
func WithClientID(client uint32) Option {
	return func(c *config) { c.client, c.hasClient = client, true }
}
