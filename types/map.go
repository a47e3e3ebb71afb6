package types

import (
	"github.com/pkg/errors"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
)

// TypeRefMap is the wire type-ref byte for YMap.
const TypeRefMap byte = 1

// Map is YMap (spec §4.7 "Map"): each key owns a private YATA chain
// rooted at AbstractType._map[key]; only the chain's tail (item.Right ==
// nil) is ever visible (see store/integrate.go's map-key design note).
type Map struct {
	AbstractType
}

func NewMap(st *store.Store, clock *id.Clock, client uint32, rootName string) *Map {
	m := &Map{}
	m.initAbstractType(m, st, clock, client, rootName, nil)
	return m
}

func NewNestedMap(st *store.Store, clock *id.Clock, client uint32, owner *store.Item) *Map {
	m := &Map{}
	m.initAbstractType(m, st, clock, client, "", owner)
	return m
}

func (m *Map) TypeKindTag() byte { return TypeRefMap }

// Set creates one item with parent_sub = key carrying value; the
// previous visible entry for key, if any, is superseded in the same
// transaction (spec §4.7 "set(key, value)").
func (m *Map) Set(tx *transaction.Transaction, key string, value encoding.Any) error {
	var origin *id.ID
	if prev := m.tail(key); prev != nil {
		o := prev.LastID()
		origin = &o
	}
	alloc := m.clock.Alloc(m.client, 1)
	item := &store.Item{
		IDVal:     alloc,
		Length:    1,
		Origin:    origin,
		ParentSub: &key,
		Parent:    &store.PendingParent{Resolved: m.self},
		Content:   &store.AnyContent{Values: []encoding.Any{value}},
	}
	if err := store.Integrate(m.st, m.clock, item, 0, nil, nil); err != nil {
		return err
	}
	if err := m.st.Add(item); err != nil {
		return err
	}
	tx.TrackChanged(m.self, &key)
	return nil
}

// Get returns the content of the non-deleted item at _map[key], walking
// from the key's head to its tail (spec §4.7 "get(key): return content
// of the non-deleted item at _map[key]").
func (m *Map) Get(key string) (encoding.Any, bool) {
	it := m.tail(key)
	if it == nil || it.Deleted() {
		return encoding.Any{}, false
	}
	content, ok := it.Content.(*store.AnyContent)
	if !ok || len(content.Values) == 0 {
		return encoding.Any{}, false
	}
	return content.Values[0], true
}

// Delete tombstones the visible entry for key, if any.
func (m *Map) Delete(tx *transaction.Transaction, key string) error {
	it := m.tail(key)
	if it == nil || it.Deleted() {
		return errors.Errorf("types: map has no entry for key %q", key)
	}
	tx.DeleteItem(it)
	return nil
}

// Has reports whether key currently has a visible entry.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns every key with a currently-visible entry, in no
// particular order (matching a Go map's own iteration guarantees).
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.m))
	for key := range m.m {
		if it := m.tail(key); it != nil && !it.Deleted() {
			keys = append(keys, key)
		}
	}
	return keys
}

// tail walks from the key's head (m.m[key]) to the end of its private
// chain; that tail is the only entry ever visible.
func (m *Map) tail(key string) *store.Item {
	it := m.m[key]
	for it != nil && it.Right != nil {
		it = it.Right
	}
	return it
}
