// Package types implements the shared CRDT value types of spec.md §4.7
// (C8): Array, Map, Text (with rich-text formatting), the XML fragment
// family, search markers, and sub-document content. Every concrete type
// embeds AbstractType, which provides the `_start`/`_map`/`_length`/
// `_item` bookkeeping and the observer lists the spec's abstract base
// names, and implements the store.Parent / transaction.Observable
// boundary interfaces so package store and package transaction never
// have to import this package.
package types

import (
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
)

// Event is delivered to an observer on commit. Observers are expected to
// re-read current values off the type themselves rather than diff a
// payload, matching the read-don't-diff style spec §4.7's `_eH`/`_dEH`
// observers use.
type Event struct {
	Target  Shared
	Changed map[transaction.OptKey]bool
	Tx      *transaction.Transaction
}

// Observer is a shallow or deep change-notification callback.
type Observer func(Event)

// Shared is implemented by every concrete shared type (Array, Map, Text,
// XmlFragment, ...) — the public handle callers hold.
type Shared interface {
	store.Parent
	Observe(Observer) (unobserve func())
	ObserveDeep(Observer) (unobserve func())
}

// AbstractType is the shared base spec §4.7 describes: "_start, _map,
// _length, _item, _eH/_dEH (shallow/deep observer lists), and
// _searchMarker."
type AbstractType struct {
	self Shared

	st     *store.Store
	clock  *id.Clock
	client uint32

	rootName  string
	start     *store.Item
	m         map[string]*store.Item
	length    int
	ownerItem *store.Item

	shallow []Observer
	deep    []Observer

	markers *markerRing
}

// initAbstractType wires the base; self must be the concrete type
// embedding this struct, so fired events carry the right Target.
func (a *AbstractType) initAbstractType(self Shared, st *store.Store, clock *id.Clock, client uint32, rootName string, owner *store.Item) {
	a.self = self
	a.st = st
	a.clock = clock
	a.client = client
	a.rootName = rootName
	a.ownerItem = owner
	a.m = make(map[string]*store.Item)
	a.markers = newMarkerRing()
}

func (a *AbstractType) TypeStart() *store.Item          { return a.start }
func (a *AbstractType) SetTypeStart(it *store.Item)     { a.start = it }
func (a *AbstractType) TypeMap() map[string]*store.Item { return a.m }
func (a *AbstractType) AdjustLength(delta int)          { a.length += delta }
func (a *AbstractType) OwnerItem() *store.Item          { return a.ownerItem }
func (a *AbstractType) RootName() string                { return a.rootName }
func (a *AbstractType) Len() int                        { return a.length }

// Observe/ObserveDeep/FireObservers/FireDeepObservers implement Shared
// and the transaction.Observable / transaction.DeepObservable boundary
// interfaces, letting transaction.Manager dispatch without importing
// this package.
func (a *AbstractType) Observe(fn Observer) func() {
	a.shallow = append(a.shallow, fn)
	idx := len(a.shallow) - 1
	return func() { a.shallow[idx] = nil }
}

func (a *AbstractType) ObserveDeep(fn Observer) func() {
	a.deep = append(a.deep, fn)
	idx := len(a.deep) - 1
	return func() { a.deep[idx] = nil }
}

// FireObservers satisfies transaction.Observable.
func (a *AbstractType) FireObservers(tx *transaction.Transaction, keys map[transaction.OptKey]bool) {
	ev := Event{Target: a.self, Changed: keys, Tx: tx}
	for _, fn := range a.shallow {
		if fn != nil {
			fn(ev)
		}
	}
}

// FireDeepObservers satisfies transaction.DeepObservable.
func (a *AbstractType) FireDeepObservers(tx *transaction.Transaction) {
	ev := Event{Target: a.self, Tx: tx}
	for _, fn := range a.deep {
		if fn != nil {
			fn(ev)
		}
	}
}
