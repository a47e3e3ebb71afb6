// Package transaction implements the cooperative, single-transaction-at-a-
// time mutation envelope of spec.md §4.6 (C7): a Transaction bundles the
// struct-store and delete-set mutations performed by one call to
// Manager.Transact, and Manager drives the commit pipeline (coalesce the
// delete set, snapshot the after-state, fire observers parent-first, GC,
// merge, emit an update) once the outermost call returns.
package transaction

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

// OptKey is Option<Key> from spec §4.6's `changed: Map<Type, Set<Option<Key>>>`:
// a sequence mutation has no key (HasKey false), a map mutation names one.
type OptKey struct {
	Key    string
	HasKey bool
}

func keyOf(sub *string) OptKey {
	if sub == nil {
		return OptKey{}
	}
	return OptKey{Key: *sub, HasKey: true}
}

// Observable is implemented by a shared type (package types' AbstractType)
// that wants shallow ("on this type") change notifications. Transaction
// never imports package types directly; it dispatches through this
// boundary interface the same way store avoids importing types.
type Observable interface {
	FireObservers(tx *Transaction, keys map[OptKey]bool)
}

// DeepObservable is implemented by a shared type that wants notifications
// for changes anywhere in its descendant subtree (spec §4.7 "_dEH").
type DeepObservable interface {
	FireDeepObservers(tx *Transaction)
}

// Host is what Manager needs from the owning document. The root ydoc
// package's Doc implements this; transaction never references Doc or
// package update directly, keeping the dependency direction one-way.
type Host interface {
	Store() *store.Store
	Clock() *id.Clock
	GCEnabled() bool
	// GCFilter, when non-nil, is consulted per deleted item; returning
	// true means "keep", i.e. do not reclaim this item's content.
	GCFilter() func(*store.Item) bool
	// EmitUpdate is invoked at the end of every commit, whether or not
	// the host currently has any update subscribers; a host with none
	// simply does nothing. Synthesizing the binary payload from
	// tx.BeforeState is package update's job, owned by the host.
	EmitUpdate(tx *Transaction)
	Log() logrus.FieldLogger
}

// Transaction records one bundle of mutations, per spec §4.6.
type Transaction struct {
	BeforeState map[uint32]uint32
	AfterState  map[uint32]uint32
	DeleteSet   *deleteset.Set

	Changed            map[store.Parent]map[OptKey]bool
	ChangedParentTypes map[store.Parent]bool

	SubdocsAdded   map[string]bool
	SubdocsRemoved map[string]bool
	SubdocsLoaded  map[string]bool

	Origin interface{}
	Local  bool
}

func newTransaction(origin interface{}, local bool, beforeState map[uint32]uint32) *Transaction {
	return &Transaction{
		BeforeState:        beforeState,
		DeleteSet:          deleteset.New(),
		Changed:            make(map[store.Parent]map[OptKey]bool),
		ChangedParentTypes: make(map[store.Parent]bool),
		SubdocsAdded:       make(map[string]bool),
		SubdocsRemoved:     make(map[string]bool),
		SubdocsLoaded:      make(map[string]bool),
		Origin:             origin,
		Local:              local,
	}
}

// TrackChanged records that parent was mutated at key (nil for a
// sequence-style positional change), and marks every ancestor of parent
// as having a changed descendant for deep observers.
func (tx *Transaction) TrackChanged(parent store.Parent, key *string) {
	if parent == nil {
		return
	}
	keys := tx.Changed[parent]
	if keys == nil {
		keys = make(map[OptKey]bool)
		tx.Changed[parent] = keys
	}
	keys[keyOf(key)] = true

	for p := parent; p != nil; {
		tx.ChangedParentTypes[p] = true
		owner := p.OwnerItem()
		if owner == nil || owner.Parent == nil || owner.Parent.Resolved == nil {
			break
		}
		p = owner.Parent.Resolved
	}
}

// DeleteItem tombstones it (idempotent), records the deleted range in the
// transaction's delete set, and tracks the owning type as changed. Shared
// types (package types) call this instead of it.MarkDeleted() directly so
// the deletion is visible to observers and the wire update.
func (tx *Transaction) DeleteItem(it *store.Item) {
	if it.Deleted() {
		return
	}
	it.MarkDeleted()
	tx.DeleteSet.Add(it.ID().Client, it.ID().Clock, it.Len())
	if it.Parent != nil {
		tx.TrackChanged(it.Parent.Resolved, it.ParentSub)
	}
}

// AddSubdocAdded/Removed/Loaded record sub-document lifecycle events
// (spec §4.7 "the parent emits subdocs events on attach/detach/load").
func (tx *Transaction) AddSubdocAdded(guid string)   { tx.SubdocsAdded[guid] = true }
func (tx *Transaction) AddSubdocRemoved(guid string) { tx.SubdocsRemoved[guid] = true }
func (tx *Transaction) AddSubdocLoaded(guid string)  { tx.SubdocsLoaded[guid] = true }

// Manager owns the current transaction and the queue of committed
// transactions still awaiting their cleanup pass, mirroring the
// doc._transactionCleanups queue spec §4.6 describes: nested transact
// calls flatten into the outermost one, and observers started during
// cleanup enqueue new transactions rather than recursing.
type Manager struct {
	host Host

	mu         sync.Mutex
	current    *Transaction
	pending    []*Transaction
	processing bool
}

// NewManager wires a Manager to its host document.
func NewManager(host Host) *Manager {
	return &Manager{host: host}
}

// Current returns the transaction presently open on this goroutine's call
// stack, or nil if none is active. Shared types call this indirectly
// through Doc to find the transaction they should record mutations into.
func (m *Manager) Current() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transact runs f inside a transaction (spec §4.6 transact(f, origin,
// local)). If a transaction is already active on this Manager, f reuses
// it directly — nested calls flatten into the outermost one. Otherwise a
// new transaction is created, f runs, and once it returns this call drains
// the cleanup queue: every transaction appended to the queue (this one,
// plus any a cleanup observer starts in turn) is committed in order until
// the queue is empty.
func (m *Manager) Transact(f func(tx *Transaction) error, origin interface{}, local bool) error {
	m.mu.Lock()
	if m.current != nil {
		tx := m.current
		m.mu.Unlock()
		return f(tx)
	}
	tx := newTransaction(origin, local, m.host.Store().StateVector())
	m.current = tx
	m.mu.Unlock()

	fErr := f(tx)

	m.mu.Lock()
	m.current = nil
	m.pending = append(m.pending, tx)
	alreadyDraining := m.processing
	if !alreadyDraining {
		m.processing = true
	}
	m.mu.Unlock()

	if alreadyDraining {
		// An outer Transact call on another goroutine is already
		// draining the queue; it will pick this transaction up.
		return fErr
	}

	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.processing = false
			m.mu.Unlock()
			break
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		if err := m.cleanup(next); err != nil {
			m.host.Log().WithError(err).Warn("transaction: cleanup failed")
			if fErr == nil {
				fErr = err
			}
		}
	}
	return fErr
}

// cleanup runs spec §4.6 step 3 for a single transaction that has already
// had its closure executed.
func (m *Manager) cleanup(tx *Transaction) error {
	tx.DeleteSet.Coalesce()
	tx.AfterState = m.host.Store().StateVector()

	parents := make([]store.Parent, 0, len(tx.Changed))
	for p := range tx.Changed {
		parents = append(parents, p)
	}
	sortParentFirst(parents)
	for _, p := range parents {
		if obs, ok := p.(Observable); ok {
			obs.FireObservers(tx, tx.Changed[p])
		}
	}

	deepParents := make([]store.Parent, 0, len(tx.ChangedParentTypes))
	for p := range tx.ChangedParentTypes {
		deepParents = append(deepParents, p)
	}
	sortParentFirst(deepParents)
	for _, p := range deepParents {
		if obs, ok := p.(DeepObservable); ok {
			obs.FireDeepObservers(tx)
		}
	}

	if m.host.GCEnabled() {
		applyKeepFilter(m.host.Store(), tx.DeleteSet, m.host.GCFilter())
		if err := deleteset.GC(m.host.Store(), tx.DeleteSet, m.host.Log()); err != nil {
			return err
		}
	} else {
		m.host.Store().TryMergeAll()
	}

	m.host.EmitUpdate(tx)
	return nil
}

// applyKeepFilter marks InfoKeep on every item in ds the filter wants
// preserved, so deleteset.GC skips reclaiming it, before GC runs.
func applyKeepFilter(st *store.Store, ds *deleteset.Set, filter func(*store.Item) bool) {
	if filter == nil {
		return
	}
	for client, ranges := range ds.Clients() {
		for _, r := range ranges {
			_ = st.Iterate(client, r.Clock, r.Length, func(s store.Struct) error {
				it, ok := s.(*store.Item)
				if ok && filter(it) {
					it.SetKeep(true)
				}
				return nil
			})
		}
	}
}

// parentDepth counts how many owning-item hops separate p from a root
// type (depth 0). Computed generically off the store.Parent boundary so
// transaction never needs to know about concrete shared-type kinds.
func parentDepth(p store.Parent) int {
	depth := 0
	for {
		owner := p.OwnerItem()
		if owner == nil {
			return depth
		}
		depth++
		if owner.Parent == nil || owner.Parent.Resolved == nil {
			return depth
		}
		p = owner.Parent.Resolved
	}
}

// sortParentFirst orders parents by ascending depth so root types fire
// their observers before the nested types they contain (spec §4.6 "fire
// local observers in parent-first order").
func sortParentFirst(parents []store.Parent) {
	sort.SliceStable(parents, func(i, j int) bool {
		return parentDepth(parents[i]) < parentDepth(parents[j])
	})
}
