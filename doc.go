// Package ydoc is the library surface spec.md §6.6 describes: Doc wires
// together the struct store (C4-C6), the transaction envelope (C7), the
// shared CRDT types (C8), the update codec (C9), the sync protocol
// (C10), relative positions (C11), snapshots/undo (C12), and awareness
// (C13) into one cohesive document a collaborator constructs with New
// and drives entirely through transact.
package ydoc

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
	"github.com/opencrdt/ydoc/types"
	"github.com/opencrdt/ydoc/update"
)

// Kind names which concrete shared type a root name is bound to, used
// by GetOrDefine to detect the TypeMismatch error kind (spec §7).
type Kind int

const (
	KindArray Kind = iota
	KindMap
	KindText
	KindXmlFragment
)

func (k Kind) String() string {
	switch k {
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindText:
		return "Text"
	case KindXmlFragment:
		return "XmlFragment"
	default:
		return "Unknown"
	}
}

// ErrTypeMismatch is returned by GetOrDefine when name already names a
// root type of a different Kind (spec §7 TypeMismatch).
var ErrTypeMismatch = errors.New("ydoc: root name already bound to a different kind")

// UpdateHandler receives the binary delta and the origin of every
// committed transaction, mirroring the "update"/"updateV2" channel spec
// §5 describes providers observing. v2 reports which generation data is
// encoded in (v2 when the Doc was built WithV2Updates, v1 otherwise).
type UpdateHandler func(data []byte, v2 bool, origin interface{})

// SubdocsHandler receives the added/removed/loaded guid sets spec §6.6's
// "subdocs event" describes, fired once per commit whenever any of the
// three sets is non-empty.
type SubdocsHandler func(added, removed, loaded map[string]bool)

// Doc is one replica of a collaborative document. All fields are
// guarded by mu except the sub-objects (store, clock, transaction
// manager) which already guard their own invariants; mu here only
// protects Doc's own bookkeeping (the root-type registry and handler
// lists) from concurrent GetOrDefine/Observe calls racing a transact on
// another goroutine, since spec §5 assigns the core no locks of its own
// beyond what's needed to keep that bookkeeping consistent.
type Doc struct {
	cfg config
	log logrus.FieldLogger

	client uint32
	clock  *id.Clock
	store  *store.Store
	tx     *transaction.Manager
	v2     bool

	applier *update.Applier

	mu        sync.Mutex
	roots     map[string]types.Shared
	rootKinds map[string]Kind

	updateHandlers   []UpdateHandler
	subdocsHandlers  []SubdocsHandler
}

// New constructs a Doc, picking a random client ID unless WithClientID
// was supplied (spec §3.1 "client is an unsigned 32-bit integer chosen
// at random on each Doc instantiation").
func New(log logrus.FieldLogger, opts ...Option) *Doc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := cfg.client
	if !cfg.hasClient {
		client = id.RandomClient()
	}

	d := &Doc{
		cfg:       cfg,
		log:       log.WithField("doc", cfg.guid),
		client:    client,
		clock:     id.NewClock(),
		store:     store.New(log),
		roots:     make(map[string]types.Shared),
		rootKinds: make(map[string]Kind),
	}
	d.v2 = cfg.v2
	d.tx = transaction.NewManager(d)
	d.applier = update.NewApplier(log)
	return d
}

// ClientID returns this replica's client identifier. Sub-documents that
// want to share it on attach read it from here (spec §5).
func (d *Doc) ClientID() uint32 { return d.client }

// GUID returns this Doc's identifier, random unless WithGUID was given.
func (d *Doc) GUID() string { return d.cfg.guid }

// Meta returns the opaque value supplied via WithMeta, or nil.
func (d *Doc) Meta() interface{} { return d.cfg.meta }

// CollectionID returns the collection this Doc was tagged with via
// WithCollectionID, and whether one was set at all.
func (d *Doc) CollectionID() (string, bool) { return d.cfg.collection, d.cfg.hasCollection }

// AutoLoad reports whether this Doc is marked for eager loading by its
// parent, per WithAutoLoad.
func (d *Doc) AutoLoad() bool { return d.cfg.autoLoad }

// ShouldLoad reports the should_load flag a sub-document binding
// consults before fetching content (spec §6.6), true by default.
func (d *Doc) ShouldLoad() bool { return d.cfg.shouldLoad }

// transaction.Host implementation. Doc never hands these out beyond
// package transaction/sync/snapshot/awareness, which is why they live
// grouped here rather than alongside the public surface below.

func (d *Doc) Store() *store.Store { return d.store }
func (d *Doc) Clock() *id.Clock    { return d.clock }
func (d *Doc) GCEnabled() bool     { return d.cfg.gc }
func (d *Doc) Log() logrus.FieldLogger { return d.log }

func (d *Doc) GCFilter() func(*store.Item) bool {
	if d.cfg.gcFilter == nil {
		return nil
	}
	return func(it *store.Item) bool { return d.cfg.gcFilter(it) }
}

// EmitUpdate implements transaction.Host: it fires every SubdocsHandler
// when tx added, removed or loaded a sub-document, then synthesizes the
// payload for everything tx just committed (v1, or v2 when the Doc was
// built WithV2Updates) and hands it to every registered UpdateHandler.
// With no UpdateHandler registered, no payload is encoded at all.
func (d *Doc) EmitUpdate(tx *transaction.Transaction) {
	d.mu.Lock()
	handlers := append([]UpdateHandler(nil), d.updateHandlers...)
	subHandlers := append([]SubdocsHandler(nil), d.subdocsHandlers...)
	d.mu.Unlock()

	if len(tx.SubdocsAdded) > 0 || len(tx.SubdocsRemoved) > 0 || len(tx.SubdocsLoaded) > 0 {
		for _, h := range subHandlers {
			h(tx.SubdocsAdded, tx.SubdocsRemoved, tx.SubdocsLoaded)
		}
	}

	if len(handlers) == 0 {
		return
	}
	data := update.EncodeDiff(d.store, tx.BeforeState, tx.DeleteSet, d.v2)
	for _, h := range handlers {
		h(data, d.v2, tx.Origin)
	}
}

// OnUpdate registers a handler invoked with every committed transaction's
// binary delta (spec §6.6 "observe/observe_deep on types" sibling
// channel for document-wide updates rather than per-type events).
func (d *Doc) OnUpdate(h UpdateHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateHandlers = append(d.updateHandlers, h)
}

// OnSubdocs registers a handler invoked whenever a commit adds, removes,
// or loads a sub-document (spec §6.6 "subdocs event").
func (d *Doc) OnSubdocs(h SubdocsHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subdocsHandlers = append(d.subdocsHandlers, h)
}

// Transact runs f inside a transaction, exactly spec §6.6's
// `transact(f, origin, local)`: f's mutations are bundled into one
// commit, observers fire, and EmitUpdate is invoked once f returns
// (nested Transact calls on the same Doc flatten into the outermost
// one, per transaction.Manager).
func (d *Doc) Transact(f func(tx *transaction.Transaction) error, origin interface{}, local bool) error {
	return d.tx.Transact(f, origin, local)
}

// ResolveRoot implements store.RootResolver and sync.Peer: it looks up
// an already-defined root type by name, defining a fresh Array the
// first time a name is referenced only by an incoming remote struct
// (mirroring Yjs's "any as-yet-unseen root name defaults to the
// generic shared type a peer's update names it under" behavior) — a
// local caller that wants a specific Kind should call GetOrDefine
// itself before exchanging updates.
func (d *Doc) ResolveRoot(name string) (store.Parent, error) {
	return d.GetOrDefine(name, KindArray)
}

// GetOrDefine implements spec §6.6's `get_or_define(name, kind)`:
// repeated calls with the same kind return the same instance; calls
// with an incompatible kind return ErrTypeMismatch (spec §7
// TypeMismatch, fatal to the call only, state unaffected).
func (d *Doc) GetOrDefine(name string, kind Kind) (types.Shared, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.roots[name]; ok {
		if d.rootKinds[name] != kind {
			return nil, errors.Wrapf(ErrTypeMismatch, "root %q is %s, requested %s", name, d.rootKinds[name], kind)
		}
		return existing, nil
	}

	var shared types.Shared
	switch kind {
	case KindArray:
		shared = types.NewArray(d.store, d.clock, d.client, name)
	case KindMap:
		shared = types.NewMap(d.store, d.clock, d.client, name)
	case KindText:
		shared = types.NewText(d.store, d.clock, d.client, name)
	case KindXmlFragment:
		shared = types.NewXmlFragment(d.store, d.clock, d.client, name)
	default:
		return nil, fmt.Errorf("ydoc: unknown kind %v", kind)
	}
	d.roots[name] = shared
	d.rootKinds[name] = kind
	return shared, nil
}

// ApplyUpdate implements spec §6.6's `apply_update(bytes, origin)`:
// integrates a v1 update (or a v2 update when v2 is true) inside its
// own transaction so observers and EmitUpdate see it
// like any local mutation. Missing dependencies are non-fatal: the
// affected structs are buffered in d.applier and retried automatically
// on the next ApplyUpdate call (spec §4.9, §7 MissingDependency).
func (d *Doc) ApplyUpdate(data []byte, v2 bool, origin interface{}) error {
	return d.tx.Transact(func(tx *transaction.Transaction) error {
		if err := d.applier.Apply(d.store, d.clock, data, v2, d.ResolveRoot); err != nil {
			return err
		}
		tx.DeleteSet = deleteset.Merge(tx.DeleteSet, d.applier.LastAppliedDeleteSet())
		return nil
	}, origin, false)
}

// EncodeStateAsUpdate implements spec §6.6's
// `encode_state_as_update(target_sv?)`: returns the minimal update
// needed to bring a peer at targetSV up to date, or the full state if
// targetSV is nil.
func (d *Doc) EncodeStateAsUpdate(targetSV map[uint32]uint32, v2 bool) []byte {
	return update.EncodeDiff(d.store, targetSV, deleteset.FromStore(d.store), v2)
}

// EncodeStateVector implements spec §6.6's `encode_state_vector()`.
func (d *Doc) EncodeStateVector() map[uint32]uint32 {
	return d.store.StateVector()
}

// HasPendingUpdates reports whether ApplyUpdate is still holding structs
// or delete-set ranges back for a dependency that hasn't arrived yet
// (spec §8.3 scenario 5).
func (d *Doc) HasPendingUpdates() bool {
	return d.applier.HasPending()
}
