// Package snapshot implements point-in-time document snapshots and the
// undo/redo stack built on top of them (spec.md §4.11, C12).
package snapshot

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/update"
)

// ErrUnsupportedGC is returned by DocumentFromSnapshot when the origin
// document has garbage collection enabled: reconstructing a past state
// needs deleted content that GC may already have reclaimed (spec §7
// "UnsupportedGC ... fatal to the call").
var ErrUnsupportedGC = errors.New("snapshot: origin document has GC enabled, deleted content may be unavailable")

// Snapshot is {state_vector, delete_set} captured at a moment (spec
// §4.11). Equal snapshots on replicas holding the same updates encode
// byte-identically (spec §4.11 "Ordering guarantees").
type Snapshot struct {
	StateVector map[uint32]uint32
	DeleteSet   *deleteset.Set
}

// Capture takes a Snapshot of st's current state.
func Capture(st *store.Store) *Snapshot {
	return &Snapshot{StateVector: st.StateVector(), DeleteSet: deleteset.FromStore(st)}
}

// DocumentFromSnapshot reconstructs the document as it stood at snap
// into newSt/newClock (spec §4.11 document_from_snapshot): originSt must
// belong to a document with GC disabled, since step 2 needs every
// struct below snap.StateVector still present, including tombstoned
// ones. resolveRoot resolves root-type names while integrating into the
// fresh replica.
func DocumentFromSnapshot(originSt *store.Store, originGCEnabled bool, snap *Snapshot, newSt *store.Store, newClock *id.Clock, resolveRoot store.RootResolver, v2 bool, log logrus.FieldLogger) error {
	if originGCEnabled {
		return ErrUnsupportedGC
	}
	data := update.EncodeUpTo(originSt, snap.StateVector, snap.DeleteSet, v2)
	return update.NewApplier(log).Apply(newSt, newClock, data, v2, resolveRoot)
}
