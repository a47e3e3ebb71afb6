package snapshot

import (
	"time"

	bclock "github.com/benbjohnson/clock"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
)

// defaultCaptureTimeout is the window within which consecutive tracked
// transactions merge into the same undo-stack entry (spec §4.11
// "within captureTimeout of the previous item ... merge into it").
const defaultCaptureTimeout = 500 * time.Millisecond

// StackItem is one undo/redo-stack entry: the ranges a tracked
// transaction inserted and deleted, plus caller-opaque selection/binding
// state (spec §4.11 "Stack items carry an opaque meta").
type StackItem struct {
	Deletions  *deleteset.Set
	Insertions *deleteset.Set
	Meta       map[string]interface{}
}

// UndoManager tracks a scope of shared types and a set of origins, and
// converts every matching committed transaction into an undo-stack entry
// (spec §4.11). It must be wired into the owning document's EmitUpdate
// (or an equivalent after-commit hook) via TrackTransaction, since
// package transaction has no observer list of its own for this.
//
// localClient is the client ID under which redo allocates fresh items;
// id.Clock itself does not know which client is "local" (Alloc takes an
// explicit client argument for every caller), so UndoManager is told
// once at construction rather than inspecting the clock.
type UndoManager struct {
	host        transaction.Host
	mgr         *transaction.Manager
	localClient uint32

	scope          map[store.Parent]bool
	trackedOrigins map[interface{}]bool
	captureTimeout time.Duration
	clock          bclock.Clock

	undoStack []*StackItem
	redoStack []*StackItem

	lastCapture    time.Time
	hasLastCapture bool
}

// NewUndoManager builds an UndoManager over scope (the shared types
// whose edits should be undoable) and trackedOrigins (transaction
// origins it should capture; a transaction whose Origin isn't in this
// set, including the UndoManager's own undo/redo transactions, is
// ignored). clk is injectable for deterministic tests; a nil clk uses
// the real wall clock.
func NewUndoManager(host transaction.Host, mgr *transaction.Manager, localClient uint32, scope []store.Parent, trackedOrigins []interface{}, captureTimeout time.Duration, clk bclock.Clock) *UndoManager {
	if clk == nil {
		clk = bclock.New()
	}
	if captureTimeout <= 0 {
		captureTimeout = defaultCaptureTimeout
	}
	scopeSet := make(map[store.Parent]bool, len(scope))
	for _, p := range scope {
		scopeSet[p] = true
	}
	origins := make(map[interface{}]bool, len(trackedOrigins))
	for _, o := range trackedOrigins {
		origins[o] = true
	}
	return &UndoManager{
		host:           host,
		mgr:            mgr,
		localClient:    localClient,
		scope:          scopeSet,
		trackedOrigins: origins,
		captureTimeout: captureTimeout,
		clock:          clk,
	}
}

// TrackTransaction converts tx into an undo-stack entry if its origin is
// tracked and it touched the manager's scope. Call this from the
// document's after-commit hook for every registered UndoManager; a
// transaction whose Origin is the UndoManager itself is always skipped,
// so undo/redo never recaptures its own edits.
func (u *UndoManager) TrackTransaction(tx *transaction.Transaction) {
	if tx.Origin == u {
		return
	}
	if !u.trackedOrigins[tx.Origin] {
		return
	}
	if !u.inScope(tx) {
		return
	}

	insertions := insertionsDelta(tx.BeforeState, tx.AfterState)
	if len(insertions.Clients()) == 0 && len(tx.DeleteSet.Clients()) == 0 {
		return
	}

	now := u.clock.Now()
	if len(u.undoStack) > 0 && u.hasLastCapture && now.Sub(u.lastCapture) < u.captureTimeout {
		top := u.undoStack[len(u.undoStack)-1]
		top.Insertions = deleteset.Merge(top.Insertions, insertions)
		top.Deletions = deleteset.Merge(top.Deletions, tx.DeleteSet)
	} else {
		u.undoStack = append(u.undoStack, &StackItem{
			Deletions:  tx.DeleteSet,
			Insertions: insertions,
			Meta:       make(map[string]interface{}),
		})
	}
	u.lastCapture = now
	u.hasLastCapture = true
	u.redoStack = nil
}

func (u *UndoManager) inScope(tx *transaction.Transaction) bool {
	for p := range tx.ChangedParentTypes {
		if u.scope[p] {
			return true
		}
	}
	return false
}

// insertionsDelta derives the ranges newly allocated between before and
// after: every client's [before[client], after[client]) span, which is
// exactly what that transaction created (spec §4.11 "fresh_range_per_client").
func insertionsDelta(before, after map[uint32]uint32) *deleteset.Set {
	ds := deleteset.New()
	for client, end := range after {
		if start := before[client]; end > start {
			ds.Add(client, start, end-start)
		}
	}
	ds.Coalesce()
	return ds
}

// CanUndo reports whether Undo has an entry to pop.
func (u *UndoManager) CanUndo() bool { return len(u.undoStack) > 0 }

// CanRedo reports whether Redo has an entry to pop.
func (u *UndoManager) CanRedo() bool { return len(u.redoStack) > 0 }

// Clear discards both stacks without touching document content.
func (u *UndoManager) Clear() {
	u.undoStack = nil
	u.redoStack = nil
}

// Undo pops the top undo-stack entry and reverses it: every struct it
// inserted that still exists is deleted, and every struct it deleted
// that is still deleted is given a redo copy (spec §4.11). The reversal
// itself is pushed onto the redo stack.
func (u *UndoManager) Undo() error {
	return u.popAndApply(&u.undoStack, &u.redoStack)
}

// Redo pops the top redo-stack entry and mirrors Undo's process, pushing
// the result back onto the undo stack.
func (u *UndoManager) Redo() error {
	return u.popAndApply(&u.redoStack, &u.undoStack)
}

func (u *UndoManager) popAndApply(from, to *[]*StackItem) error {
	if len(*from) == 0 {
		return nil
	}
	item := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]

	var tx *transaction.Transaction
	redoneInsertions := deleteset.New()

	err := u.mgr.Transact(func(t *transaction.Transaction) error {
		tx = t
		for client, ranges := range item.Insertions.Clients() {
			for _, r := range ranges {
				if err := u.host.Store().Iterate(client, r.Clock, r.Length, func(s store.Struct) error {
					it, ok := s.(*store.Item)
					if !ok || it.Deleted() {
						return nil
					}
					t.DeleteItem(it)
					return nil
				}); err != nil {
					return err
				}
			}
		}

		for client, ranges := range item.Deletions.Clients() {
			for _, r := range ranges {
				if err := u.host.Store().Iterate(client, r.Clock, r.Length, func(s store.Struct) error {
					it, ok := s.(*store.Item)
					if !ok || !it.Deleted() {
						return nil
					}
					newID, err := u.redoItem(t, it)
					if err != nil {
						return err
					}
					if newID != nil {
						redoneInsertions.Add(newID.Client, newID.Clock, it.Len())
					}
					return nil
				}); err != nil {
					return err
				}
			}
		}
		return nil
	}, u, true)
	if err != nil {
		return err
	}

	redoneInsertions.Coalesce()
	*to = append(*to, &StackItem{
		Deletions:  tx.DeleteSet,
		Insertions: redoneInsertions,
		Meta:       item.Meta,
	})
	return nil
}

// redoItem re-integrates it as a freshly-clocked copy under the local
// client, linking it to whatever its original neighbours have
// themselves been redone to, then records it.Redone so a later pass
// never redoes it twice (spec §4.11, §9 "followRedone ... relies on the
// invariant that redone forms a DAG").
func (u *UndoManager) redoItem(tx *transaction.Transaction, it *store.Item) (*id.ID, error) {
	if it.Redone != nil {
		return nil, nil
	}

	origin, err := followRedoneLeft(u.host.Store(), it.Left)
	if err != nil {
		return nil, err
	}
	rightOrigin, err := followRedoneRight(u.host.Store(), it.Right)
	if err != nil {
		return nil, err
	}

	newID := u.host.Clock().Alloc(u.localClient, it.Len())
	redo := &store.Item{
		IDVal:       newID,
		Length:      it.Len(),
		Origin:      origin,
		RightOrigin: rightOrigin,
		Parent:      &store.PendingParent{Resolved: it.Parent.Resolved},
		ParentSub:   it.ParentSub,
		Content:     it.Content,
	}
	if err := store.Integrate(u.host.Store(), u.host.Clock(), redo, 0, nil, u.host.Log()); err != nil {
		return nil, err
	}
	if err := u.host.Store().Add(redo); err != nil {
		return nil, err
	}
	it.Redone = &newID
	tx.TrackChanged(it.Parent.Resolved, it.ParentSub)
	return &newID, nil
}

// followRedoneLeft resolves a left neighbour's redone chain to its final
// replacement and returns that replacement's last unit ID, the same
// value a fresh insertion immediately after it would use as origin.
func followRedoneLeft(st *store.Store, left *store.Item) (*id.ID, error) {
	if left == nil {
		return nil, nil
	}
	cur, err := followRedoneChain(st, left)
	if err != nil {
		return nil, err
	}
	last := cur.LastID()
	return &last, nil
}

// followRedoneRight is followRedoneLeft's mirror for a right neighbour:
// the replacement's first unit ID, as right_origin names.
func followRedoneRight(st *store.Store, right *store.Item) (*id.ID, error) {
	if right == nil {
		return nil, nil
	}
	cur, err := followRedoneChain(st, right)
	if err != nil {
		return nil, err
	}
	first := cur.ID()
	return &first, nil
}

func followRedoneChain(st *store.Store, it *store.Item) (*store.Item, error) {
	cur := it
	for cur.Redone != nil {
		next, err := st.GetItem(*cur.Redone)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
