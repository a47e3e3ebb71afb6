package store

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/opencrdt/ydoc/id"
)

// MissingDependency is returned when a struct's origin, right_origin, or
// parent references a (client, clock) beyond the local state vector
// (spec §4.4 step 7, §7). It is non-fatal: the caller buffers the
// affected span for retry (see package update's Applier.pendingItems).
type MissingDependency struct {
	Client uint32
}

func (e *MissingDependency) Error() string {
	return errors.Errorf("store: missing dependency on client %d", e.Client).Error()
}

// RootResolver looks up (or lazily defines) the shared type instance for
// a root name, e.g. via Doc.GetOrDefine. Integrate calls it only when an
// item's parent is an unresolved root name.
type RootResolver func(name string) (Parent, error)

// stateHasClock reports whether the store has integrated up through
// (client, clock), i.e. clock < state_vector[client].
func stateHasClock(st *Store, client uint32, clock uint32) bool {
	list := st.clients[client]
	if len(list) == 0 {
		return clock == 0 && false // no structs at all: nothing is known, including clock 0
	}
	last := list[len(list)-1]
	return clock < last.ID().Clock+last.Len()
}

// Integrate performs the YATA integration of a newly-created-or-received
// item into the document's item graph (spec §4.4). offset is non-zero
// when the update being applied skips a prefix already known locally.
// resolveRoot is consulted only if item.Parent names a root type that
// has not yet been resolved to a concrete Parent.
func Integrate(st *Store, clock *id.Clock, item *Item, offset uint32, resolveRoot RootResolver, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	// Step 1: offset handling.
	if offset > 0 {
		item.IDVal.Clock += offset
		leftID := id.ID{Client: item.IDVal.Client, Clock: item.IDVal.Clock - 1}
		left, err := st.GetItemCleanEnd(leftID)
		if err != nil {
			return err
		}
		item.Left = left
		item.Origin = &leftID
		if item.Content.Splittable() {
			_, right := item.Content.Split(int(offset))
			item.Content = right
		}
		item.Length -= offset
	}

	// Step 2: neighbour resolution.
	if item.Origin != nil {
		if !stateHasClock(st, item.Origin.Client, item.Origin.Clock) {
			return &MissingDependency{Client: item.Origin.Client}
		}
		left, err := st.GetItemCleanEnd(*item.Origin)
		if err != nil {
			return err
		}
		item.Left = left
	}
	if item.RightOrigin != nil {
		if !stateHasClock(st, item.RightOrigin.Client, item.RightOrigin.Clock) {
			return &MissingDependency{Client: item.RightOrigin.Client}
		}
		right, err := st.GetItemCleanStart(*item.RightOrigin)
		if err != nil {
			return err
		}
		item.Right = right
	}

	if err := resolveParent(st, item, resolveRoot); err != nil {
		return err
	}

	// Step 3: YATA conflict resolution.
	if err := yataResolve(st, item); err != nil {
		return err
	}

	// Step 4: linking.
	link(item)

	// Step 6: deletion-on-parent-deleted.
	if owner := item.Parent.Resolved.OwnerItem(); owner != nil && owner.Deleted() {
		item.MarkDeleted()
	}

	// Step 5: map semantics (spec §4.4 step 5). A key's writes form their
	// own private YATA chain rooted at parent._map[key] exactly like a
	// sequence is rooted at parent._start (see link() below); only the
	// chain's rightmost entry (item.Right == nil) is ever visible. This
	// item is the rightmost iff linking left it with no right neighbour;
	// in that case its immediate left neighbour — the previously
	// rightmost entry — is superseded. Any item that did NOT end up
	// rightmost is immediately stale and is deleted too, so exactly one
	// live entry survives regardless of how many concurrent writers
	// raced for the key: the walk that assigns item.Right is the same
	// order-independent YATA resolution used for ordinary sequence
	// inserts, so every replica arrives at the same winner no matter
	// which write it integrated first.
	if item.ParentSub != nil {
		if item.Right != nil {
			item.MarkDeleted()
		} else if item.Left != nil && !item.Left.Deleted() {
			item.Left.MarkDeleted()
		}
	}

	if item.Countable() {
		item.Parent.Resolved.AdjustLength(item.Content.Len())
	}

	clock.Observe(item.IDVal.Clock, item.Length)
	return nil
}

// resolveParent dereferences item.Parent from a pending Name/ID
// reference into a concrete Parent, inferring it from left/right
// neighbours when absent (spec §4.4 step 2).
func resolveParent(st *Store, item *Item, resolveRoot RootResolver) error {
	p := item.Parent
	if p == nil {
		if item.Left != nil {
			item.Parent = item.Left.Parent
		} else if item.Right != nil {
			item.Parent = item.Right.Parent
		} else {
			return errors.New("store: item has no parent and no neighbours to infer it from")
		}
		return nil
	}
	if p.Resolved != nil {
		return nil
	}
	if p.Name != "" {
		if resolveRoot == nil {
			return errors.New("store: item parent names a root type but no RootResolver was supplied")
		}
		parent, err := resolveRoot(p.Name)
		if err != nil {
			return err
		}
		p.Resolved = parent
		return nil
	}
	if p.ID != nil {
		if !stateHasClock(st, p.ID.Client, p.ID.Clock) {
			return &MissingDependency{Client: p.ID.Client}
		}
		owner, err := st.GetItem(*p.ID)
		if err != nil {
			return err
		}
		tc, ok := owner.Content.(*TypeContent)
		if !ok {
			return errors.Errorf("store: parent id %s does not reference a Type item", *p.ID)
		}
		parent, ok := tc.Inner.(Parent)
		if !ok {
			return errors.Errorf("store: nested type at %s does not implement Parent", *p.ID)
		}
		p.Resolved = parent
		return nil
	}
	return errors.New("store: item parent is neither a root name, an id, nor pre-resolved")
}

// idEqual compares two optional IDs for equality (both nil counts as equal).
func idEqual(a, b *id.ID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// yataResolve walks right from item.Left (or from the parent's _start
// / _map[key] head) applying the YATA tie-break rule (spec §4.4 step 3).
// This is the canonical conflict-resolution loop: o walks the items
// already placed in the gap between item.Left and item.Right; item.Left
// is advanced past any o that must end up to item's left, and the walk
// stops as soon as an o is found that must stay to item's right.
func yataResolve(st *Store, item *Item) error {
	var o *Item
	switch {
	case item.Left != nil:
		o = item.Left.Right
	case item.ParentSub == nil:
		o = item.Parent.Resolved.TypeStart()
	default:
		// Map-style: the key's private chain is rooted at
		// _map[key] exactly as a sequence is rooted at _start.
		o = item.Parent.Resolved.TypeMap()[*item.ParentSub]
	}

	conflictItems := map[*Item]bool{}
	itemsBeforeOrigin := map[*Item]bool{}
	left := item.Left

	for o != nil && o != item.Right {
		itemsBeforeOrigin[o] = true
		conflictItems[o] = true

		var oOrigin *Item
		if o.Origin != nil {
			var err error
			oOrigin, err = st.GetItem(*o.Origin)
			if err != nil {
				return err
			}
		}

		switch {
		case idEqual(item.Origin, o.Origin):
			// Same origin: concurrent siblings. Lower client wins the
			// left position (spec §4.4 step 3 case 1).
			if o.IDVal.Client < item.IDVal.Client {
				left = o
				conflictItems = map[*Item]bool{}
			} else if idEqual(item.RightOrigin, o.RightOrigin) {
				o = nil
				continue
			}
		case oOrigin != nil && itemsBeforeOrigin[oOrigin]:
			// o's origin already precedes item in the order fixed so
			// far; o stays to item's left unless it was itself part of
			// the still-open conflict set (spec step 3 case 2).
			if !conflictItems[oOrigin] {
				left = o
				conflictItems = map[*Item]bool{}
			}
		default:
			o = nil
			continue
		}
		o = o.Right
	}
	item.Left = left
	return nil
}

// link patches left.right, right.left, and parent._start /
// parent._map[key] as appropriate (spec §4.4 step 4).
func link(item *Item) {
	if item.Left != nil {
		item.Right = item.Left.Right
		item.Left.Right = item
	} else if item.ParentSub == nil {
		// item becomes the new sequence head.
		item.Right = item.Parent.Resolved.TypeStart()
		item.Parent.Resolved.SetTypeStart(item)
	} else {
		// item becomes the new head of this key's private chain,
		// exactly as the ParentSub == nil branch above does for _start.
		key := *item.ParentSub
		item.Right = item.Parent.Resolved.TypeMap()[key]
		item.Parent.Resolved.TypeMap()[key] = item
	}
	if item.Right != nil {
		item.Right.Left = item
	}
}
