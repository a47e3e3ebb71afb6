package types

import (
	"github.com/pkg/errors"

	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
)

// findPosition walks the visible (countable, non-deleted) sequence to
// index, splitting the covering item at that boundary if index falls
// inside it, and returns the item that should sit immediately to the
// left of a new insertion there (nil if index == 0). The nearest search
// marker is used as a starting point when it doesn't overshoot index
// (spec §4.7 "Index-based operations probe the nearest marker first").
func (a *AbstractType) findPosition(index int) (*store.Item, error) {
	if index == 0 {
		return nil, nil
	}

	cur := a.start
	remaining := index
	if mk := a.markers.findClosest(index); mk != nil && mk.item != nil && mk.index <= index {
		cur = mk.item
		remaining = index - mk.index
		a.markers.refresh(mk)
	}

	var left *store.Item
	for cur != nil && remaining > 0 {
		if !cur.Countable() {
			left = cur
			cur = cur.Right
			continue
		}
		n := cur.Content.Len()
		if remaining < n {
			splitID := id.ID{Client: cur.ID().Client, Clock: cur.ID().Clock + uint32(remaining)}
			right, err := a.st.GetItemCleanStart(splitID)
			if err != nil {
				return nil, err
			}
			return right.Left, nil
		}
		remaining -= n
		left = cur
		cur = cur.Right
	}
	if remaining > 0 {
		return nil, errors.Errorf("types: index %d beyond sequence length %d", index, a.length)
	}
	if cur != nil {
		a.markers.put(cur, index)
	}
	return left, nil
}

// insertOne creates a single item carrying content immediately after the
// visible position index, integrates it via the YATA algorithm, and adds
// it to the store. It is shared by Array.Insert (one AnyContent run) and
// Text.Insert's single-item case.
func (a *AbstractType) insertOne(tx *transaction.Transaction, index int, content store.Content) (*store.Item, error) {
	left, err := a.findPosition(index)
	if err != nil {
		return nil, err
	}
	return a.insertAfter(tx, left, content, index)
}

// insertAfter creates a single item carrying content immediately to the
// right of left (or at the sequence head, if left is nil), integrates it
// via the YATA algorithm, and adds it to the store. Unlike insertOne, the
// caller supplies the left neighbour directly instead of having it
// re-derived from a visible index, which lets a multi-item logical insert
// (Text.Insert's Format-apply/text/Format-revert run) chain each item off
// the one it just placed rather than recomputing the same stale position
// for every sub-insert. index is used only to invalidate the search
// marker cache from roughly that point on.
func (a *AbstractType) insertAfter(tx *transaction.Transaction, left *store.Item, content store.Content, index int) (*store.Item, error) {
	var origin, rightOrigin *id.ID
	var rightItem *store.Item
	if left != nil {
		o := left.LastID()
		origin = &o
		rightItem = left.Right
	} else {
		rightItem = a.start
	}
	if rightItem != nil {
		r := rightItem.ID()
		rightOrigin = &r
	}

	alloc := a.clock.Alloc(a.client, uint32(content.Len()))
	item := &store.Item{
		IDVal:       alloc,
		Length:      uint32(content.Len()),
		Origin:      origin,
		RightOrigin: rightOrigin,
		Parent:      &store.PendingParent{Resolved: a.self},
		Content:     content,
	}
	if err := store.Integrate(a.st, a.clock, item, 0, nil, nil); err != nil {
		return nil, err
	}
	if err := a.st.Add(item); err != nil {
		return nil, err
	}

	a.markers.invalidateFrom(index)
	tx.TrackChanged(a.self, nil)
	return item, nil
}

// deleteRange tombstones the countable, non-deleted items covering the
// half-open visible range [index, index+length), splitting the first and
// last covered items at their boundaries (spec §4.7 "Delete index → ...
// split the covering item so the removed range starts at a boundary,
// mark it deleted, recurse right").
func (a *AbstractType) deleteRange(tx *transaction.Transaction, index, length int) error {
	if length == 0 {
		return nil
	}
	left, err := a.findPosition(index)
	if err != nil {
		return err
	}
	cur := a.start
	if left != nil {
		cur = left.Right
	}

	remaining := length
	for remaining > 0 && cur != nil {
		if !cur.Countable() {
			cur = cur.Right
			continue
		}
		n := cur.Content.Len()
		if n > remaining {
			splitID := id.ID{Client: cur.ID().Client, Clock: cur.ID().Clock + uint32(remaining)}
			right, err := a.st.GetItemCleanStart(splitID)
			if err != nil {
				return err
			}
			tx.DeleteItem(right.Left)
			remaining = 0
			break
		}
		next := cur.Right
		tx.DeleteItem(cur)
		remaining -= n
		cur = next
	}
	if remaining > 0 {
		return errors.Errorf("types: delete range extends %d past sequence length %d", remaining, a.length)
	}
	a.markers.invalidateFrom(index)
	return nil
}

// visibleItems calls f for every countable, non-deleted item in document
// order, used by Array/Text readers (ToSlice, String, Len-by-walk checks).
func (a *AbstractType) visibleItems(f func(*store.Item)) {
	for cur := a.start; cur != nil; cur = cur.Right {
		if cur.Countable() {
			f(cur)
		}
	}
}
