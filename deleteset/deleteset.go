// Package deleteset implements the compact, per-client tombstone range
// set of spec.md §4.5 (C6): which (client, clock) units are deleted,
// coalesced after every transaction, plus the garbage-collection driver
// that reclaims tombstoned content at commit.
package deleteset

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

// Range is one deleted (clock, length) span for a client.
type Range struct {
	Clock  uint32
	Length uint32
}

// Set is delete_set.clients: Map<client, Vec<(clock, length)>>. Ranges
// are appended raw by Add; Coalesce sorts and merges them lazily, as
// spec.md §4.5 prescribes ("sort-and-merge occurs lazily").
type Set struct {
	clients map[uint32][]Range
}

// New returns an empty delete set.
func New() *Set {
	return &Set{clients: make(map[uint32][]Range)}
}

// Clients exposes the raw per-client range slices, e.g. for the wire
// encoder or a caller iterating every tombstoned span.
func (s *Set) Clients() map[uint32][]Range { return s.clients }

// Add appends a raw (clock, length) span for client without merging; the
// next Coalesce call folds it in (IsDeleted already sees it before then
// through its linear-scan fallback).
func (s *Set) Add(client uint32, clock uint32, length uint32) {
	if length == 0 {
		return
	}
	s.clients[client] = append(s.clients[client], Range{Clock: clock, Length: length})
}

// Coalesce sorts every client's ranges by clock and merges touching or
// overlapping spans. Called at transaction commit (spec §4.6 step 3).
func (s *Set) Coalesce() {
	for client, ranges := range s.clients {
		if len(ranges) < 2 {
			continue
		}
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].Clock < ranges[j].Clock })
		merged := make([]Range, 0, len(ranges))
		cur := ranges[0]
		for _, r := range ranges[1:] {
			if r.Clock <= cur.Clock+cur.Length {
				if end := r.Clock + r.Length; end > cur.Clock+cur.Length {
					cur.Length = end - cur.Clock
				}
				continue
			}
			merged = append(merged, cur)
			cur = r
		}
		merged = append(merged, cur)
		s.clients[client] = merged
	}
}

// IsDeleted reports whether target falls within any recorded range for
// its client. Coalesce should be called first for a correct binary
// search; IsDeleted falls back to a linear scan otherwise so it is
// always correct, only not always O(log n).
func (s *Set) IsDeleted(target id.ID) bool {
	ranges := s.clients[target.Client]
	idx := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].Clock+ranges[i].Length > target.Clock
	})
	if idx < len(ranges) && ranges[idx].Clock <= target.Clock {
		return true
	}
	// Ranges may be unsorted/unmerged between Coalesce calls; confirm
	// with a linear scan before reporting a miss.
	for _, r := range ranges {
		if target.Clock >= r.Clock && target.Clock < r.Clock+r.Length {
			return true
		}
	}
	return false
}

// Merge unions every input set's ranges into a new set, then coalesces.
// Used when combining the delete sets of several incoming updates (spec
// §4.9 "merge").
func Merge(sets ...*Set) *Set {
	out := New()
	for _, s := range sets {
		if s == nil {
			continue
		}
		for client, ranges := range s.clients {
			for _, r := range ranges {
				out.Add(client, r.Clock, r.Length)
			}
		}
	}
	out.Coalesce()
	return out
}

// Write serializes the set: client IDs are written largest-first (spec
// §4.5 "improves later integration locality"), each followed by
// varUint(range_count) and its (clock, len) pairs. v2 writes clocks as
// diffs from the previous range's end, v1 writes them absolute.
func (s *Set) Write(enc *encoding.Encoder, v2 bool) {
	s.Coalesce()
	clientIDs := make([]uint32, 0, len(s.clients))
	for c := range s.clients {
		if len(s.clients[c]) > 0 {
			clientIDs = append(clientIDs, c)
		}
	}
	sort.Slice(clientIDs, func(i, j int) bool { return clientIDs[i] > clientIDs[j] })

	enc.WriteUvarint(uint64(len(clientIDs)))
	for _, client := range clientIDs {
		ranges := s.clients[client]
		enc.WriteUvarint(uint64(client))
		enc.WriteUvarint(uint64(len(ranges)))
		prevEnd := uint32(0)
		for _, r := range ranges {
			if v2 {
				enc.WriteUvarint(uint64(r.Clock - prevEnd))
			} else {
				enc.WriteUvarint(uint64(r.Clock))
			}
			enc.WriteUvarint(uint64(r.Length))
			prevEnd = r.Clock + r.Length
		}
	}
}

// Read deserializes a delete set written by Write.
func Read(dec *encoding.Decoder, v2 bool) (*Set, error) {
	s := New()
	clientCount, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < clientCount; i++ {
		client, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		rangeCount, err := dec.ReadUvarint()
		if err != nil {
			return nil, err
		}
		prevEnd := uint32(0)
		for j := uint64(0); j < rangeCount; j++ {
			raw, err := dec.ReadUvarint32()
			if err != nil {
				return nil, err
			}
			length, err := dec.ReadUvarint32()
			if err != nil {
				return nil, err
			}
			clock := raw
			if v2 {
				clock = prevEnd + raw
			}
			s.Add(client, clock, length)
			prevEnd = clock + length
		}
	}
	return s, nil
}

// FromStore derives the full delete set implied by st's current
// contents: every tombstoned Item's (client, clock, length) span,
// coalesced. Used to answer a SyncStep1 with "missing structs + full
// delete set" (spec §4.10) without a replica having to keep a running
// delete-set accumulator alongside its store.
func FromStore(st *store.Store) *Set {
	out := New()
	for client, structs := range st.Clients() {
		for _, s := range structs {
			it, ok := s.(*store.Item)
			if !ok || !it.Deleted() {
				continue
			}
			out.Add(client, it.ID().Clock, it.Len())
		}
	}
	out.Coalesce()
	return out
}

// IterateDeletedStructs calls f for every Item/GC struct that falls
// within a deleted range, cleanly splitting at each range's boundaries
// first (spec §4.5 "iterate_deleted_structs").
func IterateDeletedStructs(st *store.Store, ds *Set, f func(store.Struct) error) error {
	ds.Coalesce()
	for client, ranges := range ds.clients {
		for _, r := range ranges {
			if err := st.Iterate(client, r.Clock, r.Length, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// GC replaces deleted, non-kept structs with GC placeholders (or, when
// the struct's parent is still live, a Deleted-content item so future
// splits remain valid), then merges adjacent equal-kind structs. Invoked
// at commit only when the Doc has gc == true (spec §4.5).
func GC(st *store.Store, ds *Set, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ds.Coalesce()
	for client, ranges := range ds.clients {
		for _, r := range ranges {
			if err := st.Iterate(client, r.Clock, r.Length, func(s store.Struct) error {
				it, ok := s.(*store.Item)
				if !ok {
					return nil // GC/Skip structs carry nothing to reclaim
				}
				if it.Keep() {
					return nil
				}
				gcItem(st, client, it, log)
				return nil
			}); err != nil {
				return err
			}
		}
	}
	st.TryMergeAll()
	return nil
}

// gcItem performs spec §4.5 step 1's struct.gc(store, parent_also_deleted):
// if the owning parent item is itself gone, the item becomes a bare GC
// placeholder; otherwise its content is replaced with Deleted-content so
// the item stays addressable and splittable.
func gcItem(st *store.Store, client uint32, it *store.Item, log logrus.FieldLogger) {
	idx, err := st.FindIndex(client, it.IDVal.Clock)
	if err != nil {
		log.WithError(err).WithField("id", it.IDVal).Warn("deleteset: gc target not found in store")
		return
	}
	parentOwnerGone := false
	if owner := it.Parent.Resolved.OwnerItem(); owner != nil {
		parentOwnerGone = owner.Deleted()
	}
	if parentOwnerGone {
		st.Replace(client, idx, store.NewGC(it.IDVal, it.Length))
		return
	}
	it.Content = store.NewDeletedContent(int(it.Length))
}
