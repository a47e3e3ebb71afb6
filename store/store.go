// Package store implements the per-client struct store (spec.md §4.3,
// C4), the item graph and content variants (§3.3-§3.6, §4.4, C5), and
// the YATA conflict-resolution integration algorithm.
package store

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/opencrdt/ydoc/id"
)

// Sentinel errors, spec.md §7.
var (
	ErrStructureViolation = errors.New("store: structure violation (non-contiguous clocks)")
	ErrNotFound           = errors.New("store: no struct covers the requested clock")
)

// Store is clients: Map<client, Vec<Struct>>, each Vec sorted by
// id.clock, contiguous, and append-ordered (spec §3.2).
type Store struct {
	clients map[uint32][]Struct
	log     logrus.FieldLogger
}

// New creates an empty struct store.
func New(log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{clients: make(map[uint32][]Struct), log: log}
}

// Clients exposes the raw per-client slices for iteration by callers
// that need read access across the whole store (e.g. encode_state_as_update).
func (s *Store) Clients() map[uint32][]Struct { return s.clients }

// ClientIDs returns all known client IDs.
func (s *Store) ClientIDs() []uint32 {
	ids := make([]uint32, 0, len(s.clients))
	for c := range s.clients {
		ids = append(ids, c)
	}
	return ids
}

// StateVector returns, for each client, last.id.clock + last.length
// (spec §4.3).
func (s *Store) StateVector() map[uint32]uint32 {
	sv := make(map[uint32]uint32, len(s.clients))
	for client, structs := range s.clients {
		if len(structs) == 0 {
			continue
		}
		last := structs[len(structs)-1]
		sv[client] = last.ID().Clock + last.Len()
	}
	return sv
}

// Add appends a struct, enforcing invariant S1 (dense, contiguous
// clocks within a client).
func (s *Store) Add(st Struct) error {
	list := s.clients[st.ID().Client]
	if len(list) > 0 {
		last := list[len(list)-1]
		if last.ID().Clock+last.Len() != st.ID().Clock {
			return errors.Wrapf(ErrStructureViolation, "client %d: expected clock %d, got %d",
				st.ID().Client, last.ID().Clock+last.Len(), st.ID().Clock)
		}
	} else if st.ID().Clock != 0 {
		return errors.Wrapf(ErrStructureViolation, "client %d: first struct must start at clock 0, got %d",
			st.ID().Client, st.ID().Clock)
	}
	s.clients[st.ID().Client] = append(list, st)
	return nil
}

// Replace swaps the struct at list[index] (identified by exact ID) with
// replacement, used by GC to turn an Item into a GC struct in place
// (spec §4.5).
func (s *Store) Replace(client uint32, index int, replacement Struct) {
	s.clients[client][index] = replacement
}

// FindIndex performs a binary search biased by the ratio
// clock/(maxClock+1) to hit in one probe in the common append-heavy
// case (spec §4.3). Returns ErrNotFound if no struct in this client's
// list covers clock.
func (s *Store) FindIndex(client uint32, clock uint32) (int, error) {
	list := s.clients[client]
	if len(list) == 0 {
		return 0, errors.Wrapf(ErrNotFound, "client %d has no structs", client)
	}

	last := list[len(list)-1]
	maxClock := last.ID().Clock + last.Len()
	if clock >= maxClock {
		return 0, errors.Wrapf(ErrNotFound, "client %d: clock %d beyond state %d", client, clock, maxClock)
	}

	guess := int(uint64(len(list)-1) * uint64(clock) / uint64(maxClock+1))
	if guess >= len(list) {
		guess = len(list) - 1
	}
	for guess >= 0 && guess < len(list) {
		st := list[guess]
		if st.ID().Clock <= clock && clock < st.ID().Clock+st.Len() {
			return guess, nil
		}
		if st.ID().Clock > clock {
			guess--
		} else {
			guess++
		}
	}
	// Fall back to a plain binary search in case the pivot walk above
	// stepped out of bounds due to unusual gap patterns.
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].ID().Clock+list[i].Len() > clock
	})
	if idx < len(list) && list[idx].ID().Clock <= clock {
		return idx, nil
	}
	return 0, errors.Wrapf(ErrNotFound, "client %d: clock %d not covered", client, clock)
}

// Get returns the struct covering (client, clock).
func (s *Store) Get(client uint32, clock uint32) (Struct, error) {
	idx, err := s.FindIndex(client, clock)
	if err != nil {
		return nil, err
	}
	return s.clients[client][idx], nil
}

// GetItem returns the struct covering the given ID, type-asserted to
// *Item. Returns an error if the struct at that position is a GC/Skip.
func (s *Store) GetItem(target id.ID) (*Item, error) {
	st, err := s.Get(target.Client, target.Clock)
	if err != nil {
		return nil, err
	}
	it, ok := st.(*Item)
	if !ok {
		return nil, errors.Errorf("store: struct at %s is not an Item", target)
	}
	return it, nil
}

// splitAt splits the struct at list[index] so a new struct boundary
// begins exactly at clock, returning the index of the right half
// (which now starts at clock). If the struct already starts there, it
// returns index unchanged.
func (s *Store) splitAt(client uint32, index int, clock uint32) (int, error) {
	list := s.clients[client]
	st := list[index]
	if st.ID().Clock == clock {
		return index, nil
	}
	offset := int(clock - st.ID().Clock)
	if offset <= 0 || offset >= int(st.Len()) {
		return 0, errors.Errorf("store: invalid split offset %d for struct of length %d", offset, st.Len())
	}

	var left, right Struct
	switch v := st.(type) {
	case *Item:
		leftContent, rightContent := v.Content.Split(offset)
		leftID := v.IDVal
		rightID := id.ID{Client: client, Clock: clock}

		var rightParentSub *string
		if v.ParentSub != nil {
			sub := *v.ParentSub
			rightParentSub = &sub
		}
		var redoneRight *id.ID
		if v.Redone != nil {
			r := id.ID{Client: v.Redone.Client, Clock: v.Redone.Clock + uint32(offset)}
			redoneRight = &r
		}
		rightItem := &Item{
			IDVal:       rightID,
			Length:      v.Length - uint32(offset),
			Origin:      &id.ID{Client: leftID.Client, Clock: leftID.Clock + uint32(offset) - 1},
			RightOrigin: v.RightOrigin,
			Right:       v.Right,
			Parent:      v.Parent,
			ParentSub:   rightParentSub,
			Redone:      redoneRight,
			Info:        v.Info,
			Content:     rightContent,
		}
		leftItem := &Item{
			IDVal:       leftID,
			Length:      uint32(offset),
			Origin:      v.Origin,
			RightOrigin: &rightID,
			Left:        v.Left,
			Right:       rightItem,
			Parent:      v.Parent,
			ParentSub:   v.ParentSub,
			Redone:      v.Redone,
			Info:        v.Info,
			Content:     leftContent,
		}
		rightItem.Left = leftItem
		if v.Right != nil {
			v.Right.Left = rightItem
		}
		left, right = leftItem, rightItem
	case *GC:
		left = NewGC(v.id, uint32(offset))
		right = NewGC(id.ID{Client: client, Clock: clock}, v.length-uint32(offset))
	case *Skip:
		left = NewSkip(v.id, uint32(offset))
		right = NewSkip(id.ID{Client: client, Clock: clock}, v.length-uint32(offset))
	default:
		return 0, errors.Errorf("store: unknown struct kind %T", st)
	}

	newList := make([]Struct, 0, len(list)+1)
	newList = append(newList, list[:index]...)
	newList = append(newList, left, right)
	newList = append(newList, list[index+1:]...)
	s.clients[client] = newList
	return index + 1, nil
}

// GetItemCleanStart ensures a struct boundary exists exactly at
// target.Clock and returns the struct beginning there (spec §4.3
// get_item_clean_start).
func (s *Store) GetItemCleanStart(target id.ID) (*Item, error) {
	idx, err := s.FindIndex(target.Client, target.Clock)
	if err != nil {
		return nil, err
	}
	idx, err = s.splitAt(target.Client, idx, target.Clock)
	if err != nil {
		return nil, err
	}
	it, ok := s.clients[target.Client][idx].(*Item)
	if !ok {
		return nil, errors.Errorf("store: struct at %s is not an Item", target)
	}
	return it, nil
}

// GetItemCleanEnd ensures a struct boundary exists exactly after
// target.Clock (i.e. at target.Clock+1) and returns the struct ending
// there (spec §4.3 get_item_clean_end): used to resolve an `origin`
// reference, which names the last unit of the left neighbour.
func (s *Store) GetItemCleanEnd(target id.ID) (*Item, error) {
	idx, err := s.FindIndex(target.Client, target.Clock)
	if err != nil {
		return nil, err
	}
	if target.Clock+1 < s.clients[target.Client][idx].ID().Clock+s.clients[target.Client][idx].Len() {
		if _, err := s.splitAt(target.Client, idx, target.Clock+1); err != nil {
			return nil, err
		}
	}
	it, ok := s.clients[target.Client][idx].(*Item)
	if !ok {
		return nil, errors.Errorf("store: struct at %s is not an Item", target)
	}
	return it, nil
}

// Iterate calls f over every struct in the half-open clock range
// [clockStart, clockStart+length) for client, performing clean-starts
// as needed at both ends (spec §4.3 "iterate").
func (s *Store) Iterate(client uint32, clockStart, length uint32, f func(Struct) error) error {
	if length == 0 {
		return nil
	}
	if _, err := s.GetItemCleanStart(id.ID{Client: client, Clock: clockStart}); err != nil {
		// Non-Item structs (GC/Skip) can't clean-start as Items; fall
		// back to locating by index only.
		idx, ferr := s.FindIndex(client, clockStart)
		if ferr != nil {
			return err
		}
		if _, serr := s.splitAt(client, idx, clockStart); serr != nil {
			return serr
		}
	}
	end := clockStart + length
	if end < s.clients[client][len(s.clients[client])-1].ID().Clock+s.clients[client][len(s.clients[client])-1].Len() {
		idx, err := s.FindIndex(client, end)
		if err == nil {
			if _, err := s.splitAt(client, idx, end); err != nil {
				return err
			}
		}
	}
	idx, err := s.FindIndex(client, clockStart)
	if err != nil {
		return err
	}
	list := s.clients[client]
	for idx < len(list) {
		st := list[idx]
		if st.ID().Clock >= end {
			break
		}
		if err := f(st); err != nil {
			return err
		}
		idx++
		list = s.clients[client]
	}
	return nil
}

// TryMergeWithLeft attempts to fuse the struct at list[index] with its
// immediate predecessor (invariant M6), replacing both with the merged
// result. Returns true if a merge happened.
func (s *Store) TryMergeWithLeft(client uint32, index int) bool {
	list := s.clients[client]
	if index <= 0 || index >= len(list) {
		return false
	}
	prev := list[index-1]
	cur := list[index]
	merged, ok := prev.MergeWith(cur)
	if !ok {
		return false
	}
	newList := make([]Struct, 0, len(list)-1)
	newList = append(newList, list[:index-1]...)
	newList = append(newList, merged)
	newList = append(newList, list[index+1:]...)
	s.clients[client] = newList
	if mi, ok := merged.(*Item); ok {
		if mi.Left != nil {
			mi.Left.Right = mi
		}
		if mi.Right != nil {
			mi.Right.Left = mi
		}
	}
	return true
}

// TryMergeAll walks every client's list once, fusing all adjacent
// mergeable structs. Called at transaction commit (spec §4.6).
func (s *Store) TryMergeAll() {
	for client, list := range s.clients {
		i := 1
		for i < len(list) {
			if s.TryMergeWithLeft(client, i) {
				list = s.clients[client]
				continue
			}
			i++
		}
	}
}
