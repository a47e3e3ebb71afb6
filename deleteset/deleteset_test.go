package deleteset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

func TestSet_CoalesceMergesOverlappingAndTouchingRanges(t *testing.T) {
	s := New()
	s.Add(1, 0, 3)
	s.Add(1, 3, 2) // touches [0,3)
	s.Add(1, 10, 5)
	s.Add(1, 12, 10) // overlaps [10,15)

	s.Coalesce()

	ranges := s.Clients()[1]
	require.Len(t, ranges, 2)
	assert.Equal(t, Range{Clock: 0, Length: 5}, ranges[0])
	assert.Equal(t, Range{Clock: 10, Length: 12}, ranges[1])
}

func TestSet_IsDeleted(t *testing.T) {
	s := New()
	s.Add(1, 5, 3) // [5, 8)
	s.Coalesce()

	assert.True(t, s.IsDeleted(id.ID{Client: 1, Clock: 5}))
	assert.True(t, s.IsDeleted(id.ID{Client: 1, Clock: 7}))
	assert.False(t, s.IsDeleted(id.ID{Client: 1, Clock: 8}))
	assert.False(t, s.IsDeleted(id.ID{Client: 1, Clock: 4}))
	assert.False(t, s.IsDeleted(id.ID{Client: 2, Clock: 5}))
}

func TestSet_Merge(t *testing.T) {
	a := New()
	a.Add(1, 0, 3)
	b := New()
	b.Add(1, 3, 2)
	b.Add(2, 0, 1)

	merged := Merge(a, b)

	assert.True(t, merged.IsDeleted(id.ID{Client: 1, Clock: 4}))
	assert.True(t, merged.IsDeleted(id.ID{Client: 2, Clock: 0}))
	require.Len(t, merged.Clients()[1], 1) // [0,3) and [3,5) coalesce
}

func TestSet_WriteReadRoundTrip_V1AndV2(t *testing.T) {
	for _, v2 := range []bool{false, true} {
		s := New()
		s.Add(3, 10, 4)
		s.Add(3, 20, 1)
		s.Add(1, 0, 2)

		enc := encoding.NewEncoder()
		s.Write(enc, v2)

		dec := encoding.NewDecoder(enc.Bytes())
		got, err := Read(dec, v2)
		require.NoError(t, err)

		assert.True(t, got.IsDeleted(id.ID{Client: 3, Clock: 12}))
		assert.True(t, got.IsDeleted(id.ID{Client: 3, Clock: 20}))
		assert.True(t, got.IsDeleted(id.ID{Client: 1, Clock: 1}))
		assert.False(t, got.IsDeleted(id.ID{Client: 3, Clock: 14}))
	}
}

func TestSet_WriteOrdersClientsDescending(t *testing.T) {
	s := New()
	s.Add(1, 0, 1)
	s.Add(5, 0, 1)
	s.Add(3, 0, 1)

	enc := encoding.NewEncoder()
	s.Write(enc, true)
	dec := encoding.NewDecoder(enc.Bytes())

	count, err := dec.ReadUvarint()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)

	var clients []uint32
	for i := 0; i < 3; i++ {
		c, err := dec.ReadUvarint32()
		require.NoError(t, err)
		clients = append(clients, c)
		n, err := dec.ReadUvarint()
		require.NoError(t, err)
		for j := uint64(0); j < n; j++ {
			_, err := dec.ReadUvarint()
			require.NoError(t, err)
			_, err = dec.ReadUvarint()
			require.NoError(t, err)
		}
	}
	assert.Equal(t, []uint32{5, 3, 1}, clients)
}

func TestFromStore_CollectsOnlyTombstonedItems(t *testing.T) {
	st := store.New(nil)
	parent := newFakeParent()

	live := &store.Item{
		IDVal:   id.ID{Client: 1, Clock: 0},
		Length:  2,
		Content: store.NewStringContentFromRunes("hi"),
		Parent:  &store.PendingParent{Resolved: parent},
	}
	require.NoError(t, st.Add(live))

	deleted := &store.Item{
		IDVal:   id.ID{Client: 1, Clock: 2},
		Length:  3,
		Content: store.NewStringContentFromRunes("bye"),
		Parent:  &store.PendingParent{Resolved: parent},
	}
	deleted.MarkDeleted()
	require.NoError(t, st.Add(deleted))

	gc := store.NewGC(id.ID{Client: 2, Clock: 0}, 4)
	require.NoError(t, st.Add(gc))

	ds := FromStore(st)

	assert.False(t, ds.IsDeleted(id.ID{Client: 1, Clock: 0}))
	assert.True(t, ds.IsDeleted(id.ID{Client: 1, Clock: 2}))
	assert.True(t, ds.IsDeleted(id.ID{Client: 1, Clock: 4}))
	assert.Empty(t, ds.Clients()[2], "GC placeholders carry no content to tombstone")
}
