package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/id"
)

func mkItem(client, clock uint32, length uint32, content Content) *Item {
	return &Item{
		IDVal:   id.ID{Client: client, Clock: clock},
		Length:  length,
		Content: content,
	}
}

func TestStore_AddEnforcesContiguousClocks(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(mkItem(1, 0, 3, NewDeletedContent(3))))
	require.NoError(t, s.Add(mkItem(1, 3, 2, NewDeletedContent(2))))

	err := s.Add(mkItem(1, 10, 1, NewDeletedContent(1)))
	assert.ErrorIs(t, err, ErrStructureViolation)

	err = s.Add(mkItem(2, 1, 1, NewDeletedContent(1)))
	assert.ErrorIs(t, err, ErrStructureViolation)
}

func TestStore_StateVector(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(mkItem(1, 0, 5, NewDeletedContent(5))))
	require.NoError(t, s.Add(mkItem(2, 0, 2, NewDeletedContent(2))))

	sv := s.StateVector()
	assert.Equal(t, uint32(5), sv[1])
	assert.Equal(t, uint32(2), sv[2])
	assert.Equal(t, 2, len(sv))
}

func TestStore_FindIndex(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(mkItem(1, 0, 3, NewDeletedContent(3))))
	require.NoError(t, s.Add(mkItem(1, 3, 4, NewDeletedContent(4))))
	require.NoError(t, s.Add(mkItem(1, 7, 1, NewDeletedContent(1))))

	idx, err := s.FindIndex(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = s.FindIndex(1, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = s.FindIndex(1, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = s.FindIndex(1, 8)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindIndex(9, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetItemCleanStartSplitsInPlace(t *testing.T) {
	s := New(nil)
	sc := NewStringContentFromRunes("hello")
	require.NoError(t, s.Add(mkItem(1, 0, uint32(sc.Len()), sc)))

	right, err := s.GetItemCleanStart(id.ID{Client: 1, Clock: 2})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), right.IDVal.Clock)
	assert.Equal(t, "llo", right.Content.(*StringContent).String())

	list := s.clients[1]
	require.Len(t, list, 2)
	assert.Equal(t, "he", list[0].(*Item).Content.(*StringContent).String())
	assert.Equal(t, "llo", list[1].(*Item).Content.(*StringContent).String())
	assert.Same(t, list[1].(*Item), list[0].(*Item).Right)
	assert.Same(t, list[0].(*Item), list[1].(*Item).Left)
}

func TestStore_GetItemCleanEndSplitsAfterClock(t *testing.T) {
	s := New(nil)
	sc := NewStringContentFromRunes("hello")
	require.NoError(t, s.Add(mkItem(1, 0, uint32(sc.Len()), sc)))

	left, err := s.GetItemCleanEnd(id.ID{Client: 1, Clock: 1})
	require.NoError(t, err)
	assert.Equal(t, "he", left.Content.(*StringContent).String())

	list := s.clients[1]
	require.Len(t, list, 2)
}

func TestStore_TryMergeAllFusesAdjacentEqualItems(t *testing.T) {
	s := New(nil)
	a := mkItem(1, 0, 2, NewStringContentFromRunes("he"))
	b := mkItem(1, 2, 3, NewStringContentFromRunes("llo"))
	a.Right = b
	b.Left = a
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))

	s.TryMergeAll()

	list := s.clients[1]
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].(*Item).Content.(*StringContent).String())
}

func TestStore_TryMergeAllSkipsDifferingDeletedFlag(t *testing.T) {
	s := New(nil)
	a := mkItem(1, 0, 2, NewStringContentFromRunes("he"))
	b := mkItem(1, 2, 3, NewStringContentFromRunes("llo"))
	a.Right = b
	b.Left = a
	b.MarkDeleted()
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))

	s.TryMergeAll()

	assert.Len(t, s.clients[1], 2)
}
