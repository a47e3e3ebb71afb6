package deleteset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

// fakeParent is a minimal store.Parent for exercising the GC driver
// without depending on package types (which would import deleteset and
// create a cycle, since deleteset is a lower-level concern than types).
type fakeParent struct {
	start *store.Item
	m     map[string]*store.Item
}

func newFakeParent() *fakeParent        { return &fakeParent{m: map[string]*store.Item{}} }
func (p *fakeParent) TypeStart() *store.Item          { return p.start }
func (p *fakeParent) SetTypeStart(it *store.Item)     { p.start = it }
func (p *fakeParent) TypeMap() map[string]*store.Item { return p.m }
func (p *fakeParent) AdjustLength(int)                {}
func (p *fakeParent) OwnerItem() *store.Item          { return nil }
func (p *fakeParent) RootName() string                { return "root" }

func TestGC_ReplacesDeletedItemContentWithDeletedContent(t *testing.T) {
	st := store.New(nil)
	parent := newFakeParent()

	sc := store.NewStringContentFromRunes("hello")
	it := &store.Item{
		IDVal:   id.ID{Client: 1, Clock: 0},
		Length:  uint32(sc.Len()),
		Content: sc,
		Parent:  &store.PendingParent{Resolved: parent},
	}
	it.MarkDeleted()
	require.NoError(t, st.Add(it))

	ds := New()
	ds.Add(1, 0, uint32(sc.Len()))

	require.NoError(t, GC(st, ds, nil))

	got, err := st.GetItem(id.ID{Client: 1, Clock: 0})
	require.NoError(t, err)
	_, isDeletedContent := got.Content.(*store.DeletedContent)
	assert.True(t, isDeletedContent)
}

func TestGC_SkipsItemsMarkedKeep(t *testing.T) {
	st := store.New(nil)
	parent := newFakeParent()

	sc := store.NewStringContentFromRunes("x")
	it := &store.Item{
		IDVal:   id.ID{Client: 1, Clock: 0},
		Length:  1,
		Content: sc,
		Parent:  &store.PendingParent{Resolved: parent},
	}
	it.MarkDeleted()
	it.SetKeep(true)
	require.NoError(t, st.Add(it))

	ds := New()
	ds.Add(1, 0, 1)

	require.NoError(t, GC(st, ds, nil))

	got, err := st.GetItem(id.ID{Client: 1, Clock: 0})
	require.NoError(t, err)
	_, stillString := got.Content.(*store.StringContent)
	assert.True(t, stillString)
}
