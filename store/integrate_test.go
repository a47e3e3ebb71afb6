package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/id"
)

func integrateInto(t *testing.T, st *Store, parent *testParent, it *Item) {
	t.Helper()
	it.Parent = &PendingParent{Resolved: parent}
	require.NoError(t, Integrate(st, id.NewClock(), it, 0, nil, nil))
}

func TestIntegrate_SequentialSingleClientAppend(t *testing.T) {
	st := New(nil)
	parent := newTestParent("root")

	a := &Item{IDVal: id.ID{Client: 1, Clock: 0}, Length: 1, Content: NewStringContentFromRunes("a")}
	integrateInto(t, st, parent, a)
	require.NoError(t, st.Add(a))

	lastID := a.LastID()
	b := &Item{IDVal: id.ID{Client: 1, Clock: 1}, Length: 1, Origin: &lastID, Content: NewStringContentFromRunes("b")}
	integrateInto(t, st, parent, b)
	require.NoError(t, st.Add(b))

	assert.Equal(t, "ab", parent.visible())
}

// Builds the four independent inserts of spec §8.3.1's two-client
// interleave scenario: client 1 writes "a" then "b" at the document
// head, concurrently with client 2 writing "a" then "b" at the same
// head, neither aware of the other until structs are exchanged.
func scenario83Items() (c1a, c1b, c2a, c2b *Item) {
	c1a = &Item{IDVal: id.ID{Client: 1, Clock: 0}, Length: 1, Content: NewStringContentFromRunes("a")}
	c1aLast := c1a.LastID()
	c1b = &Item{IDVal: id.ID{Client: 1, Clock: 1}, Length: 1, Origin: &c1aLast, Content: NewStringContentFromRunes("b")}

	c2a = &Item{IDVal: id.ID{Client: 2, Clock: 0}, Length: 1, Content: NewStringContentFromRunes("a")}
	c2aLast := c2a.LastID()
	c2b = &Item{IDVal: id.ID{Client: 2, Clock: 1}, Length: 1, Origin: &c2aLast, Content: NewStringContentFromRunes("b")}
	return
}

// TestIntegrate_ConvergesAcrossDeliveryOrder is the core YATA convergence
// check (invariant P1): applying the same four concurrently-created
// structs in four different delivery orders must produce byte-identical
// visible content every time, even though no two replicas ever see the
// structs in the same sequence.
func TestIntegrate_ConvergesAcrossDeliveryOrder(t *testing.T) {
	apply := func(order []*Item) string {
		st := New(nil)
		parent := newTestParent("root")
		for _, it := range order {
			integrateInto(t, st, parent, it)
			require.NoError(t, st.Add(it))
		}
		return parent.visible()
	}

	a1, b1 := func() (*Item, string) {
		c1a, c1b, c2a, c2b := scenario83Items()
		return nil, apply([]*Item{c1a, c1b, c2a, c2b})
	}()
	_ = a1

	_, b2 := func() (*Item, string) {
		c1a, c1b, c2a, c2b := scenario83Items()
		return nil, apply([]*Item{c2a, c2b, c1a, c1b})
	}()

	_, b3 := func() (*Item, string) {
		c1a, c1b, c2a, c2b := scenario83Items()
		return nil, apply([]*Item{c1a, c2a, c1b, c2b})
	}()

	_, b4 := func() (*Item, string) {
		c1a, c1b, c2a, c2b := scenario83Items()
		return nil, apply([]*Item{c2a, c1a, c2b, c1b})
	}()

	assert.Equal(t, b1, b2)
	assert.Equal(t, b1, b3)
	assert.Equal(t, b1, b4)
	assert.Len(t, b1, 4)
}

func TestIntegrate_MissingDependencyIsReported(t *testing.T) {
	st := New(nil)
	parent := newTestParent("root")

	missingOrigin := id.ID{Client: 9, Clock: 0}
	it := &Item{IDVal: id.ID{Client: 1, Clock: 0}, Length: 1, Origin: &missingOrigin, Content: NewStringContentFromRunes("x")}
	it.Parent = &PendingParent{Resolved: parent}

	err := Integrate(st, id.NewClock(), it, 0, nil, nil)
	var missing *MissingDependency
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, uint32(9), missing.Client)
}

// mapVisible walks from the key's head (store.Parent.TypeMap()[key]) to
// the tail of its private chain, the only entry that is ever visible
// (store/integrate.go step 5).
func mapVisible(parent *testParent, key string) *Item {
	it := parent.TypeMap()[key]
	for it != nil && it.Right != nil {
		it = it.Right
	}
	return it
}

func TestIntegrate_MapKeyConcurrentWritesConvergeToRightmost(t *testing.T) {
	key := "color"

	apply := func(first, second *Item) *Item {
		st := New(nil)
		parent := newTestParent("root")
		integrateInto(t, st, parent, first)
		require.NoError(t, st.Add(first))
		integrateInto(t, st, parent, second)
		require.NoError(t, st.Add(second))
		return mapVisible(parent, key)
	}

	mkSet := func(client uint32, clock uint32, val string) *Item {
		return &Item{
			IDVal:     id.ID{Client: client, Clock: clock},
			Length:    1,
			ParentSub: &key,
			Content:   NewStringContentFromRunes(val),
		}
	}

	// Same two writes, opposite integration order: the visible winner
	// must not depend on which replica saw which write first.
	red1, blue1 := mkSet(1, 0, "red"), mkSet(2, 0, "blue")
	winnerA := apply(red1, blue1)

	red2, blue2 := mkSet(1, 0, "red"), mkSet(2, 0, "blue")
	winnerB := apply(blue2, red2)

	require.NotNil(t, winnerA)
	require.NotNil(t, winnerB)
	assert.Equal(t, winnerA.Content.(*StringContent).String(), winnerB.Content.(*StringContent).String())
}
