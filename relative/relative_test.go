package relative

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
	"github.com/opencrdt/ydoc/types"
)

type fakeHost struct {
	st    *store.Store
	clock *id.Clock
	log   *logrus.Logger
}

func newFakeHost() *fakeHost {
	return &fakeHost{st: store.New(nil), clock: id.NewClock(), log: logrus.New()}
}

func (h *fakeHost) Store() *store.Store                    { return h.st }
func (h *fakeHost) Clock() *id.Clock                        { return h.clock }
func (h *fakeHost) GCEnabled() bool                         { return false }
func (h *fakeHost) GCFilter() func(*store.Item) bool        { return nil }
func (h *fakeHost) EmitUpdate(tx *transaction.Transaction)  {}
func (h *fakeHost) Log() logrus.FieldLogger                 { return h.log }

func strAny(s string) encoding.Any { return encoding.Any{Kind: encoding.AnyString, String: s} }

func TestFromIndex_AnchorsToExactCodeUnitClock(t *testing.T) {
	h := newFakeHost()
	arr := types.NewArray(h.st, h.clock, 1, "arr")
	mgr := transaction.NewManager(h)
	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return arr.Insert(tx, 0, strAny("a"), strAny("b"), strAny("c"))
	}, nil, true))

	pos, err := FromIndex(arr, 1, -1)
	require.NoError(t, err)
	require.Equal(t, KindInterior, pos.Kind)
	assert.Equal(t, id.ID{Client: 1, Clock: 1}, *pos.Item)
}

func TestFromIndex_AtSequenceEndProducesRootEndPosition(t *testing.T) {
	h := newFakeHost()
	arr := types.NewArray(h.st, h.clock, 1, "arr")
	mgr := transaction.NewManager(h)
	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return arr.Insert(tx, 0, strAny("a"))
	}, nil, true))

	pos, err := FromIndex(arr, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, KindRootEnd, pos.Kind)
	assert.Equal(t, "arr", pos.RootName)
}

func TestToIndex_TracksConcurrentInsertBeforeTheAnchor(t *testing.T) {
	h := newFakeHost()
	arr := types.NewArray(h.st, h.clock, 1, "arr")
	mgr := transaction.NewManager(h)
	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return arr.Insert(tx, 0, strAny("a"), strAny("b"), strAny("c"))
	}, nil, true))

	pos, err := FromIndex(arr, 2, -1) // anchors to "c"
	require.NoError(t, err)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return arr.Insert(tx, 0, strAny("z"))
	}, nil, true))

	resolved, idx, ok, err := ToIndex(h.st, nil, pos)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, arr, resolved.(*types.Array))
	assert.Equal(t, 3, idx) // "z","a","b","c" — c now at index 3
}

func TestToIndex_ReturnsNotOkWhenAnchorWasDeleted(t *testing.T) {
	h := newFakeHost()
	arr := types.NewArray(h.st, h.clock, 1, "arr")
	mgr := transaction.NewManager(h)
	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return arr.Insert(tx, 0, strAny("a"), strAny("b"))
	}, nil, true))

	pos, err := FromIndex(arr, 0, 1)
	require.NoError(t, err)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return arr.Delete(tx, 0, 1)
	}, nil, true))

	_, _, ok, err := ToIndex(h.st, nil, pos)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPosition_WriteReadRoundTrip(t *testing.T) {
	cases := []*Position{
		{Kind: KindInterior, Item: &id.ID{Client: 3, Clock: 7}, Assoc: -1},
		{Kind: KindRootEnd, RootName: "arr", Assoc: 1},
		{Kind: KindIDEnd, TypeID: &id.ID{Client: 9, Clock: 2}, Assoc: -1},
	}
	for _, want := range cases {
		enc := encoding.NewEncoder()
		Write(enc, want)
		got, err := Read(encoding.NewDecoder(enc.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Assoc, got.Assoc)
		if want.Item != nil {
			assert.Equal(t, *want.Item, *got.Item)
		}
		if want.TypeID != nil {
			assert.Equal(t, *want.TypeID, *got.TypeID)
		}
		assert.Equal(t, want.RootName, got.RootName)
	}
}
