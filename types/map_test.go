package types

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/transaction"
)

func TestMap_SetGetHasDelete(t *testing.T) {
	h := newFakeHost()
	m := NewMap(h.st, h.clock, 1, "m")
	mgr := transaction.NewManager(h)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return m.Set(tx, "name", strAny("ada"))
	}, nil, true))

	v, ok := m.Get("name")
	require.True(t, ok)
	assert.Equal(t, strAny("ada"), v)
	assert.True(t, m.Has("name"))
	assert.False(t, m.Has("missing"))

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return m.Delete(tx, "name")
	}, nil, true))

	assert.False(t, m.Has("name"))
	_, ok = m.Get("name")
	assert.False(t, ok)
}

func TestMap_SetOverwritesPriorValueForSameKey(t *testing.T) {
	h := newFakeHost()
	m := NewMap(h.st, h.clock, 1, "m")
	mgr := transaction.NewManager(h)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		require.NoError(t, m.Set(tx, "k", intAny(1)))
		return m.Set(tx, "k", intAny(2))
	}, nil, true))

	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, intAny(2), v)
}

func TestMap_KeysReturnsOnlyVisibleEntries(t *testing.T) {
	h := newFakeHost()
	m := NewMap(h.st, h.clock, 1, "m")
	mgr := transaction.NewManager(h)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		require.NoError(t, m.Set(tx, "a", intAny(1)))
		require.NoError(t, m.Set(tx, "b", intAny(2)))
		return nil
	}, nil, true))
	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return m.Delete(tx, "a")
	}, nil, true))

	keys := m.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"b"}, keys)
}

func TestMap_DeleteMissingKeyErrors(t *testing.T) {
	h := newFakeHost()
	m := NewMap(h.st, h.clock, 1, "m")
	mgr := transaction.NewManager(h)

	err := mgr.Transact(func(tx *transaction.Transaction) error {
		return m.Delete(tx, "nope")
	}, nil, true)
	assert.Error(t, err)
}
