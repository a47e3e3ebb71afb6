package ydoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/transaction"
	"github.com/opencrdt/ydoc/types"
)

func TestGetOrDefine_SameNameSameKindReturnsSameInstance(t *testing.T) {
	d := New(nil, WithClientID(1))

	a, err := d.GetOrDefine("items", KindArray)
	require.NoError(t, err)
	b, err := d.GetOrDefine("items", KindArray)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestGetOrDefine_MismatchedKindErrors(t *testing.T) {
	d := New(nil, WithClientID(1))

	_, err := d.GetOrDefine("doc", KindText)
	require.NoError(t, err)

	_, err = d.GetOrDefine("doc", KindMap)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestTransact_CommitsAndEmitsUpdate(t *testing.T) {
	d := New(nil, WithClientID(1))
	var captured []byte
	var origin interface{}
	d.OnUpdate(func(data []byte, v2 bool, o interface{}) {
		captured = data
		origin = o
	})

	txtShared, err := d.GetOrDefine("txt", KindText)
	require.NoError(t, err)
	txt := txtShared.(*types.Text)

	require.NoError(t, d.Transact(func(tx *transaction.Transaction) error {
		return txt.Insert(tx, 0, "hello", nil)
	}, "local-origin", true))

	assert.Equal(t, "hello", txt.String())
	assert.NotEmpty(t, captured)
	assert.Equal(t, "local-origin", origin)
}

func TestApplyUpdate_SyncsTwoReplicas(t *testing.T) {
	a := New(nil, WithClientID(1))
	b := New(nil, WithClientID(2))

	aTxtShared, err := a.GetOrDefine("txt", KindText)
	require.NoError(t, err)
	aTxt := aTxtShared.(*types.Text)

	// Both peers agree on the root's kind before exchanging any bytes,
	// the same way two Yjs clients both call ydoc.getText('txt') before
	// wiring a provider between them.
	bTxtShared, err := b.GetOrDefine("txt", KindText)
	require.NoError(t, err)
	bTxt := bTxtShared.(*types.Text)

	require.NoError(t, a.Transact(func(tx *transaction.Transaction) error {
		return aTxt.Insert(tx, 0, "hello", nil)
	}, a, true))

	data := a.EncodeStateAsUpdate(nil, false)
	require.NoError(t, b.ApplyUpdate(data, false, "remote"))
	assert.Equal(t, "hello", bTxt.String())

	require.NoError(t, a.Transact(func(tx *transaction.Transaction) error {
		return aTxt.Delete(tx, 0, 5)
	}, a, true))
	diff := a.EncodeStateAsUpdate(b.EncodeStateVector(), false)
	require.NoError(t, b.ApplyUpdate(diff, false, "remote"))
	assert.Equal(t, "", bTxt.String())
	assert.False(t, b.HasPendingUpdates())
}

func TestApplyUpdate_BuffersMissingDependency(t *testing.T) {
	origin := New(nil, WithClientID(1))
	txtShared, err := origin.GetOrDefine("txt", KindText)
	require.NoError(t, err)
	txt := txtShared.(*types.Text)

	require.NoError(t, origin.Transact(func(tx *transaction.Transaction) error {
		return txt.Insert(tx, 0, "hello", nil)
	}, origin, true))
	// firstOnly captures exactly the "hello" range; taken now, before the
	// second insert exists, so it shares no struct range with secondOnly
	// below.
	firstOnly := origin.EncodeStateAsUpdate(nil, false)

	require.NoError(t, origin.Transact(func(tx *transaction.Transaction) error {
		return txt.Insert(tx, 5, " world", nil)
	}, origin, true))
	secondOnly := origin.EncodeStateAsUpdate(map[uint32]uint32{origin.ClientID(): 5}, false)

	receiver := New(nil, WithClientID(2))
	rTxtShared, err := receiver.GetOrDefine("txt", KindText)
	require.NoError(t, err)
	rTxt := rTxtShared.(*types.Text)

	// " world"'s left origin names a clock the receiver hasn't seen yet:
	// it is buffered rather than rejected (spec §8.3 scenario 5).
	require.NoError(t, receiver.ApplyUpdate(secondOnly, false, "remote"))
	assert.True(t, receiver.HasPendingUpdates())
	assert.Equal(t, "", rTxt.String())

	require.NoError(t, receiver.ApplyUpdate(firstOnly, false, "remote"))
	assert.False(t, receiver.HasPendingUpdates())
	assert.Equal(t, "hello world", rTxt.String())
}
