package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/transaction"
	"github.com/opencrdt/ydoc/types"
)

func TestApplier_IntegratesFullUpdateIntoFreshReplica(t *testing.T) {
	sender := newTestHost()
	sArr := types.NewArray(sender.st, sender.clock, 1, "arr")
	mgr := transaction.NewManager(sender)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return sArr.Insert(tx, 0, strAny("a"), strAny("b"), strAny("c"))
	}, nil, true))

	data := Encode(sender.st, deleteset.New(), false)

	receiver := newTestHost()
	rArr := types.NewArray(receiver.st, receiver.clock, 1, "arr")

	app := NewApplier(receiver.log)
	require.NoError(t, app.Apply(receiver.st, receiver.clock, data, false, resolverFor(rArr)))

	assert.False(t, app.HasPending())
	assert.Equal(t, sArr.ToSlice(), rArr.ToSlice())
}

func TestApplier_BuffersThenIntegratesOutOfOrderClientRuns(t *testing.T) {
	sender := newTestHost()
	sArr := types.NewArray(sender.st, sender.clock, 1, "arr")
	mgr := transaction.NewManager(sender)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return sArr.Insert(tx, 0, strAny("a"), strAny("b"))
	}, nil, true))
	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return sArr.Push(tx, strAny("c"))
	}, nil, true))

	// The commit merges [a b] and [c] into one struct, so cut the update
	// at clock 2: first carries [a b], second the dependent [c]. second
	// is delivered first; the Applier must hold it pending rather than
	// integrating it out of order, then pick it up once first arrives.
	first, err := Decode(EncodeUpTo(sender.st, map[uint32]uint32{1: 2}, nil, false), false)
	require.NoError(t, err)
	second, err := Decode(EncodeDiff(sender.st, map[uint32]uint32{1: 2}, nil, false), false)
	require.NoError(t, err)

	receiver := newTestHost()
	rArr := types.NewArray(receiver.st, receiver.clock, 1, "arr")
	app := NewApplier(receiver.log)

	require.NoError(t, app.ApplyDecoded(receiver.st, receiver.clock, second, resolverFor(rArr)))
	assert.True(t, app.HasPending(), "struct with an unresolved origin must be buffered")

	require.NoError(t, app.ApplyDecoded(receiver.st, receiver.clock, first, resolverFor(rArr)))
	assert.False(t, app.HasPending())
	assert.Equal(t, sArr.ToSlice(), rArr.ToSlice())
}

func TestApplier_AppliesDeleteSetAfterItemsIntegrate(t *testing.T) {
	sender := newTestHost()
	sArr := types.NewArray(sender.st, sender.clock, 1, "arr")
	mgr := transaction.NewManager(sender)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return sArr.Insert(tx, 0, strAny("a"), strAny("b"), strAny("c"))
	}, nil, true))
	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return sArr.Delete(tx, 1, 1)
	}, nil, true))

	ds := deleteset.New()
	ds.Add(1, 1, 1)
	data := Encode(sender.st, ds, false)

	receiver := newTestHost()
	rArr := types.NewArray(receiver.st, receiver.clock, 1, "arr")
	app := NewApplier(receiver.log)

	require.NoError(t, app.Apply(receiver.st, receiver.clock, data, false, resolverFor(rArr)))
	assert.False(t, app.HasPending())
	assert.Equal(t, sArr.ToSlice(), rArr.ToSlice())
}
