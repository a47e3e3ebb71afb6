package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
	"github.com/opencrdt/ydoc/types"
)

func TestConvert_RoundTripsV1ToV2AndBack(t *testing.T) {
	h := newTestHost()
	txt := types.NewText(h.st, h.clock, 1, "txt")
	mgr := transaction.NewManager(h)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return txt.Insert(tx, 0, "hello", nil)
	}, nil, true))

	v1 := Encode(h.st, deleteset.New(), false)

	v2, err := Convert(v1, false)
	require.NoError(t, err)

	back, err := Convert(v2, true)
	require.NoError(t, err)

	uOrig, err := Decode(v1, false)
	require.NoError(t, err)
	uBack, err := Decode(back, false)
	require.NoError(t, err)

	assert.Equal(t, uOrig.ClientIDs(), uBack.ClientIDs())
	assert.Equal(t, len(uOrig.clients[1]), len(uBack.clients[1]))
}

func TestObfuscate_ScrubsStringContentButKeepsShape(t *testing.T) {
	h := newTestHost()
	txt := types.NewText(h.st, h.clock, 1, "txt")
	mgr := transaction.NewManager(h)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		return txt.Insert(tx, 0, "secret", nil)
	}, nil, true))

	data := Encode(h.st, deleteset.New(), false)

	obfuscated, err := Obfuscate(data, false)
	require.NoError(t, err)

	u, err := Decode(obfuscated, false)
	require.NoError(t, err)

	require.Len(t, u.clients[1], 1)
	sc, ok := u.clients[1][0].item.Content.(*store.StringContent)
	require.True(t, ok)
	assert.Equal(t, 6, len(sc.Units))
	for _, unit := range sc.Units {
		assert.Equal(t, uint16('x'), unit)
	}
}
