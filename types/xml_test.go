package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/transaction"
)

func TestXmlElement_AttributesAndChildren(t *testing.T) {
	h := newFakeHost()
	el := NewXmlElement(h.st, h.clock, 1, "root", "div")
	mgr := transaction.NewManager(h)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		require.NoError(t, el.Attributes().Set(tx, "class", strAny("card")))
		return el.Push(tx, strAny("child-1"))
	}, nil, true))

	assert.Equal(t, "div", el.NodeName)
	v, ok := el.Attributes().Get("class")
	require.True(t, ok)
	assert.Equal(t, strAny("card"), v)
	assert.Equal(t, []encoding.Any{strAny("child-1")}, el.ToSlice())
}

func TestXmlFragment_ChildOrderingUsesSequenceAlgorithm(t *testing.T) {
	h := newFakeHost()
	frag := NewXmlFragment(h.st, h.clock, 1, "frag")
	mgr := transaction.NewManager(h)

	require.NoError(t, mgr.Transact(func(tx *transaction.Transaction) error {
		require.NoError(t, frag.Push(tx, strAny("a")))
		return frag.Insert(tx, 0, strAny("b"))
	}, nil, true))

	assert.Equal(t, []encoding.Any{strAny("b"), strAny("a")}, frag.ToSlice())
}
