package sync

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/transaction"
	"github.com/opencrdt/ydoc/types"
	"github.com/opencrdt/ydoc/update"
)

type testPeer struct {
	st    *store.Store
	clock *id.Clock
	arr   *types.Array
}

func newTestPeer(client uint32) *testPeer {
	st := store.New(nil)
	clock := id.NewClock()
	arr := types.NewArray(st, clock, client, "arr")
	return &testPeer{st: st, clock: clock, arr: arr}
}

func (p *testPeer) Store() *store.Store { return p.st }
func (p *testPeer) Clock() *id.Clock    { return p.clock }
func (p *testPeer) ResolveRoot(name string) (store.Parent, error) {
	return p.arr, nil
}

func (p *testPeer) GCEnabled() bool                        { return false }
func (p *testPeer) GCFilter() func(*store.Item) bool       { return nil }
func (p *testPeer) EmitUpdate(tx *transaction.Transaction)  {}
func (p *testPeer) Log() logrus.FieldLogger                { return logrus.New() }

func strAny(s string) encoding.Any { return encoding.Any{Kind: encoding.AnyString, String: s} }

func TestSession_ClientServerHandshakeConverges(t *testing.T) {
	server := newTestPeer(1)
	require.NoError(t, transaction.NewManager(server).Transact(func(tx *transaction.Transaction) error {
		return server.arr.Insert(tx, 0, strAny("a"), strAny("b"))
	}, nil, true))

	client := newTestPeer(2)
	require.NoError(t, transaction.NewManager(client).Transact(func(tx *transaction.Transaction) error {
		return client.arr.Push(tx, strAny("z"))
	}, nil, true))

	serverSession := NewSession(server, nil, false)
	clientSession := NewSession(client, nil, false)

	// Client opens with SyncStep1.
	step1 := clientSession.Step1()

	// Server answers with SyncStep2 (what the client is missing).
	step2FromServer, err := serverSession.Receive(step1)
	require.NoError(t, err)
	require.NotNil(t, step2FromServer)

	// Client applies the server's SyncStep2, then replies with its own
	// SyncStep1 so the server can catch up in turn.
	resp, err := clientSession.Receive(step2FromServer)
	require.NoError(t, err)
	assert.Nil(t, resp)

	serverStep1 := serverSession.Step1()
	step2FromClient, err := clientSession.Receive(serverStep1)
	require.NoError(t, err)
	require.NotNil(t, step2FromClient)

	_, err = serverSession.Receive(step2FromClient)
	require.NoError(t, err)

	assert.ElementsMatch(t, toStrings(server.arr.ToSlice()), toStrings(client.arr.ToSlice()))
}

func TestSession_BroadcastUpdateApplies(t *testing.T) {
	a := newTestPeer(1)
	require.NoError(t, transaction.NewManager(a).Transact(func(tx *transaction.Transaction) error {
		return a.arr.Insert(tx, 0, strAny("x"))
	}, nil, true))

	b := newTestPeer(1)
	sessionB := NewSession(b, nil, false)

	msg := WriteUpdate(update.Encode(a.st, deleteset.New(), false))
	resp, err := sessionB.Receive(msg)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, a.arr.ToSlice(), b.arr.ToSlice())
}

func toStrings(vals []encoding.Any) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String
	}
	return out
}
