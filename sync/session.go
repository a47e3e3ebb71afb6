package sync

import (
	"github.com/sirupsen/logrus"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
	"github.com/opencrdt/ydoc/update"
)

// Peer is the minimal surface a Session needs from a document replica:
// its struct store and clock for producing/consuming updates, and a
// resolver for turning a root-type name into the concrete Parent an
// incoming Item's parent reference names.
type Peer interface {
	Store() *store.Store
	Clock() *id.Clock
	ResolveRoot(name string) (store.Parent, error)
}

// Session drives one side of the handshake spec §4.10 describes,
// against an opaque byte channel the caller owns (Read/Write calls are
// the caller's responsibility; Session only produces and consumes
// message bytes).
type Session struct {
	peer    Peer
	applier *update.Applier
	v2      bool
}

// NewSession wires a Session to peer. v2 selects the update layout:
// SyncStep2 responses are encoded in it, and incoming SyncStep2/Update
// payloads are decoded as it.
func NewSession(peer Peer, log logrus.FieldLogger, v2 bool) *Session {
	return &Session{peer: peer, applier: update.NewApplier(log), v2: v2}
}

// Step1 produces the opening SyncStep1 message announcing the peer's
// current state vector.
func (s *Session) Step1() []byte {
	return WriteSyncStep1(s.peer.Store().StateVector())
}

// Receive dispatches an incoming message. For SyncStep1 it returns a
// SyncStep2 response to send back; for SyncStep2/Update it applies the
// carried update and returns nil. Per spec's client/server profile, the
// caller decides separately whether to also open with its own SyncStep1.
func (s *Session) Receive(msg []byte) (response []byte, err error) {
	t, dec, err := ReadMessageType(msg)
	if err != nil {
		return nil, err
	}
	switch t {
	case MessageSyncStep1:
		sv, err := ReadStateVector(dec)
		if err != nil {
			return nil, err
		}
		diff := update.EncodeDiff(s.peer.Store(), sv, deleteset.FromStore(s.peer.Store()), s.v2)
		return WriteSyncStep2(diff), nil
	case MessageSyncStep2, MessageUpdate:
		payload, err := ReadPayload(dec)
		if err != nil {
			return nil, err
		}
		if err := s.applier.Apply(s.peer.Store(), s.peer.Clock(), payload, s.v2, s.peer.ResolveRoot); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, nil
	}
}

// HasPending reports whether the session's applier is still holding
// structs or delete ranges back for a dependency it hasn't seen yet.
func (s *Session) HasPending() bool { return s.applier.HasPending() }
