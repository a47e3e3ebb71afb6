// Package sync implements the three-message exchange of spec.md §4.10
// (C10): SyncStep1, SyncStep2, and Update, layered on package update's
// wire codec. The protocol frames nothing beyond its own leading
// discriminator byte; length-prefixing and channel multiplexing are the
// transport's concern, not this package's.
package sync

import (
	"github.com/pkg/errors"

	"github.com/opencrdt/ydoc/encoding"
)

// MessageType is the varUint discriminator every message opens with.
type MessageType uint64

const (
	MessageSyncStep1 MessageType = 0
	MessageSyncStep2 MessageType = 1
	MessageUpdate    MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case MessageSyncStep1:
		return "SyncStep1"
	case MessageSyncStep2:
		return "SyncStep2"
	case MessageUpdate:
		return "Update"
	default:
		return "Unknown"
	}
}

// WriteSyncStep1 encodes a SyncStep1 message announcing sv, the
// sender's current state vector.
func WriteSyncStep1(sv map[uint32]uint32) []byte {
	enc := encoding.NewEncoder()
	enc.WriteUvarint(uint64(MessageSyncStep1))
	writeStateVector(enc, sv)
	return enc.Bytes()
}

// WriteSyncStep2 encodes a SyncStep2 message carrying updateBytes, a
// v1/v2 update payload already produced by package update.
func WriteSyncStep2(updateBytes []byte) []byte {
	return wrapUpdate(MessageSyncStep2, updateBytes)
}

// WriteUpdate encodes an Update (incremental broadcast) message.
func WriteUpdate(updateBytes []byte) []byte {
	return wrapUpdate(MessageUpdate, updateBytes)
}

func wrapUpdate(t MessageType, updateBytes []byte) []byte {
	enc := encoding.NewEncoder()
	enc.WriteUvarint(uint64(t))
	enc.WriteBytes(updateBytes)
	return enc.Bytes()
}

// ReadMessageType peeks the discriminator off the front of data,
// returning it alongside a decoder positioned just past it so the
// caller can read the rest of the payload.
func ReadMessageType(data []byte) (MessageType, *encoding.Decoder, error) {
	dec := encoding.NewDecoder(data)
	raw, err := dec.ReadUvarint()
	if err != nil {
		return 0, nil, err
	}
	t := MessageType(raw)
	switch t {
	case MessageSyncStep1, MessageSyncStep2, MessageUpdate:
		return t, dec, nil
	default:
		return 0, nil, errors.Errorf("sync: unknown message type %d", raw)
	}
}

// ReadStateVector decodes a SyncStep1 payload (spec §4.10: "state
// vector" is varUint(n_clients) of {varUint(client), varUint(clock)}
// pairs, the same map store.Store.StateVector returns).
func ReadStateVector(dec *encoding.Decoder) (map[uint32]uint32, error) {
	n, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}
	sv := make(map[uint32]uint32, n)
	for i := uint64(0); i < n; i++ {
		client, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		clock, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		sv[client] = clock
	}
	return sv, nil
}

// ReadPayload returns the remaining bytes of dec verbatim, i.e. the raw
// update payload of a SyncStep2 or Update message.
func ReadPayload(dec *encoding.Decoder) ([]byte, error) {
	return dec.ReadBytes(dec.Len())
}

func writeStateVector(enc *encoding.Encoder, sv map[uint32]uint32) {
	enc.WriteUvarint(uint64(len(sv)))
	for client, clock := range sv {
		enc.WriteUvarint(uint64(client))
		enc.WriteUvarint(uint64(clock))
	}
}
