package update

import (
	"sort"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

func idAt(client, clock uint32) id.ID { return id.ID{Client: client, Clock: clock} }

// featureFlag is the leading varUint both v1 and v2 messages carry so a
// future format revision can extend the envelope without breaking old
// readers (spec §4.9 "forward-compatible through an initial varUint
// feature flag, currently 0").
const featureFlag = 0

// Update is a decoded structs-plus-delete-set message (spec §4.9): the
// in-memory form produced by Decode and consumed by Apply, Merge,
// DiffUpdate, Convert, and Obfuscate.
type Update struct {
	clients   map[uint32][]*pendingStruct
	DeleteSet *deleteset.Set
}

func newUpdate() *Update {
	return &Update{clients: make(map[uint32][]*pendingStruct), DeleteSet: deleteset.New()}
}

// Encode serializes st's full state (every struct for every client) plus
// ds into a v1 or v2 byte message.
func Encode(st *store.Store, ds *deleteset.Set, v2 bool) []byte {
	return EncodeDiff(st, nil, ds, v2)
}

// EncodeDiff serializes only the structs st holds beyond sv (nil or
// empty sv yields the full state), per client, plus ds. Clients are
// written in descending ID order (spec §4.9 "minimizes heap churn
// during integration").
func EncodeDiff(st *store.Store, sv map[uint32]uint32, ds *deleteset.Set, v2 bool) []byte {
	enc := encoding.NewEncoder()
	enc.WriteUvarint(featureFlag)

	clientIDs := make([]uint32, 0, len(st.Clients()))
	for c, list := range st.Clients() {
		if len(list) > 0 {
			clientIDs = append(clientIDs, c)
		}
	}
	sort.Slice(clientIDs, func(i, j int) bool { return clientIDs[i] > clientIDs[j] })

	type clientRun struct {
		client  uint32
		start   uint32
		structs []store.Struct
	}
	runs := make([]clientRun, 0, len(clientIDs))
	for _, client := range clientIDs {
		from := sv[client]
		if from > 0 {
			// Split any struct straddling the boundary so the diff starts
			// exactly at `from` instead of re-sending an already-known
			// prefix. GC/Skip cannot clean-start; if the boundary lands
			// inside one of those the whole struct is kept as-is, a minor
			// over-send the receiver's own state-vector check discards.
			_, _ = st.GetItemCleanStart(idAt(client, from))
		}
		list := st.Clients()[client]
		var kept []store.Struct
		for _, s := range list {
			if s.ID().Clock+s.Len() <= from {
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			continue
		}
		runs = append(runs, clientRun{client: client, start: kept[0].ID().Clock, structs: kept})
	}

	enc.WriteUvarint(uint64(len(runs)))
	for _, run := range runs {
		enc.WriteUvarint(uint64(len(run.structs)))
		enc.WriteUvarint(uint64(run.client))
		enc.WriteUvarint(uint64(run.start))
		for _, s := range run.structs {
			_ = writeStruct(enc, s)
		}
	}

	if ds == nil {
		ds = deleteset.New()
	}
	ds.Write(enc, v2)
	return enc.Bytes()
}

// Decode parses a v1/v2 message produced by Encode/EncodeDiff into an
// Update ready for Apply, Merge, DiffUpdate, Convert, or Obfuscate.
func Decode(data []byte, v2 bool) (*Update, error) {
	dec := encoding.NewDecoder(data)
	if _, err := dec.ReadUvarint(); err != nil { // feature flag, unused for now
		return nil, err
	}

	u := newUpdate()
	nClients, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nClients; i++ {
		nStructs, err := dec.ReadUvarint()
		if err != nil {
			return nil, err
		}
		client, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		clock, err := dec.ReadUvarint32()
		if err != nil {
			return nil, err
		}
		structs := make([]*pendingStruct, 0, nStructs)
		for j := uint64(0); j < nStructs; j++ {
			s, err := readStruct(dec, client, clock)
			if err != nil {
				return nil, err
			}
			structs = append(structs, s)
			clock += s.length()
		}
		u.clients[client] = structs
	}

	ds, err := deleteset.Read(dec, v2)
	if err != nil {
		return nil, err
	}
	u.DeleteSet = ds
	return u, nil
}

// ClientIDs returns every client this update carries structs for.
func (u *Update) ClientIDs() []uint32 {
	ids := make([]uint32, 0, len(u.clients))
	for c := range u.clients {
		ids = append(ids, c)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Encode re-serializes an already-decoded Update (as produced by Decode,
// Merge, or DiffUpdate) back into a v1/v2 byte message.
func (u *Update) Encode(v2 bool) []byte {
	enc := encoding.NewEncoder()
	enc.WriteUvarint(featureFlag)

	clientIDs := u.ClientIDs()
	sort.Slice(clientIDs, func(i, j int) bool { return clientIDs[i] > clientIDs[j] })

	var nonEmpty []uint32
	for _, c := range clientIDs {
		if len(u.clients[c]) > 0 {
			nonEmpty = append(nonEmpty, c)
		}
	}

	enc.WriteUvarint(uint64(len(nonEmpty)))
	for _, client := range nonEmpty {
		structs := u.clients[client]
		enc.WriteUvarint(uint64(len(structs)))
		enc.WriteUvarint(uint64(client))
		enc.WriteUvarint(uint64(structs[0].id().Clock))
		for _, s := range structs {
			_ = writeStruct(enc, s.asStruct())
		}
	}

	if u.DeleteSet == nil {
		u.DeleteSet = deleteset.New()
	}
	u.DeleteSet.Write(enc, v2)
	return enc.Bytes()
}
