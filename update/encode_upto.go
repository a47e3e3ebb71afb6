package update

import (
	"sort"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/store"
)

// EncodeUpTo serializes every struct whose ID is strictly below
// upperSV, plus ds — the mirror-opposite cut from EncodeDiff's
// lower-bound "everything the peer is missing" diff. This is how
// document_from_snapshot reconstructs a replica as it stood at a past
// state vector (spec §4.11 step 2: "emit only structs with
// id.clock < clock, splitting the struct at the boundary when
// necessary"). A client absent from upperSV contributed nothing as of
// that snapshot and is skipped entirely rather than sent as an empty
// run.
func EncodeUpTo(st *store.Store, upperSV map[uint32]uint32, ds *deleteset.Set, v2 bool) []byte {
	enc := encoding.NewEncoder()
	enc.WriteUvarint(featureFlag)

	clientIDs := make([]uint32, 0, len(upperSV))
	for client, upto := range upperSV {
		if upto > 0 {
			clientIDs = append(clientIDs, client)
		}
	}
	sort.Slice(clientIDs, func(i, j int) bool { return clientIDs[i] > clientIDs[j] })

	sv := st.StateVector()

	type clientRun struct {
		client  uint32
		structs []store.Struct
	}
	runs := make([]clientRun, 0, len(clientIDs))
	for _, client := range clientIDs {
		upto := upperSV[client]
		if upto < sv[client] {
			// Force a boundary exactly at upto so the last struct sent
			// never extends past it. A GC/Skip straddling the boundary
			// can't clean-start; the error is swallowed and the whole
			// struct is kept, a minor over-send mirroring EncodeDiff's
			// equivalent tolerance at the lower bound.
			_, _ = st.GetItemCleanStart(idAt(client, upto))
		}
		var kept []store.Struct
		for _, s := range st.Clients()[client] {
			if s.ID().Clock >= upto {
				break
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			continue
		}
		runs = append(runs, clientRun{client: client, structs: kept})
	}

	enc.WriteUvarint(uint64(len(runs)))
	for _, run := range runs {
		enc.WriteUvarint(uint64(len(run.structs)))
		enc.WriteUvarint(uint64(run.client))
		enc.WriteUvarint(uint64(run.structs[0].ID().Clock))
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
