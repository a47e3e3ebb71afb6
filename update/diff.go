package update

// DiffUpdate rewrites a raw v1/v2 message to keep only the portion beyond
// sv: per client, structs entirely covered by sv[client] are dropped and
// one straddling the boundary is trimmed at it (spec §4.9 "diff_update").
func DiffUpdate(data []byte, sv map[uint32]uint32, v2 bool) ([]byte, error) {
	u, err := Decode(data, v2)
	if err != nil {
		return nil, err
	}
	return DiffDecoded(u, sv).Encode(v2), nil
}

// DiffDecoded is DiffUpdate's in-memory counterpart, operating on an
// Update already produced by Decode/Merge rather than raw bytes.
func DiffDecoded(u *Update, sv map[uint32]uint32) *Update {
	out := newUpdate()
	for _, client := range u.ClientIDs() {
		from := sv[client]
		var kept []*pendingStruct
		for _, s := range u.clients[client] {
			start := s.id().Clock
			end := start + s.length()
			if end <= from {
				continue
			}
			if start < from {
				trimmed, ok := trimFront(s, from-start)
				if !ok {
					continue
				}
				s = trimmed
			}
			kept = append(kept, s)
		}
		if len(kept) > 0 {
			out.clients[client] = kept
		}
	}
	out.DeleteSet = u.DeleteSet
	return out
}
