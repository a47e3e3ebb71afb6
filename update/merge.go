package update

import (
	"sort"

	"github.com/opencrdt/ydoc/deleteset"
	"github.com/opencrdt/ydoc/id"
	"github.com/opencrdt/ydoc/store"
)

// Merge combines several independently-produced updates into one
// equivalent to applying every input in order (spec §4.9 "merge([u1, u2,
// …])", intended for offline-friendly batching). Per client, the inputs'
// structs are walked in clock order; an incoming struct that lands
// entirely inside the already-covered range is dropped, one that overlaps
// partway is trimmed to its non-overlapping tail (see trimFront), and a
// strict gap between coverage and the next struct is bridged with a
// synthesized Skip, mirroring what a live integration pass would record
// as "I know I'm missing this span."
func Merge(updates ...*Update) *Update {
	out := newUpdate()

	allClients := map[uint32]bool{}
	for _, u := range updates {
		for _, c := range u.ClientIDs() {
			allClients[c] = true
		}
	}

	for client := range allClients {
		var entries []*pendingStruct
		for _, u := range updates {
			entries = append(entries, u.clients[client]...)
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].id().Clock < entries[j].id().Clock })

		var merged []*pendingStruct
		var cursor uint32
		started := false
		for _, s := range entries {
			start := s.id().Clock
			end := start + s.length()
			if started {
				if end <= cursor {
					continue // fully covered already
				}
				if start < cursor {
					trimmed, ok := trimFront(s, cursor-start)
					if !ok {
						continue // cannot slice a non-splittable overlap; drop the remainder
					}
					s = trimmed
					start = s.id().Clock
				} else if start > cursor {
					merged = append(merged, skipBridge(client, cursor, start-cursor))
				}
			}
			merged = append(merged, s)
			cursor = end
			started = true
		}
		out.clients[client] = merged
	}

	ds := make([]*deleteset.Set, 0, len(updates))
	for _, u := range updates {
		ds = append(ds, u.DeleteSet)
	}
	out.DeleteSet = deleteset.Merge(ds...)
	return out
}

func skipBridge(client, from, length uint32) *pendingStruct {
	return &pendingStruct{kind: kindSkip, skip: store.NewSkip(id.ID{Client: client, Clock: from}, length)}
}
