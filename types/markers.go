package types

import "github.com/opencrdt/ydoc/store"

// markerRingSize bounds the ring spec §4.7 describes: "a bounded ring of
// (Item*, index, timestamp) triples attached to sequence/text types."
const markerRingSize = 8

// marker is one (item, index, timestamp) triple: item is the countable
// item whose first code unit sits at index within the type's visible
// sequence, as of the marker's last refresh.
type marker struct {
	item      *store.Item
	index     int
	timestamp int
}

// markerRing is a fixed-capacity, least-recently-used set of markers.
// Index-based operations probe the nearest marker first (findClosest);
// hits refresh the timestamp; misses create a new marker while the ring
// has room, or overwrite the least-recently-used entry once full (spec
// §4.7 "Search markers").
type markerRing struct {
	entries []marker
	clock   int
}

func newMarkerRing() *markerRing { return &markerRing{} }

// findClosest returns the marker nearest to index (by absolute distance)
// without mutating the ring, or nil if the ring is empty.
func (r *markerRing) findClosest(index int) *marker {
	if len(r.entries) == 0 {
		return nil
	}
	best := 0
	bestDist := abs(r.entries[0].index - index)
	for i := 1; i < len(r.entries); i++ {
		if d := abs(r.entries[i].index - index); d < bestDist {
			best, bestDist = i, d
		}
	}
	return &r.entries[best]
}

// refresh bumps m's timestamp to the current logical clock, marking it
// most-recently-used.
func (r *markerRing) refresh(m *marker) {
	r.clock++
	m.timestamp = r.clock
}

// put records a new (item, index) marker, reusing the least-recently-used
// slot once the ring is at capacity.
func (r *markerRing) put(item *store.Item, index int) {
	r.clock++
	if len(r.entries) < markerRingSize {
		r.entries = append(r.entries, marker{item: item, index: index, timestamp: r.clock})
		return
	}
	lru := 0
	for i := 1; i < len(r.entries); i++ {
		if r.entries[i].timestamp < r.entries[lru].timestamp {
			lru = i
		}
	}
	r.entries[lru] = marker{item: item, index: index, timestamp: r.clock}
}

// invalidateFrom drops (or would-shift) every marker at or past index,
// since an insertion/deletion there invalidates its recorded position
// (spec §4.7 "Markers must be invalidated or shifted on every insertion/
// deletion that crosses them"). Conservative invalidation — rather than
// tracking exact shift deltas per marker — keeps this correct without
// coupling it to every caller's edit shape.
func (r *markerRing) invalidateFrom(index int) {
	kept := r.entries[:0]
	for _, m := range r.entries {
		if m.index < index {
			kept = append(kept, m)
		}
	}
	r.entries = kept
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
