package awareness

import (
	"sort"

	"github.com/opencrdt/ydoc/encoding"
)

// Encode serializes every known client's current entry, local included,
// as varUint(n) followed by n {varUint(client), varUint(clock),
// varString(json-state)} triples (spec §4.12).
func (a *Awareness) Encode() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	clients := make([]uint32, 0, len(a.states))
	for c := range a.states {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })

	enc := encoding.NewEncoder()
	enc.WriteUvarint(uint64(len(clients)))
	for _, c := range clients {
		s := a.states[c]
		enc.WriteUvarint(uint64(s.Client))
		enc.WriteUvarint(uint64(s.Clock))
		enc.WriteString(s.State)
	}
	return enc.Bytes()
}

// Apply decodes data and applies every entry through P9's monotonicity
// check, returning which client IDs were newly seen, which had their
// visible state change, and which were explicitly removed.
func (a *Awareness) Apply(data []byte) (added, updated, removed []uint32, err error) {
	dec := encoding.NewDecoder(data)
	n, err := dec.ReadUvarint()
	if err != nil {
		return nil, nil, nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := uint64(0); i < n; i++ {
		client, err := dec.ReadUvarint32()
		if err != nil {
			return added, updated, removed, err
		}
		clock, err := dec.ReadUvarint32()
		if err != nil {
			return added, updated, removed, err
		}
		state, err := dec.ReadString()
		if err != nil {
			return added, updated, removed, err
		}

		ok, changed, wasAdded, wasRemoved := a.applyOne(client, clock, state)
		if !ok || !changed {
			continue
		}
		switch {
		case wasAdded:
			added = append(added, client)
		case wasRemoved:
			removed = append(removed, client)
		default:
			updated = append(updated, client)
		}
	}
	return added, updated, removed, nil
}

// CheckTimeouts evicts every non-local entry whose last_updated is older
// than the configured timeout (spec §4.12 "a 30-second check evicts
// peers whose last_updated is older than the timeout"), returning the
// evicted client IDs. The caller is responsible for scheduling calls to
// this method; Awareness runs no internal timers or goroutines (spec §5:
// single-threaded cooperative, no suspension points).
func (a *Awareness) CheckTimeouts() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	var evicted []uint32
	for client, s := range a.states {
		if client == a.localClient {
			continue
		}
		if now.Sub(s.LastUpdated) > a.timeout {
			delete(a.states, client)
			evicted = append(evicted, client)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })
	return evicted
}
