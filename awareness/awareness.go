// Package awareness implements the ephemeral presence side-channel of
// spec.md §4.12 (C13): per-client {state, clock, last_updated} entries,
// P9's monotonicity rule, and timeout-based eviction. It is independent
// of the struct store and the document's update history entirely — no
// awareness state is ever written to a Doc's store.
package awareness

import (
	"sync"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// nullState is the wire/JSON spelling of "no presence", used both as the
// sentinel a local RemoveLocalState call writes and as the explicit-removal
// exception P9 carves out of strict clock monotonicity.
const nullState = "null"

// defaultTimeout is how stale a peer's last_updated may get before
// CheckTimeouts evicts it (spec §4.12 "a 30-second check evicts peers").
const defaultTimeout = 30 * time.Second

// ClientState is one peer's current awareness entry.
type ClientState struct {
	Client      uint32
	Clock       uint32
	State       string // raw JSON text; "null" means no presence
	LastUpdated time.Time
}

// Removed reports whether this entry represents explicit removal.
func (c ClientState) Removed() bool { return c.State == nullState }

// Awareness holds one replica's view of every client's presence state,
// including its own. It owns no network transport: Encode/Apply produce
// and consume opaque byte messages the same way package sync does for
// document updates.
type Awareness struct {
	mu          sync.Mutex
	clock       bclock.Clock
	timeout     time.Duration
	log         logrus.FieldLogger
	localClient uint32
	states      map[uint32]*ClientState
}

// New creates an Awareness for localClient. clk is injectable for
// deterministic tests (nil uses the real wall clock); timeout <= 0 uses
// the spec's 30-second default.
func New(localClient uint32, timeout time.Duration, clk bclock.Clock, log logrus.FieldLogger) *Awareness {
	if clk == nil {
		clk = bclock.New()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Awareness{clock: clk, timeout: timeout, log: log, localClient: localClient, states: make(map[uint32]*ClientState)}
}

// SetLocalState publishes a new local presence state, incrementing this
// replica's own clock (spec §4.12 "clock increments on every local state
// write"). An empty json means "no content", distinct from removal;
// pass RemoveLocalState to explicitly withdraw presence.
func (a *Awareness) SetLocalState(json string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bumpLocal(json)
}

// RemoveLocalState withdraws this replica's own presence (spec §4.12's
// "null state" exception), still advancing the local clock so the
// removal itself is ordered.
func (a *Awareness) RemoveLocalState() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bumpLocal(nullState)
}

func (a *Awareness) bumpLocal(state string) {
	cur := a.states[a.localClient]
	clock := uint32(1)
	if cur != nil {
		clock = cur.Clock + 1
	}
	a.states[a.localClient] = &ClientState{
		Client: a.localClient, Clock: clock, State: state, LastUpdated: a.clock.Now(),
	}
}

// LocalState returns this replica's own current entry.
func (a *Awareness) LocalState() *ClientState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states[a.localClient]
}

// States returns a snapshot copy of every known client's entry,
// including the local one.
func (a *Awareness) States() map[uint32]*ClientState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint32]*ClientState, len(a.states))
	for c, s := range a.states {
		cp := *s
		out[c] = &cp
	}
	return out
}

// applyOne enforces P9 (spec §4.12, §8.1): a remote update for client is
// accepted only if its clock exceeds the one already on file, or equals
// it while explicitly withdrawing presence. ok reports whether the
// update was accepted; changed additionally reports whether it altered
// visible state (a higher-clock re-send of identical state, or a repeated
// withdrawal, is accepted as a keep-alive refresh of last_updated but
// isn't a "change"; a non-null state at the clock already on file is
// rejected as a duplicate).
func (a *Awareness) applyOne(client, clock uint32, state string) (ok, changed, wasAdded, wasRemoved bool) {
	cur, known := a.states[client]
	localClock := uint32(0)
	if known {
		localClock = cur.Clock
	}
	if clock < localClock {
		return false, false, false, false
	}
	if clock == localClock && known && state != nullState {
		return false, false, false, false
	}

	now := a.clock.Now()
	wasRemovedBefore := known && cur.Removed()
	a.states[client] = &ClientState{Client: client, Clock: clock, State: state, LastUpdated: now}

	if !known {
		return true, true, state != nullState, false
	}
	if state == nullState && !wasRemovedBefore {
		return true, true, false, true
	}
	return true, cur.State != state, false, false
}
