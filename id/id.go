// Package id implements the identifier and per-client clock model described
// in spec.md §3.1 (C1): every unit of content produced by a replica is
// addressed by a (client, clock) pair, where client is a random per-replica
// identifier and clock is dense within that client.
package id

import (
	"fmt"
	"math/rand/v2"
)

// ID uniquely addresses a single unit of content (or the first unit of a
// run) produced by one client. It is comparable and usable as a map key.
type ID struct {
	Client uint32
	Clock  uint32
}

// NewID is a small constructor kept for readability at call sites; it is
// equivalent to the struct literal but matches the teacher's
// NewGCounter/NewPNCounter naming convention for constructors.
func NewID(client, clock uint32) ID {
	return ID{Client: client, Clock: clock}
}

// String renders an ID as "client#clock", used in log fields and error
// messages.
func (i ID) String() string {
	return fmt.Sprintf("%d#%d", i.Client, i.Clock)
}

// Less orders IDs first by client, then by clock. It gives a total order
// usable for deterministic iteration (e.g. delete-set client ordering),
// distinct from the YATA conflict-resolution rule which only compares
// clients when origins tie (see store.integrate).
func (i ID) Less(o ID) bool {
	if i.Client != o.Client {
		return i.Client < o.Client
	}
	return i.Clock < o.Clock
}

// Clock is a per-client monotone allocator: the n-th unit of content a
// client produces occupies clocks [c, c+len) where c is the next free
// clock. It is the direct generalization of the teacher's RGA.clock
// int64 field, widened to be keyed per-client instead of per-replica
// since one Doc's struct store holds many clients' ranges.
type Clock struct {
	next uint32
}

// NewClock creates a clock starting at zero, per spec §3.2 invariant S2
// (a client's first struct begins at clock 0 unless GC'd).
func NewClock() *Clock {
	return &Clock{next: 0}
}

// Next returns the current next-free clock without allocating.
func (c *Clock) Next() uint32 {
	return c.next
}

// Alloc reserves len contiguous clocks starting at the current next-free
// clock and advances the clock past them, returning the ID of the first
// unit allocated.
func (c *Clock) Alloc(client uint32, length uint32) ID {
	start := c.next
	c.next += length
	return ID{Client: client, Clock: start}
}

// Observe advances the clock to at least clock+length, used when
// integrating remote structs so the local notion of "next free clock for
// this client" never regresses below what has been seen.
func (c *Clock) Observe(clock, length uint32) {
	if end := clock + length; end > c.next {
		c.next = end
	}
}

// RandomClient returns a random 32-bit client identifier, matching the
// Yjs convention (Math.random() * UINT32_MAX) referenced by spec §3.1:
// "client is an unsigned 32-bit integer chosen at random on each Doc
// instantiation." Distinct replicas collide with negligible probability.
func RandomClient() uint32 {
	return rand.Uint32()
}
