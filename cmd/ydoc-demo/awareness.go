package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opencrdt/ydoc/awareness"
)

// runAwarenessDemo shows two peers exchanging presence state and the
// 30-second-default eviction timer (here shortened for the demo)
// dropping a peer that stops publishing (spec §4.12).
func runAwarenessDemo(log *logrus.Logger) error {
	const timeout = 2 * time.Second

	alice := awareness.New(1, timeout, nil, log)
	bob := awareness.New(2, timeout, nil, log)

	alice.SetLocalState(`{"name":"alice","cursor":0}`)
	bob.SetLocalState(`{"name":"bob","cursor":12}`)

	if _, _, _, err := alice.Apply(bob.Encode()); err != nil {
		return err
	}
	if _, _, _, err := bob.Apply(alice.Encode()); err != nil {
		return err
	}

	printDivider("presence after first exchange")
	printStates("alice's view", alice)
	printStates("bob's view", bob)

	alice.SetLocalState(`{"name":"alice","cursor":5}`)
	if _, updated, _, err := bob.Apply(alice.Encode()); err != nil {
		return err
	} else if len(updated) > 0 {
		fmt.Printf("bob observed client %d move\n", updated[0])
	}

	fmt.Printf("waiting %s for bob's stale view of alice to time out...\n", timeout)
	time.Sleep(timeout + 500*time.Millisecond)

	evicted := bob.CheckTimeouts()
	printDivider("after eviction check")
	fmt.Printf("bob evicted clients: %v\n", evicted)
	printStates("bob's view", bob)
	return nil
}

func printStates(label string, a *awareness.Awareness) {
	fmt.Println(label + ":")
	for client, s := range a.States() {
		fmt.Printf("  client %d: clock=%d state=%s\n", client, s.Clock, s.State)
	}
}
