package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a node: Unsynced, Syncing, Synced or Shutdown.
type State uint32

const (
	// Unsynced is the state of a node that has not started.
	Unsynced State = iota
	// Syncing is waiting for an authoritative reply to its sync request.
	Syncing
	// Synced has accepted a change, or promoted itself.
	Synced
	// Shutdown is shutdown
	Shutdown
)

func (s State) String() string {
	switch s {
	case Unsynced:
		return "Unsynced"
	case Syncing:
		return "Syncing"
	case Synced:
		return "Synced"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
	wg    sync.WaitGroup
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
