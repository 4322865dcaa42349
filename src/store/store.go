// Package store provides the local state container that a tabsync node
// replicates. The container knows nothing about replication; the node wraps
// its mutator.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"runtime"
	"sort"
	"sync"
)

// State is a structured, JSON-compatible snapshot.
type State map[string]interface{}

// Creator builds the initial State of a Store.
type Creator func() State

// Updater computes the next State from the current one.
type Updater func(State) State

// Listener is notified after every mutation with the new and previous states.
type Listener func(state, prev State)

// Container is the contract a node needs from a state container.
type Container interface {
	Get() State
	Set(Updater)
}

// Store is an in-memory Container with change listeners.
type Store struct {
	sync.RWMutex

	creator   Creator
	state     State
	listeners map[int]Listener
	nextID    int
}

// New creates a Store initialised by creator. A nil creator produces an empty
// Store.
func New(creator Creator) *Store {
	s := &Store{
		creator:   creator,
		listeners: make(map[int]Listener),
	}
	if creator != nil {
		s.state = creator()
	}
	return s
}

// Get returns a shallow copy of the current State.
func (s *Store) Get() State {
	s.RLock()
	defer s.RUnlock()
	return s.state.copy()
}

// Set replaces the State with the result of u. Listeners are called after the
// lock is released, in registration order.
func (s *Store) Set(u Updater) {
	s.Lock()
	prev := s.state
	next := u(prev.copy())
	s.state = next

	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.Unlock()

	for _, l := range listeners {
		l(next.copy(), prev.copy())
	}
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.Unlock()

	return func() {
		s.Lock()
		delete(s.listeners, id)
		s.Unlock()
	}
}

// Name returns the channel name derived from the Store's creator.
func (s *Store) Name() string {
	return NameOf(s.creator)
}

// Assign returns an Updater that overwrites the top-level fields of the State
// with those of partial.
func Assign(partial State) Updater {
	return func(st State) State {
		res := st.copy()
		if res == nil {
			res = State{}
		}
		for k, v := range partial {
			res[k] = v
		}
		return res
	}
}

// Replace returns an Updater that discards the current State.
func Replace(st State) Updater {
	return func(State) State {
		return st.copy()
	}
}

// NameOf derives a stable channel name from a creator function, so that two
// stores built from different creators never share a channel by accident.
func NameOf(creator Creator) string {
	if creator == nil {
		return "anonymous"
	}

	fn := runtime.FuncForPC(reflect.ValueOf(creator).Pointer())
	if fn == nil {
		return "anonymous"
	}

	sum := sha256.Sum256([]byte(fn.Name()))
	return hex.EncodeToString(sum[:8])
}

func (st State) copy() State {
	if st == nil {
		return nil
	}
	res := make(State, len(st))
	for k, v := range st {
		res[k] = v
	}
	return res
}
