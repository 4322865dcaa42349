// Package node implements the synchronizer that keeps a state container in
// step with its peers.
//
// A Node wraps a store and a net.Channel. Local mutations go through Node.Set,
// which applies them to the store and broadcasts the resulting snapshot in a
// change envelope. Inbound envelopes are validated, merged into the store and,
// when gossip is enabled, forwarded unchanged to the node's own peers, so that
// contexts which cannot address each other directly (sibling frames) still
// converge. Every envelope has a unique id; a node processes a given id at most
// once.
//
// Joining
//
// On startup a node broadcasts a sync envelope and moves to the Syncing state.
// The first change it accepts marks it Synced. If nothing arrives within
// MainTimeout the node considers itself alone and promotes itself.
//
// Election
//
// With Election enabled, one node is the leader. The first node to time out
// becomes leader with participant id 0. The leader answers every sync with its
// state, assigns the newcomer the next free id and broadcasts the updated
// roster. When the leader shuts down it hands leadership to the lowest
// surviving id. Without Election, any synced node answers sync requests.
//
// Concurrency
//
// All protocol work runs on a single goroutine. Inbound messages, the main
// timeout and local mutations are serialized through it, and the observer
// callbacks (OnBecomeMain, OnTabsChange, store listeners) are invoked on it.
// Callbacks must therefore not call Node.Set synchronously.
//
// Two nodes timing out at the same time will both become leader. This split
// brain is not resolved.
package node
