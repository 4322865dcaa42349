// Package journal records the envelopes a node sends, accepts and rejects.
//
// A journal is a debugging aid, not a persistence layer: the badger journal
// wipes its directory when it is opened, and the in-memory journal only keeps
// the most recent entries. Entries are numbered from 1 in the order they were
// recorded.
package journal
