// Package envelope defines the messages exchanged between tabsync contexts.
//
// An Envelope is tagged by its Action. Every Envelope carries a globally
// unique ID, used by receivers to deduplicate retransmissions, and the
// SourceID of the context that created it, used to suppress echoes. The Name
// discriminates logical channels that share the same transport.
//
// Inbound payloads are never trusted: Decode is the only way to turn a raw
// transport payload into an Envelope, and it returns a Rejection explaining
// why a payload was refused.
package envelope
