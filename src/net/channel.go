package net

import (
	"github.com/mosaicnetworks/tabsync/src/envelope"
)

// WildcardOrigin matches any origin.
const WildcardOrigin = "*"

// Relation describes how a peer is reachable from the local context.
type Relation string

const (
	// Opener is the context that opened the local one.
	Opener Relation = "opener"
	// Popup is a context opened by the local one.
	Popup Relation = "popup"
	// Parent is the context embedding the local one.
	Parent Relation = "parent"
	// Frame is a context embedded in the local one.
	Frame Relation = "frame"
)

// Peer is a context reachable from the local one.
type Peer struct {
	Address   string
	Origin    string
	Relation  Relation
	ElementID string
}

// Target restricts where an envelope is posted. Origins lists the origins the
// sender is willing to post to. FrameIDs, when non-empty, limits the embedded
// frames to the ones with a matching element identifier. It never filters the
// opener, the parent or popups, which are always posted to.
type Target struct {
	Origins  []string
	FrameIDs []string
}

// Message is an inbound message. Data is the raw payload as it came off the
// channel: an *envelope.Envelope for in-memory delivery, a []byte for the
// network channels, or anything a misbehaving peer chose to post.
type Message struct {
	Origin string
	Source string
	Data   interface{}
}

// Handler consumes inbound messages. Handlers are invoked sequentially, on a
// goroutine owned by the channel.
type Handler func(Message)

// Subscription detaches a Handler from its Channel.
type Subscription interface {
	Close() error
}

// Channel is the interface used by a synchronizer to talk to its peers.
type Channel interface {
	// LocalAddr returns the address identifying the local context.
	LocalAddr() string

	// Origin returns the origin of the local context.
	Origin() string

	// Peers returns the distinct peers currently reachable.
	Peers(frameIDs []string) []Peer

	// Send posts the envelope to every reachable peer, once per matching
	// origin. Per-peer failures are aggregated into the returned error; the
	// remaining peers are still attempted.
	Send(env *envelope.Envelope, target Target) error

	// Listen attaches the single inbound handler. A second call fails with an
	// AlreadyListening SyncErr until the first subscription is closed.
	Listen(handler Handler) (Subscription, error)

	// Close releases the channel's resources.
	Close() error
}

// MatchOrigin reports whether origin is accepted by the allow-list.
func MatchOrigin(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == WildcardOrigin || a == origin {
			return true
		}
	}
	return false
}

// matchFrame reports whether a frame with the given element identifier passes
// the frame filter. An empty filter lets every frame through.
func matchFrame(frameIDs []string, elementID string) bool {
	if len(frameIDs) == 0 {
		return true
	}
	for _, id := range frameIDs {
		if id == elementID {
			return true
		}
	}
	return false
}

// postCount returns how many times an envelope is posted to a peer: once per
// allowed origin that matches the peer's origin.
func postCount(origins []string, peerOrigin string) int {
	n := 0
	for _, o := range origins {
		if o == WildcardOrigin || o == peerOrigin {
			n++
		}
	}
	return n
}
