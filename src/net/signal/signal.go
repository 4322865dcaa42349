// Package signal defines how WebRTC peers exchange SDP offers and answers
// before a DataChannel can carry envelopes between them.
package signal

import "github.com/pion/webrtc/v2"

// Signal defines an interface for systems to exchange SDP offers and answers
// to establish WebRTC PeerConnections
type Signal interface {
	// ID returns the address identifying this end of a connection
	ID() string

	// Listen is called to listen for incoming SDP offers, and forward them to
	// the Consumer channel
	Listen() error

	// Consumer is the channel through which incoming SDP offers are passed to
	// the WebRTCStreamLayer, wrapped in promises.
	Consumer() <-chan OfferPromise

	// Offer sends an SDP offer and waits for an answer
	Offer(target string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)

	// Close stops listening and disconnects from the signaling system
	Close() error
}
