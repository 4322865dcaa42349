// Package wamp implements a WebRTC signaling system using RPC over WebSockets.
//
// The Server hosts a WAMP router that relays RPC requests between connected
// clients. The Client implements the Signal interface and can be used to build
// a WebRTC channel. The same router also carries the publications of WAMP
// channels, so a single `tabsync router` process serves both.
//
// When the server is given a certificate and key it listens for secure
// WebSockets; clients then trust either the certificate passed to them, the
// platform's trusted roots, or anything at all when insecureSkipVerify is set
// (testing only).
package wamp

const (
	// ErrProcessingOffer indicates that the client who received the offer ran
	// into an error while processing it.
	ErrProcessingOffer = "io.tabsync.processing_offer"
)
