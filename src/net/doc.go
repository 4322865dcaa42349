// Package net implements the channels through which tabsync contexts exchange
// envelopes.
//
// A Channel is the only thing a synchronizer knows about the outside world. It
// discovers the peers reachable from the local context, posts envelopes to
// them, and delivers inbound messages, tagged with the sender's origin, to a
// single listener. Delivery is best-effort and asynchronous: messages may be
// lost, duplicated or reordered across senders, but messages from one sender
// to one receiver arrive in the order they were posted.
//
// There are three implementations:
//
// - Inmem: a simulated host of browsing contexts (windows, popups and
// embedded frames) with postMessage semantics. It is used by the tests and by
// the demo command.
//
// - WAMP: contexts publish to each other's topics on a WAMP router. Each
// context is configured with the addresses and origins of its opener, its
// parent and its embedded frames.
//
// - Stream: envelopes are framed over a StreamLayer, either plain TCP or a
// WebRTC DataChannel negotiated through the WAMP signaling server in the
// signal/wamp package.
//
// Origins
//
// Every context has an origin string. A sender lists the origins it is willing
// to post to; the wildcard "*" matches any origin. A peer whose origin is not
// listed is skipped and reported in the aggregated send error. Receivers apply
// their own allow-list to the origin attached to each inbound Message.
package net
