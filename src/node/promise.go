package node

import (
	"github.com/mosaicnetworks/tabsync/src/store"
)

// Promise lets a caller wait for the event loop to process a request.
type Promise struct {
	// Buffered so that the loop never blocks on a caller that gave up.
	RespCh chan error
}

// NewPromise creates a Promise.
func NewPromise() *Promise {
	return &Promise{
		RespCh: make(chan error, 1),
	}
}

// Respond resolves the promise.
func (p *Promise) Respond(err error) {
	p.RespCh <- err
}

// SetPromise carries a local mutation to the event loop.
type SetPromise struct {
	*Promise
	Updater store.Updater
}

// NewSetPromise creates a SetPromise for the given updater.
func NewSetPromise(u store.Updater) *SetPromise {
	return &SetPromise{
		Promise: NewPromise(),
		Updater: u,
	}
}
