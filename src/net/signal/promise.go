package signal

import (
	"github.com/pion/webrtc/v2"
)

// OfferPromiseResponse wraps an SDP answer and a potential error.
type OfferPromiseResponse struct {
	Answer *webrtc.SessionDescription
	Error  error
}

// OfferPromise carries an SDP offer, the ID of the peer that made it, and the
// channel on which the answer is expected.
type OfferPromise struct {
	From     string
	Offer    webrtc.SessionDescription
	RespChan chan<- OfferPromiseResponse
}

// Respond is used to respond with an SDP answer, and/or an error.
func (p *OfferPromise) Respond(answer *webrtc.SessionDescription, err error) {
	p.RespChan <- OfferPromiseResponse{answer, err}
}
