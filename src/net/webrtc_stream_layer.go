package net

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mosaicnetworks/tabsync/src/net/signal"
	"github.com/pion/datachannel"
	webrtc "github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
)

var errStreamClosed = errors.New("webrtc stream layer closed")

// DefaultICEServers is used when no ICE servers are configured.
var DefaultICEServers = []webrtc.ICEServer{
	{
		URLs: []string{"stun:stun.l.google.com:19302"},
	},
}

// WebRTCStreamLayer implements the StreamLayer interface for WebRTC
type WebRTCStreamLayer struct {
	sync.Mutex
	peerConnections        map[string]*webrtc.PeerConnection
	dataChannels           []datachannel.ReadWriteCloser
	signal                 signal.Signal
	iceServers             []webrtc.ICEServer
	incomingConnAggregator chan net.Conn
	shutdownCh             chan struct{}
	shutdownOnce           sync.Once
	logger                 *logrus.Entry
}

// NewWebRTCStreamLayer instantiates a new WebRTCStreamLayer. Call listen to
// start answering offers.
func NewWebRTCStreamLayer(signal signal.Signal, iceServers []webrtc.ICEServer, logger *logrus.Entry) *WebRTCStreamLayer {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}
	return &WebRTCStreamLayer{
		peerConnections:        make(map[string]*webrtc.PeerConnection),
		signal:                 signal,
		iceServers:             iceServers,
		incomingConnAggregator: make(chan net.Conn),
		shutdownCh:             make(chan struct{}),
		logger:                 logger,
	}
}

// listen receives SDP offers from the Signal, creates the corresponding
// PeerConnections and responds. The PeerConnection's DataChannel is piped into
// the connection aggregator.
func (w *WebRTCStreamLayer) listen() {
	go func() {
		if err := w.signal.Listen(); err != nil {
			w.logger.WithError(err).Error("Signal listener failed")
		}
	}()

	consumer := w.signal.Consumer()

	for {
		select {
		case offerPromise := <-consumer:
			w.logger.WithField("from", offerPromise.From).Debug("Processing offer")

			answer, err := w.answer(offerPromise)
			if err != nil {
				w.logger.WithError(err).Error("Failed to answer offer")
			}
			offerPromise.Respond(answer, err)
		case <-w.shutdownCh:
			return
		}
	}
}

func (w *WebRTCStreamLayer) answer(offerPromise signal.OfferPromise) (*webrtc.SessionDescription, error) {
	peerConnection, err := w.newPeerConnection(w.incomingConnAggregator, false)
	if err != nil {
		return nil, err
	}

	if err := peerConnection.SetRemoteDescription(offerPromise.Offer); err != nil {
		return nil, err
	}

	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	// Sets the LocalDescription, and starts our UDP listeners
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		return nil, err
	}

	w.Lock()
	w.peerConnections[offerPromise.From] = peerConnection
	w.Unlock()

	return &answer, nil
}

// newPeerConnection creates a PeerConnection and pipes corresponding
// DataChannel connections into the provided channel. Set createDataChannel
// when making the offer; the answering side binds to OnDataChannel instead.
func (w *WebRTCStreamLayer) newPeerConnection(connCh chan net.Conn, createDataChannel bool) (*webrtc.PeerConnection, error) {
	s := webrtc.SettingEngine{}
	s.DetachDataChannels()

	api := webrtc.NewAPI(webrtc.WithSettingEngine(s))

	config := webrtc.Configuration{
		ICEServers: w.iceServers,
	}

	peerConnection, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	peerConnection.OnICEConnectionStateChange(func(connectionState webrtc.ICEConnectionState) {
		w.logger.WithField("state", connectionState.String()).Debug("ICE Connection State has changed")
	})

	if createDataChannel {
		dataChannel, err := peerConnection.CreateDataChannel("envelopes", nil)
		if err != nil {
			return nil, err
		}
		w.pipeDataChannel(dataChannel, connCh)
	} else {
		peerConnection.OnDataChannel(func(d *webrtc.DataChannel) {
			w.pipeDataChannel(d, connCh)
		})
	}

	return peerConnection, nil
}

func (w *WebRTCStreamLayer) pipeDataChannel(dataChannel *webrtc.DataChannel, connCh chan net.Conn) {
	dataChannel.OnOpen(func() {
		raw, err := dataChannel.Detach()
		if err != nil {
			w.logger.WithError(err).Error("Error detaching DataChannel")
			return
		}

		w.Lock()
		w.dataChannels = append(w.dataChannels, raw)
		w.Unlock()

		select {
		case connCh <- webrtcConn{raw}:
		case <-w.shutdownCh:
			raw.Close()
		}
	})
}

// Dial implements the StreamLayer interface. It creates a PeerConnection,
// exchanges SDP through the Signal, and returns a net.Conn wrapping the
// detached DataChannel once it opens.
func (w *WebRTCStreamLayer) Dial(target string, timeout time.Duration) (net.Conn, error) {
	// The DataChannel's OnOpen callback fires asynchronously.
	connCh := make(chan net.Conn, 1)

	pc, err := w.newPeerConnection(connCh, true)
	if err != nil {
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}

	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}

	answer, err := w.signal.Offer(target, offer)
	if err != nil {
		return nil, err
	}

	if answer == nil {
		return nil, fmt.Errorf("no answer from %s", target)
	}

	if err := pc.SetRemoteDescription(*answer); err != nil {
		return nil, err
	}

	w.Lock()
	w.peerConnections[target] = pc
	w.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, fmt.Errorf("dial %s timed out", target)
	case conn := <-connCh:
		return conn, nil
	case <-w.shutdownCh:
		return nil, errStreamClosed
	}
}

// Accept implements the net.Listener interface. It aggregates the connections
// from all DataChannels formed with PeerConnections.
func (w *WebRTCStreamLayer) Accept() (net.Conn, error) {
	select {
	case conn := <-w.incomingConnAggregator:
		return conn, nil
	case <-w.shutdownCh:
		return nil, errStreamClosed
	}
}

// Close implements the net.Listener interface. It closes the Signal and all the
// PeerConnections
func (w *WebRTCStreamLayer) Close() error {
	w.shutdownOnce.Do(func() { close(w.shutdownCh) })

	w.signal.Close()

	w.Lock()
	defer w.Unlock()

	for _, pc := range w.peerConnections {
		pc.Close()
	}
	for _, dc := range w.dataChannels {
		dc.Close()
	}
	return nil
}

// Addr implements the net.Listener interface
func (w *WebRTCStreamLayer) Addr() net.Addr {
	return nil
}

// AdvertiseAddr implements the StreamLayer interface
func (w *WebRTCStreamLayer) AdvertiseAddr() string {
	return w.signal.ID()
}

// NewWebRTCChannel returns a StreamChannel built on top of a WebRTC stream
// layer. The signal is a mechanism for peers to exchange connection
// information prior to establishing a direct p2p link.
func NewWebRTCChannel(
	signal signal.Signal,
	iceServers []webrtc.ICEServer,
	origin string,
	peers []Peer,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *StreamChannel {
	stream := NewWebRTCStreamLayer(signal, iceServers, logger)

	go stream.listen()

	return NewStreamChannel(stream, origin, peers, maxPool, timeout, logger)
}

// webrtcConn implements net.Conn around a detached DataChannel. DataChannels
// have no addresses or deadlines, so those methods are stubs.
type webrtcConn struct {
	datachannel.ReadWriteCloser
}

func (webrtcConn) LocalAddr() net.Addr                { return nil }
func (webrtcConn) RemoteAddr() net.Addr               { return nil }
func (webrtcConn) SetDeadline(t time.Time) error      { return nil }
func (webrtcConn) SetReadDeadline(t time.Time) error  { return nil }
func (webrtcConn) SetWriteDeadline(t time.Time) error { return nil }
