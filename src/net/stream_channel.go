package net

import (
	"bufio"
	"encoding/json"
	"io"
	"math"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	// we need this high buffer size for compatibility with WebRTC
	bufSize = math.MaxUint16
)

// wireFrame is what travels over a stream for every posted envelope. The
// origin is declared by the sender.
type wireFrame struct {
	Origin   string          `json:"origin"`
	Source   string          `json:"source"`
	Envelope json.RawMessage `json:"envelope"`
}

/*
StreamChannel is a Channel built on top of a StreamLayer, which can be plain
TCP or a WebRTC DataChannel.

Each envelope travels as a JSON object carrying the sender's origin and address
and the encoded envelope. Successive frames are simply concatenated on the
stream.
Frames are one-way: nothing is written back on the connection. Outbound
connections are pooled per peer.
*/
type StreamChannel struct {
	logger *logrus.Entry

	origin string

	peersLock sync.RWMutex
	peers     []Peer

	connPool     map[string][]*streamConn
	connPoolLock sync.Mutex
	maxPool      int

	listener  listener
	consumeCh chan Message

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

type streamConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	enc    *json.Encoder
}

// Release closes the underlying connection
func (s *streamConn) Release() error {
	return s.conn.Close()
}

// NewStreamChannel creates a channel over the given stream layer and starts
// accepting inbound connections. The maxPool controls how many connections we
// will pool per peer. The timeout is used to dial and to apply write
// deadlines.
func NewStreamChannel(
	stream StreamLayer,
	origin string,
	peers []Peer,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *StreamChannel {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	ch := &StreamChannel{
		logger:     logger,
		origin:     origin,
		peers:      peers,
		connPool:   make(map[string][]*streamConn),
		maxPool:    maxPool,
		listener:   listener{component: "StreamChannel"},
		consumeCh:  make(chan Message, DefaultInboxSize),
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}

	go ch.accept()
	go ch.deliver()

	return ch
}

// LocalAddr implements the Channel interface. It returns the address other
// peers dial to reach us.
func (s *StreamChannel) LocalAddr() string {
	return s.stream.AdvertiseAddr()
}

// Origin implements the Channel interface.
func (s *StreamChannel) Origin() string {
	return s.origin
}

// SetPeers replaces the configured peers.
func (s *StreamChannel) SetPeers(peers []Peer) {
	s.peersLock.Lock()
	defer s.peersLock.Unlock()
	s.peers = append([]Peer(nil), peers...)
}

// Peers implements the Channel interface.
func (s *StreamChannel) Peers(frameIDs []string) []Peer {
	s.peersLock.RLock()
	defer s.peersLock.RUnlock()

	seen := mapset.NewSet()
	res := []Peer{}
	for _, p := range s.peers {
		if p.Relation == Frame && !matchFrame(frameIDs, p.ElementID) {
			continue
		}
		if p.Address == s.LocalAddr() || !seen.Add(p.Address) {
			continue
		}
		res = append(res, p)
	}
	return res
}

// IsShutdown is used to check if the channel is shutdown.
func (s *StreamChannel) IsShutdown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// Close is used to stop the channel.
func (s *StreamChannel) Close() error {
	s.shutdownLock.Lock()
	defer s.shutdownLock.Unlock()

	if !s.shutdown {
		close(s.shutdownCh)
		s.stream.Close()
		s.listener.detach()

		s.connPoolLock.Lock()
		for _, conns := range s.connPool {
			for _, c := range conns {
				c.Release()
			}
		}
		s.connPool = make(map[string][]*streamConn)
		s.connPoolLock.Unlock()

		s.shutdown = true
	}
	return nil
}

// Send implements the Channel interface.
func (s *StreamChannel) Send(env *envelope.Envelope, target Target) error {
	if s.IsShutdown() {
		return common.NewSyncErr("StreamChannel", common.ChannelClosed, s.LocalAddr())
	}

	raw, err := env.Marshal()
	if err != nil {
		return err
	}

	frame := &wireFrame{
		Origin:   s.origin,
		Source:   s.LocalAddr(),
		Envelope: raw,
	}

	var errs error
	for _, p := range s.Peers(target.FrameIDs) {
		n := postCount(target.Origins, p.Origin)
		if n == 0 {
			errs = multierr.Append(errs, errors.Errorf("no allowed origin matches %s (%s)", p.Origin, p.Address))
			continue
		}
		for i := 0; i < n; i++ {
			if err := s.sendFrame(p.Address, frame); err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "sending to %s", p.Address))
			}
		}
	}
	return errs
}

// Listen implements the Channel interface.
func (s *StreamChannel) Listen(handler Handler) (Subscription, error) {
	return s.listener.attach(handler)
}

func (s *StreamChannel) sendFrame(target string, frame *wireFrame) error {
	conn, err := s.getConn(target)
	if err != nil {
		return err
	}

	if s.timeout > 0 {
		conn.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}

	if err := writeFrame(conn, frame); err != nil {
		return err
	}

	s.returnConn(conn)
	return nil
}

// writeFrame encodes and flushes a single frame. The connection is released on
// failure.
func writeFrame(conn *streamConn, frame *wireFrame) error {
	if err := conn.enc.Encode(frame); err != nil {
		conn.Release()
		return err
	}

	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// getPooledConn is used to grab a pooled connection.
func (s *StreamChannel) getPooledConn(target string) *streamConn {
	s.connPoolLock.Lock()
	defer s.connPoolLock.Unlock()

	conns, ok := s.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *streamConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	s.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (s *StreamChannel) getConn(target string) (*streamConn, error) {
	if conn := s.getPooledConn(target); conn != nil {
		return conn, nil
	}

	conn, err := s.stream.Dial(target, s.timeout)
	if err != nil {
		return nil, err
	}

	sc := &streamConn{
		target: target,
		conn:   conn,
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	sc.enc = json.NewEncoder(sc.w)

	return sc, nil
}

// returnConn returns a connection back to the pool.
func (s *StreamChannel) returnConn(conn *streamConn) {
	s.connPoolLock.Lock()
	defer s.connPoolLock.Unlock()

	key := conn.target
	conns := s.connPool[key]

	if !s.IsShutdown() && len(conns) < s.maxPool {
		s.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// accept opens the stream and handles incoming connections.
func (s *StreamChannel) accept() {
	for {
		conn, err := s.stream.Accept()
		if err != nil {
			if s.IsShutdown() {
				return
			}
			s.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"local": conn.LocalAddr(),
			"from":  conn.RemoteAddr(),
		}).Debug("accepted connection")

		go s.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (s *StreamChannel) handleConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(bufio.NewReaderSize(conn, bufSize))

	for {
		if err := s.handleFrame(dec); err != nil {
			if err != io.EOF && !s.IsShutdown() {
				s.logger.WithField("error", err).Error("Failed to decode incoming frame")
			}
			return
		}
	}
}

// handleFrame decodes a single frame and queues it for delivery.
func (s *StreamChannel) handleFrame(dec *json.Decoder) error {
	var frame wireFrame
	if err := dec.Decode(&frame); err != nil {
		return err
	}

	msg := Message{
		Origin: frame.Origin,
		Source: frame.Source,
		Data:   []byte(frame.Envelope),
	}

	select {
	case s.consumeCh <- msg:
	case <-s.shutdownCh:
		return common.NewSyncErr("StreamChannel", common.ChannelClosed, s.LocalAddr())
	}
	return nil
}

// deliver hands queued messages to the listener one at a time.
func (s *StreamChannel) deliver() {
	for {
		select {
		case m := <-s.consumeCh:
			if !s.listener.dispatch(m) {
				s.logger.WithField("from", m.Source).Debug("No listener, dropping message")
			}
		case <-s.shutdownCh:
			return
		}
	}
}
