package net

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// TCPStreamLayer implements StreamLayer interface for plain TCP.
type TCPStreamLayer struct {
	advertise string
	listener  *net.TCPListener
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

// Accept implements the net.Listener interface.
func (t *TCPStreamLayer) Accept() (c net.Conn, err error) {
	return t.listener.Accept()
}

// Close implements the net.Listener interface.
func (t *TCPStreamLayer) Close() (err error) {
	return t.listener.Close()
}

// Addr implements the net.Listener interface.
func (t *TCPStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr implements the StreamLayer interface.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	if t.advertise != "" {
		return t.advertise
	}
	return t.listener.Addr().String()
}

// NewTCPStreamLayer binds a TCP listener. The advertised address defaults to
// the bound one and must not be unspecified (0.0.0.0 or ::).
func NewTCPStreamLayer(bindAddr, advertiseAddr string) (*TCPStreamLayer, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	var resolvedAdvertise net.Addr
	if advertiseAddr != "" {
		resolvedAdvertise, err = net.ResolveTCPAddr("tcp", advertiseAddr)
		if err != nil {
			list.Close()
			return nil, err
		}
	}

	if resolvedAdvertise == nil {
		resolvedAdvertise = list.Addr()
	}

	addr, ok := resolvedAdvertise.(*net.TCPAddr)
	if !ok {
		list.Close()
		return nil, errNotTCP
	}
	if addr.IP.IsUnspecified() {
		list.Close()
		return nil, errNotAdvertisable
	}

	return &TCPStreamLayer{
		advertise: advertiseAddr,
		listener:  list.(*net.TCPListener),
	}, nil
}

// NewTCPChannel returns a StreamChannel built on top of a TCP stream layer.
func NewTCPChannel(
	bindAddr string,
	advertise string,
	origin string,
	peers []Peer,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*StreamChannel, error) {
	stream, err := NewTCPStreamLayer(bindAddr, advertise)
	if err != nil {
		return nil, err
	}
	return NewStreamChannel(stream, origin, peers, maxPool, timeout, logger), nil
}
