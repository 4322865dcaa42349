package net

import (
	"context"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	tswamp "github.com/mosaicnetworks/tabsync/src/net/signal/wamp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const topicPrefix = "tabsync.context."

var topicReplacer = strings.NewReplacer(".", "_", "#", "_", " ", "_")

// Topic returns the WAMP topic a context with the given address subscribes to.
func Topic(addr string) string {
	return topicPrefix + topicReplacer.Replace(addr)
}

// WAMPChannel is a Channel where every context subscribes to its own topic on
// a WAMP router, and posts to a peer by publishing to the peer's topic. The
// sender's origin travels in the publication's keyword arguments.
type WAMPChannel struct {
	client *client.Client
	addr   string
	origin string

	peersLock sync.RWMutex
	peers     []Peer

	listener  listener
	consumeCh chan Message

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	logger *logrus.Entry
}

// DialWAMPChannel connects to the router at routerURL and subscribes to the
// context's topic.
func DialWAMPChannel(
	ctx context.Context,
	routerURL string,
	realm string,
	addr string,
	origin string,
	peers []Peer,
	timeout time.Duration,
	logger *logrus.Entry,
) (*WAMPChannel, error) {
	cli, err := client.ConnectNet(ctx, routerURL, tswamp.ClientConfig(realm, timeout, logger))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", routerURL)
	}
	return NewWAMPChannel(cli, addr, origin, peers, logger)
}

// LocalWAMPChannel connects to a router running in the same process.
func LocalWAMPChannel(
	r router.Router,
	realm string,
	addr string,
	origin string,
	peers []Peer,
	timeout time.Duration,
	logger *logrus.Entry,
) (*WAMPChannel, error) {
	cli, err := client.ConnectLocal(r, tswamp.ClientConfig(realm, timeout, logger))
	if err != nil {
		return nil, err
	}
	return NewWAMPChannel(cli, addr, origin, peers, logger)
}

// NewWAMPChannel subscribes the connected client to the context's topic. The
// channel owns the client from then on.
func NewWAMPChannel(cli *client.Client, addr, origin string, peers []Peer, logger *logrus.Entry) (*WAMPChannel, error) {
	if addr == "" {
		addr = envelope.NewSourceID()
	}

	ch := &WAMPChannel{
		client:     cli,
		addr:       addr,
		origin:     origin,
		peers:      peers,
		listener:   listener{component: "WAMPChannel"},
		consumeCh:  make(chan Message, DefaultInboxSize),
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}

	if err := cli.Subscribe(Topic(addr), ch.eventHandler, nil); err != nil {
		cli.Close()
		return nil, errors.Wrapf(err, "subscribing to %s", Topic(addr))
	}

	go ch.deliver()

	return ch, nil
}

// LocalAddr implements the Channel interface.
func (w *WAMPChannel) LocalAddr() string {
	return w.addr
}

// Origin implements the Channel interface.
func (w *WAMPChannel) Origin() string {
	return w.origin
}

// SetPeers replaces the configured peers.
func (w *WAMPChannel) SetPeers(peers []Peer) {
	w.peersLock.Lock()
	defer w.peersLock.Unlock()
	w.peers = append([]Peer(nil), peers...)
}

// Peers implements the Channel interface.
func (w *WAMPChannel) Peers(frameIDs []string) []Peer {
	w.peersLock.RLock()
	defer w.peersLock.RUnlock()

	seen := mapset.NewSet()
	res := []Peer{}
	for _, p := range w.peers {
		if p.Relation == Frame && !matchFrame(frameIDs, p.ElementID) {
			continue
		}
		if p.Address == w.addr || !seen.Add(p.Address) {
			continue
		}
		res = append(res, p)
	}
	return res
}

// Send implements the Channel interface.
func (w *WAMPChannel) Send(env *envelope.Envelope, target Target) error {
	if w.isShutdown() {
		return common.NewSyncErr("WAMPChannel", common.ChannelClosed, w.addr)
	}

	raw, err := env.Marshal()
	if err != nil {
		return err
	}

	kwargs := wamp.Dict{
		"origin": w.origin,
		"source": w.addr,
	}

	var errs error
	for _, p := range w.Peers(target.FrameIDs) {
		n := postCount(target.Origins, p.Origin)
		if n == 0 {
			errs = multierr.Append(errs, errors.Errorf("no allowed origin matches %s (%s)", p.Origin, p.Address))
			continue
		}
		for i := 0; i < n; i++ {
			if err := w.client.Publish(Topic(p.Address), nil, wamp.List{string(raw)}, kwargs); err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "publishing to %s", p.Address))
			}
		}
	}
	return errs
}

// Listen implements the Channel interface.
func (w *WAMPChannel) Listen(handler Handler) (Subscription, error) {
	return w.listener.attach(handler)
}

// Close implements the Channel interface.
func (w *WAMPChannel) Close() error {
	var err error
	w.shutdownOnce.Do(func() {
		close(w.shutdownCh)
		w.listener.detach()
		err = multierr.Append(
			w.client.Unsubscribe(Topic(w.addr)),
			w.client.Close(),
		)
	})
	return err
}

func (w *WAMPChannel) isShutdown() bool {
	select {
	case <-w.shutdownCh:
		return true
	default:
		return false
	}
}

// eventHandler turns a publication into a Message. Publications that do not
// carry a string payload are passed through as-is and left to the decoder to
// reject.
func (w *WAMPChannel) eventHandler(event *wamp.Event) {
	msg := Message{}

	if origin, ok := wamp.AsString(event.ArgumentsKw["origin"]); ok {
		msg.Origin = origin
	}
	if source, ok := wamp.AsString(event.ArgumentsKw["source"]); ok {
		msg.Source = source
	}

	if len(event.Arguments) > 0 {
		if s, ok := wamp.AsString(event.Arguments[0]); ok {
			msg.Data = []byte(s)
		} else {
			msg.Data = event.Arguments[0]
		}
	}

	select {
	case w.consumeCh <- msg:
	case <-w.shutdownCh:
	}
}

func (w *WAMPChannel) deliver() {
	for {
		select {
		case m := <-w.consumeCh:
			if !w.listener.dispatch(m) {
				w.logger.WithField("from", m.Source).Debug("No listener, dropping message")
			}
		case <-w.shutdownCh:
			return
		}
	}
}
