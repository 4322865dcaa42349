// Package tabsync wires a tabsync context together: the channel selected by
// the configuration, the envelope journal, the synchronization node and the
// HTTP service.
package tabsync

import (
	"context"
	"fmt"
	"os"

	"github.com/mosaicnetworks/tabsync/src/config"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/mosaicnetworks/tabsync/src/journal"
	"github.com/mosaicnetworks/tabsync/src/net"
	"github.com/mosaicnetworks/tabsync/src/net/signal/wamp"
	"github.com/mosaicnetworks/tabsync/src/node"
	"github.com/mosaicnetworks/tabsync/src/peers"
	"github.com/mosaicnetworks/tabsync/src/service"
	"github.com/mosaicnetworks/tabsync/src/store"
	"github.com/sirupsen/logrus"
)

// Tabsync is a synchronized context.
type Tabsync struct {
	Config  *config.Config
	Store   store.Container
	Channel net.Channel
	Journal journal.Journal
	Node    *node.Node
	Service *service.Service
	logger  *logrus.Entry
}

// NewTabsync creates a context sharing st. With the inmem channel, Channel
// must be set before calling Init.
func NewTabsync(conf *config.Config, st store.Container) *Tabsync {
	engine := &Tabsync{
		Config: conf,
		Store:  st,
		logger: conf.Logger(),
	}

	return engine
}

// peers returns the configured neighbours of the context at addr.
func (t *Tabsync) peers(addr string) ([]net.Peer, error) {
	peerStore := peers.NewJSONPeers(t.Config.DataDir)

	list, err := peerStore.Peers()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	for _, p := range t.Config.Peers {
		list = append(list, peers.NewPeer(p, ""))
	}

	return peers.ToNet(list, addr, t.Config.Origin), nil
}

func (t *Tabsync) initChannel() error {
	if t.Channel != nil {
		return nil
	}

	addr := t.Config.Addr
	if addr == "" && t.Config.Channel != config.TCPChannel {
		addr = envelope.NewSourceID()
	}

	neighbours, err := t.peers(addr)
	if err != nil {
		return err
	}

	t.logger.WithFields(logrus.Fields{
		"channel": t.Config.Channel,
		"addr":    addr,
		"peers":   len(neighbours),
	}).Debug("Creating channel")

	switch t.Config.Channel {
	case config.InmemChannel:
		return fmt.Errorf("the inmem channel requires a window")
	case config.WAMPChannel:
		t.Channel, err = net.DialWAMPChannel(
			context.Background(),
			t.Config.RouterURL(),
			t.Config.Realm,
			addr,
			t.Config.Origin,
			neighbours,
			t.Config.TCPTimeout,
			t.logger,
		)
	case config.TCPChannel:
		t.Channel, err = net.NewTCPChannel(
			t.Config.BindAddr,
			t.Config.AdvertiseAddr,
			t.Config.Origin,
			neighbours,
			t.Config.MaxPool,
			t.Config.TCPTimeout,
			t.logger,
		)
	case config.WebRTCChannel:
		var signal *wamp.Client
		signal, err = wamp.NewClient(
			t.Config.RouterURL(),
			t.Config.Realm,
			addr,
			t.Config.CertFile(),
			t.Config.SkipVerify,
			t.Config.TCPTimeout,
			t.logger,
		)
		if err != nil {
			return err
		}
		if err = signal.Listen(); err != nil {
			signal.Close()
			return err
		}
		t.Channel = net.NewWebRTCChannel(
			signal,
			t.Config.ICEServers(),
			t.Config.Origin,
			neighbours,
			t.Config.MaxPool,
			t.Config.TCPTimeout,
			t.logger,
		)
	default:
		return fmt.Errorf("unknown channel %q", t.Config.Channel)
	}

	return err
}

func (t *Tabsync) initJournal() error {
	if t.Journal != nil {
		return nil
	}

	if !t.Config.Journal {
		t.Journal = journal.NewInmemJournal(t.Config.JournalCapacity)

		t.logger.Debug("created new in-mem journal")

		return nil
	}

	t.logger.WithField("path", t.Config.JournalDir).Debug("Creating journal")

	j, err := journal.NewBadgerJournal(t.Config.JournalDir, t.logger)
	if err != nil {
		return err
	}
	t.Journal = j

	return nil
}

func (t *Tabsync) initNode() error {
	t.Node = node.NewNode(
		t.Config.NodeConfig(),
		t.Store,
		t.Channel,
		t.Journal,
	)

	if err := t.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (t *Tabsync) initService() error {
	if !t.Config.NoService {
		t.Service = service.NewService(t.Config.ServiceAddr, t.Node, t.logger)
	}
	return nil
}

// Init creates the channel, the journal, the node and the service.
func (t *Tabsync) Init() error {
	if t.Store == nil {
		t.Store = store.New(func() store.State { return store.State{} })
	}

	if err := t.initChannel(); err != nil {
		return err
	}

	if err := t.initJournal(); err != nil {
		return err
	}

	if err := t.initNode(); err != nil {
		return err
	}

	if err := t.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the service and runs the node. It blocks until Shutdown.
func (t *Tabsync) Run() {
	if t.Service != nil {
		go t.Service.Serve()
	}

	t.Node.Run()
}

// Shutdown announces the departure of the context and releases its resources.
func (t *Tabsync) Shutdown() {
	if t.Node != nil {
		t.Node.Shutdown()
	}

	if t.Service != nil {
		t.Service.Shutdown()
	}
}
