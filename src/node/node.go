package node

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/dedup"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/mosaicnetworks/tabsync/src/journal"
	"github.com/mosaicnetworks/tabsync/src/net"
	"github.com/mosaicnetworks/tabsync/src/roster"
	"github.com/mosaicnetworks/tabsync/src/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Node synchronizes a state container with the peers reachable through a
// channel.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	name    string
	origins []string
	ids     *envelope.IDGenerator

	store     store.Container
	channel   net.Channel
	sub       net.Subscription
	validator *Validator
	seen      *dedup.Cache
	journal   journal.Journal

	registry *prometheus.Registry
	metrics  *Metrics

	// coreLock protects the fields below, which are written by the event
	// loop and read by the accessors.
	coreLock      sync.RWMutex
	authoritative bool
	leader        leaderState

	netCh      chan net.Message
	setCh      chan *SetPromise
	leaveCh    chan *Promise
	shutdownCh chan struct{}

	shutdownLock sync.Mutex
	initialized  bool
	running      int32

	controlTimer *ControlTimer

	start    time.Time
	sent     uint64
	accepted uint64
	rejected uint64
}

// NewNode is a factory method that returns a Node instance. A nil journal
// selects an in-memory one.
func NewNode(conf *Config,
	st store.Container,
	channel net.Channel,
	jrnl journal.Journal,
) *Node {
	name := conf.Name
	if name == "" {
		name = "default"
		if named, ok := st.(interface{ Name() string }); ok {
			name = named.Name()
		}
	}

	origins := conf.TargetOriginURLs
	if len(origins) == 0 {
		origins = []string{channel.Origin()}
	}

	if jrnl == nil {
		jrnl = journal.NewInmemJournal(journal.DefaultCapacity)
	}

	registry := conf.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	ids := envelope.NewIDGenerator("")
	seen := dedup.NewCache(conf.DedupTTL, conf.DedupCapacity)

	node := Node{
		conf: conf,
		logger: conf.Logger.WithFields(logrus.Fields{
			"source_id": ids.SourceID(),
			"name":      name,
		}),
		name:         name,
		origins:      origins,
		ids:          ids,
		store:        st,
		channel:      channel,
		validator:    NewValidator(ids.SourceID(), name, origins, seen),
		seen:         seen,
		journal:      jrnl,
		registry:     registry,
		metrics:      NewMetrics(registry),
		leader:       leaderState{roster: roster.New()},
		netCh:        make(chan net.Message, net.DefaultInboxSize),
		setCh:        make(chan *SetPromise),
		leaveCh:      make(chan *Promise),
		shutdownCh:   make(chan struct{}),
		controlTimer: NewMainTimer(),
	}

	return &node
}

// Init attaches the node to its channel and starts the dedup janitor.
func (n *Node) Init() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.getState() == Shutdown {
		return common.NewSyncErr("Node", common.NodeShutdown, n.ids.SourceID())
	}

	sub, err := n.channel.Listen(n.onMessage)
	if err != nil {
		return err
	}
	n.sub = sub

	n.goFunc(n.seen.Start)
	n.initialized = true

	n.logger.WithFields(logrus.Fields{
		"addr":     n.channel.LocalAddr(),
		"origins":  n.origins,
		"election": n.conf.Election,
		"gossip":   n.conf.Gossip,
	}).Debug("Node initialized")

	return nil
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	n.goFunc(n.Run)
}

// Run broadcasts the sync request and processes events until Shutdown.
func (n *Node) Run() {
	if !atomic.CompareAndSwapInt32(&n.running, 0, 1) {
		return
	}

	n.start = time.Now()

	n.goFunc(func() { n.controlTimer.Run(n.conf.mainTimeout()) })

	n.synchronize()

	for {
		select {
		case m := <-n.netCh:
			n.processMessage(m)
		case p := <-n.setCh:
			p.Respond(n.applyLocal(p.Updater))
		case <-n.controlTimer.tickCh:
			n.onMainTimeout()
		case p := <-n.leaveCh:
			p.Respond(n.depart())
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) isRunning() bool {
	return atomic.LoadInt32(&n.running) == 1
}

// synchronize asks the peers for their state. A node that already holds a
// non-empty state is tentatively synced, but still waits for a reply.
func (n *Node) synchronize() {
	if len(n.store.Get()) > 0 {
		n.setState(Synced)
	} else {
		n.setState(Syncing)
	}

	n.logger.WithField("state", n.getState().String()).Debug("Sending sync request")

	n.broadcast(envelope.NewSync(n.ids, n.name))
}

// onMessage is the channel handler. It only queues the message for the loop.
func (n *Node) onMessage(m net.Message) {
	select {
	case n.netCh <- m:
	case <-n.shutdownCh:
	}
}

// Set applies the updater to the local store and, unless the node is
// unsynced, broadcasts the resulting state. It returns the serialization
// error, if any, of the outbound snapshot. Set must not be called from an
// observer callback.
func (n *Node) Set(u store.Updater) error {
	if n.getState() == Shutdown || !n.isRunning() {
		return common.NewSyncErr("Node", common.NodeShutdown, n.ids.SourceID())
	}

	p := NewSetPromise(u)

	select {
	case n.setCh <- p:
	case <-n.shutdownCh:
		return common.NewSyncErr("Node", common.NodeShutdown, n.ids.SourceID())
	}

	return <-p.RespCh
}

// Leave announces the node's departure to its peers, handing over leadership
// if needed. The node keeps running.
func (n *Node) Leave() error {
	if !n.isRunning() {
		return nil
	}

	p := NewPromise()

	select {
	case n.leaveCh <- p:
	case <-n.shutdownCh:
		return common.NewSyncErr("Node", common.NodeShutdown, n.ids.SourceID())
	}

	return <-p.RespCh
}

func (n *Node) applyLocal(u store.Updater) error {
	n.store.Set(u)

	if n.conf.Unsync {
		return nil
	}

	return n.broadcastState()
}

// projected returns the shared subset of the local state.
func (n *Node) projected() map[string]interface{} {
	st := n.store.Get()
	if n.conf.Partialize != nil {
		st = n.conf.Partialize(st)
	}
	return st
}

// outboundState is the projected state, cloned through JSON unless
// SkipSerialization is set.
func (n *Node) outboundState() (map[string]interface{}, error) {
	st := n.projected()
	if n.conf.SkipSerialization {
		return st, nil
	}
	return envelope.Clone(st)
}

func (n *Node) broadcastState() error {
	st, err := n.outboundState()
	if err != nil {
		n.logger.WithError(err).Error("Failed to serialize state")
		return err
	}

	n.broadcast(envelope.NewChange(n.ids, n.name, st))
	return nil
}

// broadcast posts the envelope to every peer. Per-peer failures are logged.
func (n *Node) broadcast(env *envelope.Envelope) {
	err := n.channel.Send(env, net.Target{
		Origins:  n.origins,
		FrameIDs: n.conf.TargetElementIFrameIDs,
	})

	atomic.AddUint64(&n.sent, 1)
	n.metrics.envelopeSent(env)
	n.record(journal.Sent, env, "", "")

	if err != nil {
		n.metrics.sendErrors.Inc()
		n.logger.WithError(err).WithFields(logrus.Fields{
			"action": env.Action,
			"id":     env.ID,
		}).Warn("Failed to post to some peers")
	}
}

func (n *Node) processMessage(m net.Message) {
	env, rej := n.validator.Validate(m)
	if rej != nil {
		atomic.AddUint64(&n.rejected, 1)
		n.metrics.envelopeRejected(rej)
		n.record(journal.Rejected, env, m.Origin, rej.Error())

		n.logger.WithFields(logrus.Fields{
			"reason": rej.Reason.String(),
			"origin": m.Origin,
			"from":   m.Source,
		}).Debug("Dropping message")
		return
	}

	atomic.AddUint64(&n.accepted, 1)
	n.metrics.envelopeAccepted(env)
	n.record(journal.Accepted, env, m.Origin, "")

	n.logger.WithFields(logrus.Fields{
		"action":    env.Action,
		"id":        env.ID,
		"source_id": env.SourceID,
	}).Debug("Processing envelope")

	switch env.Action {
	case envelope.Sync:
		n.onSync(env)
	case envelope.Change:
		n.onChange(env)
	case envelope.AddNewTab:
		n.onAddNewTab(env)
	case envelope.Close:
		n.onClose(env)
	case envelope.ChangeMain:
		n.onChangeMain(env)
	}

	n.seen.Add(env.ID)

	if n.conf.Gossip {
		n.broadcast(env)
	}
}

// onChange merges the remote state. An equal state is not merged again, but
// the envelope is still forwarded: nodes further away may not have it yet, and
// their dedup caches stop it once it has gone round.
func (n *Node) onChange(env *envelope.Envelope) {
	n.markAuthoritative()

	remote := store.State(env.State)

	if envelope.Equal(n.projected(), remote) {
		n.logger.WithField("id", env.ID).Debug("State unchanged")
		return
	}

	merge := n.conf.merge()
	n.store.Set(func(local store.State) store.State {
		return merge(local, remote)
	})
	n.metrics.merges.Inc()
}

func (n *Node) markAuthoritative() {
	n.coreLock.Lock()
	first := !n.authoritative
	n.authoritative = true
	n.coreLock.Unlock()

	if n.getState() == Syncing {
		n.setState(Synced)
	}

	if first {
		n.controlTimer.Stop()
	}
}

// onMainTimeout promotes the node when nobody answered its sync request.
func (n *Node) onMainTimeout() {
	n.coreLock.Lock()
	if n.authoritative {
		n.coreLock.Unlock()
		return
	}
	n.authoritative = true
	if n.conf.Election {
		n.leader.promote()
	}
	n.coreLock.Unlock()

	n.setState(Synced)

	n.logger.WithField("election", n.conf.Election).Debug("No authoritative reply, promoting")

	if n.conf.Election {
		n.metrics.setLeader(true, 1)
		if n.conf.OnBecomeMain != nil {
			n.conf.OnBecomeMain(0)
		}
	}
}

func (n *Node) record(kind journal.Kind, env *envelope.Envelope, origin, detail string) {
	_, err := n.journal.Record(journal.Entry{
		Kind:     kind,
		Origin:   origin,
		Detail:   detail,
		Envelope: env,
	})
	if err != nil {
		n.logger.WithError(err).Error("Failed to journal envelope")
	}
}

// Shutdown announces the departure, stops the event loop and releases the
// channel, the dedup cache and the journal.
func (n *Node) Shutdown() {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.getState() == Shutdown {
		return
	}

	n.logger.Debug("Shutdown")

	if err := n.Leave(); err != nil {
		n.logger.WithError(err).Warn("Failed to announce departure")
	}

	n.setState(Shutdown)

	close(n.shutdownCh)
	n.controlTimer.Shutdown()

	if n.initialized {
		n.seen.Stop()
		n.sub.Close()
	}

	n.waitRoutines()

	if err := n.channel.Close(); err != nil {
		n.logger.WithError(err).Error("Closing channel")
	}

	if err := n.journal.Close(); err != nil {
		n.logger.WithError(err).Error("Closing journal")
	}
}

// SourceID returns the random identifier of this node.
func (n *Node) SourceID() string {
	return n.ids.SourceID()
}

// Name returns the channel discriminator.
func (n *Node) Name() string {
	return n.name
}

// State returns the synchronization state.
func (n *Node) State() State {
	return n.getState()
}

// IsSynced reports whether the node has accepted a change, promoted itself,
// or started with a non-empty state.
func (n *Node) IsSynced() bool {
	return n.getState() == Synced
}

// Snapshot returns the current local state.
func (n *Node) Snapshot() store.State {
	return n.store.Get()
}

// Registry returns the registry holding the node's metrics.
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

// Journal returns the node's journal.
func (n *Node) Journal() journal.Journal {
	return n.journal
}

// Channel returns the channel the node talks through.
func (n *Node) Channel() net.Channel {
	return n.channel
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	selfID, assigned := n.SelfID()
	self := "none"
	if assigned {
		self = strconv.Itoa(selfID)
	}

	var uptime time.Duration
	if n.isRunning() {
		uptime = time.Since(n.start)
	}

	return map[string]string{
		"source_id":    n.SourceID(),
		"name":         n.name,
		"addr":         n.channel.LocalAddr(),
		"state":        n.getState().String(),
		"leader":       strconv.FormatBool(n.IsLeader()),
		"self_id":      self,
		"roster":       fmt.Sprint(n.CurrentRoster()),
		"num_peers":    strconv.Itoa(len(n.channel.Peers(n.conf.TargetElementIFrameIDs))),
		"dedup_size":   strconv.Itoa(n.seen.Len()),
		"sent":         strconv.FormatUint(atomic.LoadUint64(&n.sent), 10),
		"accepted":     strconv.FormatUint(atomic.LoadUint64(&n.accepted), 10),
		"rejected":     strconv.FormatUint(atomic.LoadUint64(&n.rejected), 10),
		"journal_last": strconv.FormatUint(n.journal.Last(), 10),
		"uptime":       uptime.Round(time.Millisecond).String(),
	}
}
