// Package postmessage implements a named single-value channel. Every context
// attached to the channel sees the last value sent by any of them, and can
// subscribe to the values as they arrive.
//
// Unlike a node, a value channel has no handshake: a context that joins late
// keeps its initial value until somebody sends.
package postmessage

import (
	"sort"
	"sync"

	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/mosaicnetworks/tabsync/src/net"
	"github.com/sirupsen/logrus"
)

const valueKey = "value"

// Listener receives every value sent on the channel, local or remote.
type Listener func(value interface{})

// Options configure a Channel.
type Options struct {
	// Subscribe turns the channel into a pure event stream. Values are
	// dispatched to listeners but never stored.
	Subscribe bool

	// Origins is the origin allow-list. Empty means any origin.
	Origins []string

	Logger *logrus.Entry
}

// Channel is a named value shared through a net.Channel. The underlying
// channel is owned by the value channel; use one per value.
type Channel struct {
	mu        sync.Mutex
	value     interface{}
	hasValue  bool
	listeners map[int]Listener
	nextID    int

	name      string
	subscribe bool
	origins   []string
	ids       *envelope.IDGenerator
	channel   net.Channel
	sub       net.Subscription
	logger    *logrus.Entry
}

// New attaches a value channel called name to ch. initial is the value
// returned by State until something is sent; nil means no value.
func New(name string, initial interface{}, ch net.Channel, opts Options) (*Channel, error) {
	origins := opts.Origins
	if len(origins) == 0 {
		origins = []string{net.WildcardOrigin}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ids := envelope.NewIDGenerator("")

	c := &Channel{
		value:     initial,
		hasValue:  initial != nil,
		listeners: make(map[int]Listener),
		name:      name,
		subscribe: opts.Subscribe,
		origins:   origins,
		ids:       ids,
		channel:   ch,
		logger: logger.WithFields(logrus.Fields{
			"channel":   name,
			"source_id": ids.SourceID(),
		}),
	}

	sub, err := ch.Listen(c.onMessage)
	if err != nil {
		return nil, err
	}
	c.sub = sub

	return c, nil
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// State returns the current value. ok is false while no value was set.
func (c *Channel) State() (value interface{}, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.hasValue
}

// Send posts v to the peers, stores it unless the channel is in subscribe
// mode, and dispatches it to the local listeners. Delivery errors are
// returned after the local dispatch.
func (c *Channel) Send(v interface{}) error {
	env := envelope.NewChange(c.ids, c.name, map[string]interface{}{valueKey: v})

	err := c.channel.Send(env, net.Target{Origins: c.origins})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to post value to some peers")
	}

	c.apply(v)

	return err
}

// Subscribe registers l and returns a function that removes it.
func (c *Channel) Subscribe(l Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close detaches the value channel and closes the underlying channel.
func (c *Channel) Close() error {
	if err := c.sub.Close(); err != nil {
		return err
	}
	return c.channel.Close()
}

func (c *Channel) onMessage(m net.Message) {
	env, err := envelope.Decode(m.Data)
	if err != nil {
		return
	}

	if env.Action != envelope.Change ||
		env.Name != c.name ||
		env.SourceID == c.ids.SourceID() {
		return
	}

	if !net.MatchOrigin(c.origins, m.Origin) {
		c.logger.WithField("origin", m.Origin).Debug("Dropping value from foreign origin")
		return
	}

	v, ok := env.State[valueKey]
	if !ok {
		return
	}

	c.apply(v)
}

func (c *Channel) apply(v interface{}) {
	c.mu.Lock()
	if !c.subscribe {
		c.value = v
		c.hasValue = true
	}

	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(v)
	}
}
