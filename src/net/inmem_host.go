package net

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// DefaultInboxSize is the number of undelivered messages a context buffers
// before further posts to it are dropped.
const DefaultInboxSize = 1024

// InmemHost simulates a set of browsing contexts sharing a process: top-level
// windows, the popups they open and the frames they embed. Contexts talk to
// each other through postMessage-like semantics, which lets synchronizers be
// tested without a network.
type InmemHost struct {
	sync.RWMutex
	windows   map[string]*InmemWindow
	inboxSize int
	logger    *logrus.Entry
}

// NewInmemHost creates an empty host.
func NewInmemHost(logger *logrus.Entry) *InmemHost {
	return &InmemHost{
		windows:   make(map[string]*InmemWindow),
		inboxSize: DefaultInboxSize,
		logger:    logger,
	}
}

// Open creates a top-level window with the given origin.
func (h *InmemHost) Open(origin string) *InmemWindow {
	return h.newWindow(origin, nil, nil, "")
}

// Window looks up a live context by address.
func (h *InmemHost) Window(addr string) (*InmemWindow, bool) {
	h.RLock()
	defer h.RUnlock()
	w, ok := h.windows[addr]
	return w, ok
}

// Len returns the number of live contexts.
func (h *InmemHost) Len() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.windows)
}

// Close closes every context.
func (h *InmemHost) Close() {
	h.RLock()
	windows := make([]*InmemWindow, 0, len(h.windows))
	for _, w := range h.windows {
		windows = append(windows, w)
	}
	h.RUnlock()

	for _, w := range windows {
		w.Close()
	}
}

func (h *InmemHost) newWindow(origin string, opener, parent *InmemWindow, elementID string) *InmemWindow {
	addr := envelope.NewSourceID()

	w := &InmemWindow{
		host:       h,
		addr:       addr,
		origin:     origin,
		opener:     opener,
		parent:     parent,
		elementID:  elementID,
		inbox:      make(chan Message, h.inboxSize),
		shutdownCh: make(chan struct{}),
		listener:   listener{component: "InmemWindow"},
		logger: h.logger.WithFields(logrus.Fields{
			"context": addr,
			"origin":  origin,
		}),
	}

	h.Lock()
	h.windows[addr] = w
	h.Unlock()

	go w.deliver()

	return w
}

func (h *InmemHost) remove(addr string) {
	h.Lock()
	delete(h.windows, addr)
	h.Unlock()
}

// InmemWindow is a browsing context of an InmemHost. It implements the Channel
// interface.
type InmemWindow struct {
	host      *InmemHost
	addr      string
	origin    string
	elementID string

	mu     sync.RWMutex
	opener *InmemWindow
	parent *InmemWindow
	popups []*InmemWindow
	frames []*InmemWindow
	closed bool

	inbox        chan Message
	listener     listener
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	logger *logrus.Entry
}

// OpenPopup opens a new top-level context whose opener is w.
func (w *InmemWindow) OpenPopup(origin string) *InmemWindow {
	p := w.host.newWindow(origin, w, nil, "")

	w.mu.Lock()
	w.popups = append(w.popups, p)
	w.mu.Unlock()

	return p
}

// Embed creates a frame inside w, identified by its element id.
func (w *InmemWindow) Embed(elementID, origin string) *InmemWindow {
	f := w.host.newWindow(origin, nil, w, elementID)

	w.mu.Lock()
	w.frames = append(w.frames, f)
	w.mu.Unlock()

	return f
}

// Frame returns the embedded frame with the given element id.
func (w *InmemWindow) Frame(elementID string) (*InmemWindow, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, f := range w.frames {
		if f.elementID == elementID {
			return f, true
		}
	}
	return nil, false
}

// ElementID returns the element id under which the context is embedded, or
// the empty string for a top-level context.
func (w *InmemWindow) ElementID() string {
	return w.elementID
}

// LocalAddr implements the Channel interface.
func (w *InmemWindow) LocalAddr() string {
	return w.addr
}

// Origin implements the Channel interface.
func (w *InmemWindow) Origin() string {
	return w.origin
}

// IsClosed reports whether the context was closed.
func (w *InmemWindow) IsClosed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.closed
}

// Peers implements the Channel interface. Closed contexts are skipped.
func (w *InmemWindow) Peers(frameIDs []string) []Peer {
	neighbours := w.neighbours(frameIDs)
	res := make([]Peer, 0, len(neighbours))
	for _, n := range neighbours {
		res = append(res, n.Peer)
	}
	return res
}

type inmemPeer struct {
	Peer
	window *InmemWindow
}

func (w *InmemWindow) neighbours(frameIDs []string) []inmemPeer {
	w.mu.RLock()
	candidates := make([]inmemPeer, 0, len(w.popups)+len(w.frames)+2)
	if w.opener != nil {
		candidates = append(candidates, inmemPeer{Peer{Relation: Opener}, w.opener})
	}
	for _, p := range w.popups {
		candidates = append(candidates, inmemPeer{Peer{Relation: Popup}, p})
	}
	if w.parent != nil {
		candidates = append(candidates, inmemPeer{Peer{Relation: Parent}, w.parent})
	}
	for _, f := range w.frames {
		if matchFrame(frameIDs, f.elementID) {
			candidates = append(candidates, inmemPeer{Peer{Relation: Frame, ElementID: f.elementID}, f})
		}
	}
	w.mu.RUnlock()

	seen := mapset.NewSet()
	res := make([]inmemPeer, 0, len(candidates))
	for _, c := range candidates {
		if c.window.IsClosed() || !seen.Add(c.window.addr) {
			continue
		}
		c.Address = c.window.addr
		c.Origin = c.window.origin
		res = append(res, c)
	}
	return res
}

// Send implements the Channel interface. Each delivered copy is a structured
// clone of env; a state that cannot be cloned fails the whole send.
func (w *InmemWindow) Send(env *envelope.Envelope, target Target) error {
	if w.IsClosed() {
		return common.NewSyncErr("InmemWindow", common.ChannelClosed, w.addr)
	}

	var errs error
	for _, p := range w.neighbours(target.FrameIDs) {
		n := postCount(target.Origins, p.Origin)
		if n == 0 {
			errs = multierr.Append(errs, errors.Errorf("no allowed origin matches %s (%s)", p.Origin, p.Address))
			continue
		}
		for i := 0; i < n; i++ {
			clone, err := cloneEnvelope(env)
			if err != nil {
				return err
			}
			if err := w.post(p.window, clone, p.Origin); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// Post delivers arbitrary data to target, as long as target's origin matches
// targetOrigin. It lets tests inject messages a well-behaved peer would never
// send.
func (w *InmemWindow) Post(target *InmemWindow, data interface{}, targetOrigin string) error {
	if targetOrigin != WildcardOrigin && targetOrigin != target.origin {
		return errors.Errorf("target origin %s does not match %s", targetOrigin, target.origin)
	}
	return w.post(target, data, targetOrigin)
}

func (w *InmemWindow) post(target *InmemWindow, data interface{}, targetOrigin string) error {
	if target.IsClosed() {
		return common.NewSyncErr("InmemWindow", common.ChannelClosed, target.addr)
	}

	msg := Message{
		Origin: w.origin,
		Source: w.addr,
		Data:   data,
	}

	select {
	case target.inbox <- msg:
		return nil
	default:
		return errors.Errorf("inbox of %s is full", target.addr)
	}
}

// Listen implements the Channel interface.
func (w *InmemWindow) Listen(handler Handler) (Subscription, error) {
	return w.listener.attach(handler)
}

// deliver pumps the inbox into the listener until the context is closed.
// Messages arriving while nobody listens are dropped.
func (w *InmemWindow) deliver() {
	for {
		select {
		case m := <-w.inbox:
			if !w.listener.dispatch(m) {
				w.logger.WithField("from", m.Source).Debug("No listener, dropping message")
			}
		case <-w.shutdownCh:
			return
		}
	}
}

// Close implements the Channel interface. It closes the context and every
// frame embedded in it, and detaches it from its parent.
func (w *InmemWindow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	frames := w.frames
	w.frames = nil
	parent := w.parent
	w.mu.Unlock()

	for _, f := range frames {
		f.Close()
	}

	if parent != nil {
		parent.mu.Lock()
		for i, f := range parent.frames {
			if f == w {
				parent.frames = append(parent.frames[:i], parent.frames[i+1:]...)
				break
			}
		}
		parent.mu.Unlock()
	}

	w.listener.detach()
	w.shutdownOnce.Do(func() { close(w.shutdownCh) })
	w.host.remove(w.addr)

	return nil
}

func cloneEnvelope(env *envelope.Envelope) (*envelope.Envelope, error) {
	clone := env.Copy()
	if env.State != nil {
		st, err := envelope.Clone(env.State)
		if err != nil {
			return nil, err
		}
		clone.State = st
	}
	return clone, nil
}
