package net

import (
	"sync"

	"github.com/mosaicnetworks/tabsync/src/common"
)

// listener holds the single Handler attached to a Channel.
type listener struct {
	sync.Mutex
	component string
	handler   Handler
	gen       int
}

func (l *listener) attach(h Handler) (Subscription, error) {
	l.Lock()
	defer l.Unlock()

	if l.handler != nil {
		return nil, common.NewSyncErr(l.component, common.AlreadyListening, "")
	}

	l.handler = h
	l.gen++

	gen := l.gen
	return &subscription{closeFn: func() {
		l.Lock()
		defer l.Unlock()
		if l.gen == gen {
			l.handler = nil
		}
	}}, nil
}

// dispatch hands the message to the current handler. It returns false if no
// handler is attached.
func (l *listener) dispatch(m Message) bool {
	l.Lock()
	h := l.handler
	l.Unlock()

	if h == nil {
		return false
	}
	h(m)
	return true
}

func (l *listener) detach() {
	l.Lock()
	l.handler = nil
	l.gen++
	l.Unlock()
}

type subscription struct {
	once    sync.Once
	closeFn func()
}

// Close implements the Subscription interface. It is safe to call more than
// once.
func (s *subscription) Close() error {
	s.once.Do(s.closeFn)
	return nil
}
