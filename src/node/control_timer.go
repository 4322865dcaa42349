package node

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer is a resettable one-shot timer driven by its own goroutine.
// The owner reads ticks from tickCh and steers the timer with resetCh and
// stopCh.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the timer
	stopCh       chan struct{}      //receives instruction to stop the timer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
}

// NewControlTimer creates a timer using the given factory.
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewMainTimer creates a ControlTimer backed by time.After.
func NewMainTimer() *ControlTimer {
	return NewControlTimer(func(d time.Duration) <-chan time.Time {
		if d == 0 {
			return nil
		}
		return time.After(d)
	})
}

// Run arms the timer with init and serves it until Shutdown. A tick that
// nobody has consumed yet is dropped by Stop and replaced by Reset.
func (c *ControlTimer) Run(init time.Duration) {
	timer := c.timerFactory(init)
	for {
		select {
		case <-timer:
			timer = nil
			select {
			case c.tickCh <- struct{}{}:
			case t := <-c.resetCh:
				timer = c.timerFactory(t)
			case <-c.stopCh:
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = c.timerFactory(t)
		case <-c.stopCh:
			timer = nil
		case <-c.shutdownCh:
			return
		}
	}
}

// Reset re-arms the timer. It is a no-op after Shutdown.
func (c *ControlTimer) Reset(d time.Duration) {
	select {
	case c.resetCh <- d:
	case <-c.shutdownCh:
	}
}

// Stop disarms the timer. It is a no-op after Shutdown.
func (c *ControlTimer) Stop() {
	select {
	case c.stopCh <- struct{}{}:
	case <-c.shutdownCh:
	}
}

// Shutdown exits the Run loop.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
