package timer

import (
	"sync"
	"time"
)

// Countdown is a restartable ticking clock. Start begins a fresh count and
// invalidates any previous tick source; the expiry callback supplied to
// Start fires exactly once per started run, when the remaining seconds
// reach zero.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	running   bool
	stop      chan struct{}
	interval  time.Duration
}

func NewCountdown() *Countdown {
	return &Countdown{interval: time.Second}
}

// Start begins counting down from seconds. Any run already in progress is
// cancelled first, so the previous tick source cannot fire a stale expiry.
// The callback belongs to this run only; callers that must distinguish
// runs should close over a run identifier.
func (c *Countdown) Start(seconds int, onExpire func()) {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.remaining = seconds
	c.running = seconds > 0
	c.mu.Unlock()

	if seconds > 0 {
		go c.run(stop, onExpire)
	}
}

func (c *Countdown) run(stop chan struct{}, onExpire func()) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stop != stop {
				// Superseded by a newer run.
				c.mu.Unlock()
				return
			}
			c.remaining--
			if c.remaining > 0 {
				c.mu.Unlock()
				continue
			}
			c.remaining = 0
			c.running = false
			c.stop = nil
			c.mu.Unlock()
			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}

// Stop cancels the active run without firing the expiry callback.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Schedule runs fn once after the given delay and returns a cancel
// function. Cancelling after fn has started is a no-op.
func Schedule(after time.Duration, fn func()) (cancel func()) {
	t := time.AfterFunc(after, fn)
	return func() { t.Stop() }
}
