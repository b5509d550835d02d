package session

import (
	"sync"
	"time"
)

// Clock is a one-shot countdown. Each Tick removes one second; the tick that
// reaches zero calls onExpire exactly once and stops the clock.
type Clock struct {
	mu        sync.Mutex
	remaining int
	interval  time.Duration
	started   bool
	stopped   bool
	expired   bool

	onTick   func(remaining int)
	onExpire func()

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClock builds a stopped clock. interval defaults to one second.
func NewClock(durationSeconds int, interval time.Duration, onTick func(int), onExpire func()) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	if onTick == nil {
		onTick = func(int) {}
	}
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Clock{
		remaining: durationSeconds,
		interval:  interval,
		onTick:    onTick,
		onExpire:  onExpire,
		stopCh:    make(chan struct{}),
	}
}

// Start drives Tick from a ticker goroutine until the clock stops or expires.
// Calling Start more than once, or after Stop, does nothing.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				if !c.Tick() {
					return
				}
			}
		}
	}()
}

// Tick advances the countdown by one second. It returns false once the clock
// is no longer running.
func (c *Clock) Tick() bool {
	c.mu.Lock()
	if c.stopped || c.expired {
		c.mu.Unlock()
		return false
	}
	c.remaining--
	fire := c.remaining <= 0
	if fire {
		c.remaining = 0
		c.expired = true
	}
	remaining := c.remaining
	c.mu.Unlock()

	c.onTick(remaining)
	if fire {
		c.onExpire()
		c.Stop()
		return false
	}
	return true
}

// Stop halts the clock. It never blocks and may be called from any goroutine,
// including from inside onExpire.
func (c *Clock) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.stopped && !c.expired
}
