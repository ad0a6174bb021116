// Package chanlock watches an event loop and reports when it stops
// draining its channels.
package chanlock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
)

const (
	TIMEOUT_DURATION      = 15 * time.Second
	HEALTH_CHECK_DURATION = 1 * time.Second
)

type Chanlock struct {
	log      zerolog.Logger
	timeout  time.Duration
	interval time.Duration

	mutex    deadlock.RWMutex
	lastMark string
	stalls   int
}

func New(logger zerolog.Logger) *Chanlock {
	return &Chanlock{
		log:      logger,
		timeout:  TIMEOUT_DURATION,
		interval: HEALTH_CHECK_DURATION,
	}
}

// WithTimeouts overrides how often the loop is probed and how long a probe
// may go unanswered.
func (c *Chanlock) WithTimeouts(interval, timeout time.Duration) *Chanlock {
	c.interval = interval
	c.timeout = timeout
	return c
}

// Mark records what the loop is about to do so a stall can be attributed.
func (c *Chanlock) Mark(name string) {
	c.mutex.Lock()
	c.lastMark = name
	c.mutex.Unlock()
}

func (c *Chanlock) Stalls() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stalls
}

func (c *Chanlock) stalled() {
	c.mutex.Lock()
	mark := c.lastMark
	c.stalls++
	c.mutex.Unlock()

	event := c.log.Error()
	if mark != "" {
		event = event.Str("mark", mark)
	}
	event.Msg("event loop no longer healthy")
}

// Poll returns a channel the loop must receive from. If a probe is not
// received within the timeout the stall is logged.
func (c *Chanlock) Poll(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time)

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				timeout := time.NewTimer(c.timeout)
				select {
				case out <- t:
					timeout.Stop()
					c.Mark("")
					continue
				case <-timeout.C:
					c.stalled()
				case <-ctx.Done():
					timeout.Stop()
					return
				}

				// Keep waiting for the loop to come back.
				select {
				case out <- t:
					c.Mark("")
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
