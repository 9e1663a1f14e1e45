package command

import (
	"math"
	"sync"
	"time"
)

type cooldownEntry struct {
	expiry time.Time
	timer  *time.Timer
}

// Cooldowns tracks per-(command, actor) invocation windows in memory.
// Every acquired entry arms a timer that removes it at expiry, so the
// map never grows beyond the set of currently active windows. State is
// not persisted; cooldowns reset on restart by design.
type Cooldowns struct {
	mu      sync.Mutex
	entries map[string]*cooldownEntry
	stopped bool
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{entries: make(map[string]*cooldownEntry)}
}

// TryAcquire reports whether the actor may invoke the command now.
// The first call for a key always succeeds and starts the window; a
// call within an active window fails and returns the remaining time in
// seconds, rounded to one decimal; a call after expiry succeeds and
// restarts the window.
func (c *Cooldowns) TryAcquire(commandName, actorID string, window time.Duration) (ok bool, remaining float64) {
	if window <= 0 {
		return true, 0
	}

	key := commandName + "\x00" + actorID
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return true, 0
	}

	if entry, exists := c.entries[key]; exists {
		if rem := entry.expiry.Sub(now); rem > 0 {
			return false, math.Round(rem.Seconds()*10) / 10
		}
		// Expired but the timer has not fired yet; restart below.
		entry.timer.Stop()
	}

	expiry := now.Add(window)
	entry := &cooldownEntry{expiry: expiry}
	entry.timer = time.AfterFunc(window, func() { c.expire(key, expiry) })
	c.entries[key] = entry
	return true, 0
}

// expire removes the entry unless the window was restarted since the
// timer was armed.
func (c *Cooldowns) expire(key string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists && entry.expiry.Equal(expiry) {
		delete(c.entries, key)
	}
}

// Len returns the number of active windows.
func (c *Cooldowns) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop cancels all timers and disables the tracker. Used at shutdown.
func (c *Cooldowns) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		entry.timer.Stop()
		delete(c.entries, key)
	}
	c.stopped = true
}
