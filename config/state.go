package config

import (
	"sync"
	"sync/atomic"
)

// Controller is the per-process replica state. The settings and the
// configured controller set are immutable after startup; the primary
// pointer and the last-primary-message high-water mark change at runtime,
// from message handlers, the reconciler's voting and startup.
type Controller struct {
	Self        NodeDefinition
	Controllers []NodeDefinition
	Settings    *Settings
	Chunks      *ChunkMap

	mu            sync.RWMutex
	primary       NodeDefinition
	hasPrimary    bool
	lastPrimaryID atomic.Uint32
	running       atomic.Bool
}

// NewController builds the replica state from validated settings.
func NewController(settings *Settings) (*Controller, error) {
	self, err := settings.Self()
	if err != nil {
		return nil, err
	}
	controllers, err := settings.Controllers()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		Self:        self,
		Controllers: controllers,
		Settings:    settings,
		Chunks:      NewChunkMap(),
	}
	c.running.Store(true)
	return c, nil
}

// Others returns the configured controllers excluding this replica.
func (c *Controller) Others() []NodeDefinition {
	out := make([]NodeDefinition, 0, len(c.Controllers)-1)
	for _, n := range c.Controllers {
		if n != c.Self {
			out = append(out, n)
		}
	}
	return out
}

// Primary returns the current primary, if any.
func (c *Controller) Primary() (NodeDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.primary, c.hasPrimary
}

func (c *Controller) IsPrimary() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasPrimary && c.primary == c.Self
}

// SetPrimary installs a new primary and resets the high-water mark; a
// primary change always restarts the message-id horizon.
func (c *Controller) SetPrimary(n NodeDefinition) {
	c.mu.Lock()
	changed := !c.hasPrimary || c.primary != n
	c.primary = n
	c.hasPrimary = true
	c.mu.Unlock()
	if changed {
		c.lastPrimaryID.Store(0)
	}
}

// ClearPrimary forgets the primary. Returns whether one was set.
func (c *Controller) ClearPrimary() bool {
	c.mu.Lock()
	had := c.hasPrimary
	c.hasPrimary = false
	c.primary = NodeDefinition{}
	c.mu.Unlock()
	if had {
		c.lastPrimaryID.Store(0)
	}
	return had
}

// ObservePrimaryMessageID max-merges a message id seen from the current
// primary. The maximum, not the latest, tolerates reordered handling
// across goroutines.
func (c *Controller) ObservePrimaryMessageID(id uint32) {
	for {
		cur := c.lastPrimaryID.Load()
		if id <= cur {
			return
		}
		if c.lastPrimaryID.CompareAndSwap(cur, id) {
			return
		}
	}
}

func (c *Controller) LastPrimaryMessageID() uint32 {
	return c.lastPrimaryID.Load()
}

// Quorum reports whether the given number of live configured controllers
// (this replica included) is a strict majority of the configured set.
func (c *Controller) Quorum(active int) bool {
	return active > len(c.Controllers)/2
}

func (c *Controller) Running() bool {
	return c.running.Load()
}

func (c *Controller) Stop() {
	c.running.Store(false)
}
