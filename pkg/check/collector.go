package check

import (
	"sync"
)

// Collector accumulates Results produced by concurrent evaluations.
// Results are grouped into slots, one per target, and read back in slot
// order so the aggregate is target-major regardless of completion order.
// It is safe for concurrent use.
type Collector struct {
	mu    sync.RWMutex
	slots [][]Result
}

// NewCollector creates a Collector with the given number of slots.
func NewCollector(slots int) *Collector {
	if slots < 0 {
		slots = 0
	}
	return &Collector{slots: make([][]Result, slots)}
}

// Add appends results to a slot. Out-of-range slots are ignored.
func (c *Collector) Add(slot int, results ...Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot < 0 || slot >= len(c.slots) {
		return
	}
	for _, r := range results {
		c.slots[slot] = append(c.slots[slot], r.Clone())
	}
}

// Len returns the number of collected Results.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lenLocked()
}

// Results returns a point-in-time copy of all Results in slot order.
// The copy is independent of later calls to Add.
func (c *Collector) Results() []Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Result, 0, c.lenLocked())
	for _, s := range c.slots {
		for _, r := range s {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (c *Collector) lenLocked() int {
	n := 0
	for _, s := range c.slots {
		n += len(s)
	}
	return n
}
