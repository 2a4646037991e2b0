package harness

import "sync"

// ActiveCounter tracks the number of concurrently served connections behind
// a mutex. It exposes only acquire/release/count: no other shared mutable
// state exists between workers.
type ActiveCounter struct {
	mu     sync.Mutex
	active int
	max    int
}

// NewActiveCounter creates a counter enforcing the given cap.
func NewActiveCounter(max int) *ActiveCounter {
	return &ActiveCounter{max: max}
}

// TryAcquire reserves one slot. It returns false when the cap is reached,
// in which case the caller must reject the connection.
func (c *ActiveCounter) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active >= c.max {
		return false
	}
	c.active++
	return true
}

// Release frees one slot. Each worker releases exactly once, on exit.
func (c *ActiveCounter) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
}

// Count returns the current number of active connections.
func (c *ActiveCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
