package telemetry

import "gonum.org/v1/gonum/spatial/r2"

// Collector accumulates lifecycle events within tick windows and produces FlockStats.
type Collector struct {
	windowTicks int32

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	spawned   int
	despawned int
}

// NewCollector creates a collector that flushes every windowTicks ticks.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: int32(windowTicks)}
}

// RecordSpawn records n agents added to the store.
func (c *Collector) RecordSpawn(n int) {
	c.spawned += n
}

// RecordDespawn records n agents removed from the store.
func (c *Collector) RecordDespawn(n int) {
	c.despawned += n
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// Flush produces a FlockStats sample from the current velocities and neighbor
// counts and resets counters for the next window.
func (c *Collector) Flush(currentTick int32, vel []r2.Vec, neighbors []int) FlockStats {
	stats := ComputeFlockStats(vel, neighbors)
	stats.WindowStartTick = c.windowStartTick
	stats.WindowEndTick = currentTick
	stats.Spawned = c.spawned
	stats.Despawned = c.despawned

	c.windowStartTick = currentTick
	c.spawned = 0
	c.despawned = 0

	return stats
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() int32 {
	return c.windowTicks
}
