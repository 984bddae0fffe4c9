package sensor

import "sync"

const (
	// ReferenceO2Percent is the O2 fraction of ambient air, the reference
	// point for O2 cell calibration.
	ReferenceO2Percent = 20.9

	// DefaultVAir is the factory O2 cell voltage in ambient air, used until
	// the first calibration commits a measured value.
	DefaultVAir = 0.0095
)

// Constants holds the per-channel calibration constants shared between the
// hardware source (many readers) and the calibration controller (single
// writer, commits only on successful completion). Guarded for the case
// where sampling and calibration run on separate goroutines.
type Constants struct {
	mu   sync.RWMutex
	vals map[Channel]float64
}

// NewConstants returns constants seeded with factory defaults.
func NewConstants() *Constants {
	return &Constants{
		vals: map[Channel]float64{
			O2: DefaultVAir,
		},
	}
}

// Value returns the current constant for a channel and whether one exists.
func (c *Constants) Value(ch Channel) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vals[ch]
	return v, ok
}

// VAir returns the O2 air-reference voltage.
func (c *Constants) VAir() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals[O2]
}

// Set commits a new constant for a channel, replacing the previous value.
// Only the calibration controller's completion step may call this.
func (c *Constants) Set(ch Channel, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[ch] = v
}
