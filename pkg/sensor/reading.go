package sensor

import (
	"math"
	"time"
)

// Reading is a snapshot of all channel values taken at one instant.
// Channel values in the same reading may be sampled microseconds apart;
// no cross-channel atomicity is implied.
type Reading struct {
	Timestamp time.Time
	values    map[Channel]float64
}

// NewReading builds a reading from a value map. The map is copied.
func NewReading(ts time.Time, values map[Channel]float64) Reading {
	v := make(map[Channel]float64, len(values))
	for ch, val := range values {
		v[ch] = val
	}
	return Reading{Timestamp: ts, values: v}
}

// Value returns the value for a channel and whether it is present.
func (r Reading) Value(ch Channel) (float64, bool) {
	v, ok := r.values[ch]
	return v, ok
}

// Values returns a copy of the channel value map.
func (r Reading) Values() map[Channel]float64 {
	out := make(map[Channel]float64, len(r.values))
	for ch, v := range r.values {
		out[ch] = v
	}
	return out
}

// Len returns the number of channels present in the reading.
func (r Reading) Len() int {
	return len(r.values)
}

// Rounded returns a copy with every value rounded to its channel's display
// precision. Rounding happens only at this boundary; internal processing
// keeps full precision.
func (r Reading) Rounded() Reading {
	out := make(map[Channel]float64, len(r.values))
	for ch, v := range r.values {
		out[ch] = roundTo(v, MetaFor(ch).Decimals)
	}
	return Reading{Timestamp: r.Timestamp, values: out}
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
