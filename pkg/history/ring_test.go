package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_FillsToCapacity(t *testing.T) {
	r := newRing(4)
	assert.Equal(t, 0, r.len())

	base := time.Now()
	for i := 0; i < 3; i++ {
		r.push(Point{Timestamp: base.Add(time.Duration(i) * time.Second), Value: float64(i)})
	}

	require.Equal(t, 3, r.len())
	pts := r.points()
	for i, p := range pts {
		assert.Equal(t, float64(i), p.Value)
	}
}

func TestRing_EvictsOldestFirst(t *testing.T) {
	const capacity = 5
	r := newRing(capacity)

	base := time.Now()
	for i := 0; i < 12; i++ {
		r.push(Point{Timestamp: base.Add(time.Duration(i) * time.Second), Value: float64(i)})
	}

	// Exactly capacity entries survive, and they are the most recent ones
	// in insertion order.
	require.Equal(t, capacity, r.len())
	pts := r.points()
	require.Len(t, pts, capacity)
	for i, p := range pts {
		assert.Equal(t, float64(7+i), p.Value)
	}
	for i := 1; i < len(pts); i++ {
		assert.True(t, pts[i].Timestamp.After(pts[i-1].Timestamp))
	}
}

func TestRing_WrapsRepeatedly(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 100; i++ {
		r.push(Point{Value: float64(i)})
	}
	pts := r.points()
	require.Len(t, pts, 3)
	assert.Equal(t, []float64{97, 98, 99}, []float64{pts[0].Value, pts[1].Value, pts[2].Value})
}
