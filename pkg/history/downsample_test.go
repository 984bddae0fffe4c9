package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSeries(n int) []Aged {
	out := make([]Aged, n)
	for i := range out {
		out[i] = Aged{Age: float64(n - i), Value: float64(i)}
	}
	return out
}

func TestDownsample_FewerThanMax(t *testing.T) {
	pts := makeSeries(10)
	got := Downsample(nil, pts, 100)
	assert.Equal(t, pts, got)
}

func TestDownsample_Decimates(t *testing.T) {
	pts := makeSeries(1000)
	got := Downsample(nil, pts, 100)
	require.Len(t, got, 100)

	// First point survives and order is preserved.
	assert.Equal(t, pts[0], got[0])
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Value, got[i-1].Value)
	}
}

func TestDownsample_ReusesDst(t *testing.T) {
	pts := makeSeries(500)
	dst := make([]Aged, 0, 100)

	got := Downsample(dst, pts, 100)
	require.Len(t, got, 100)
	assert.Equal(t, cap(dst), cap(got), "destination buffer should be reused")
}

func TestDownsample_Empty(t *testing.T) {
	got := Downsample(nil, nil, 10)
	assert.Empty(t, got)
}
