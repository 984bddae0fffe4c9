package history

// Downsample decimates a history series to at most maxPoints entries for
// display. Destination-based: reuses dst when it has sufficient capacity,
// otherwise allocates. Returns the destination slice.
func Downsample(dst []Aged, points []Aged, maxPoints int) []Aged {
	if len(points) <= maxPoints {
		if cap(dst) >= len(points) {
			dst = dst[:len(points)]
			copy(dst, points)
			return dst
		}
		result := make([]Aged, len(points))
		copy(result, points)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Aged, 0, maxPoints)
	}

	step := float64(len(points)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx < len(points) {
			dst = append(dst, points[idx])
		}
	}

	return dst
}
