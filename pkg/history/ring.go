package history

import "time"

// Point is one timestamped sample in a channel's history.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// ring is a fixed-capacity FIFO of points. When full, pushing evicts the
// oldest entry. Entries stay in insertion order.
type ring struct {
	buf  []Point
	head int // index of the oldest entry
	n    int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Point, capacity)}
}

func (r *ring) push(p Point) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = p
		r.n++
		return
	}
	// Full: overwrite the oldest and advance.
	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) len() int {
	return r.n
}

// points returns a chronological copy, oldest first.
func (r *ring) points() []Point {
	out := make([]Point, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
