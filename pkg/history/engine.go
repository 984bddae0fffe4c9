package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/magnus188/trimix-analyzer/pkg/config"
	"github.com/magnus188/trimix-analyzer/pkg/sensor"
)

// ErrUnavailable is returned by Snapshot when the source has never
// delivered a reading and the current poll failed too.
var ErrUnavailable = errors.New("sensor readings unavailable")

// Aged is a history entry re-expressed as seconds before now.
type Aged struct {
	Age   float64 // seconds before the History call
	Value float64
}

// Engine polls the active sensor source, derives computed channels, and
// maintains a fixed-capacity ring buffer of (timestamp, value) pairs per
// channel for live display and trend graphing.
type Engine struct {
	src sensor.Source
	log zerolog.Logger

	mu       sync.RWMutex
	rings    map[sensor.Channel]*ring
	lastGood map[sensor.Channel]float64

	now func() time.Time
}

// New creates an engine over the given source with one ring buffer of
// cfg.HistoryCapacity entries per channel.
func New(src sensor.Source, cfg *config.SamplingConfig, log zerolog.Logger) *Engine {
	capacity := cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = config.Default().Sampling.HistoryCapacity
	}

	rings := make(map[sensor.Channel]*ring, len(sensor.Channels()))
	for _, ch := range sensor.Channels() {
		rings[ch] = newRing(capacity)
	}

	return &Engine{
		src:      src,
		log:      log,
		rings:    rings,
		lastGood: make(map[sensor.Channel]float64),
		now:      time.Now,
	}
}

// Snapshot pulls one fresh value per channel, derives N2 = 100 - O2 - He,
// and returns the composite reading rounded to display precision. Derived
// values are not clamped; out-of-range results signal sensor or
// calibration problems. A channel whose read fails keeps its last known
// value; if nothing has ever been read and every read fails, Snapshot
// returns ErrUnavailable.
func (e *Engine) Snapshot() (sensor.Reading, error) {
	r, err := e.sample()
	if err != nil {
		return sensor.Reading{}, err
	}
	return r.Rounded(), nil
}

// Record takes one sample and appends (now, value) to each channel's ring
// buffer. It never fails: an unavailable sample is simply skipped and the
// buffers stay intact.
func (e *Engine) Record() {
	r, err := e.sample()
	if err != nil {
		e.log.Warn().Err(err).Msg("skipping history sample")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for ch, rb := range e.rings {
		if v, ok := r.Value(ch); ok {
			rb.push(Point{Timestamp: r.Timestamp, Value: v})
		}
	}
}

// Run records on a fixed cadence until the context is cancelled. One
// sample is taken immediately so displays have data before the first tick.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	e.Record()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Record()
		}
	}
}

// History returns the entries recorded for a channel within the window,
// as (age seconds, value) pairs ordered most-recent first. A window <= 0
// means no limit.
func (e *Engine) History(ch sensor.Channel, window time.Duration) []Aged {
	pts := e.historyChrono(ch, window)
	// Reverse in place: chronological -> most-recent first.
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
	return pts
}

// HistoryChronological returns the same entries oldest first, the order
// graph consumers plot in.
func (e *Engine) HistoryChronological(ch sensor.Channel, window time.Duration) []Aged {
	return e.historyChrono(ch, window)
}

func (e *Engine) historyChrono(ch sensor.Channel, window time.Duration) []Aged {
	now := e.now()

	e.mu.RLock()
	rb, ok := e.rings[ch]
	if !ok {
		e.mu.RUnlock()
		return nil
	}
	pts := rb.points()
	e.mu.RUnlock()

	out := make([]Aged, 0, len(pts))
	for _, p := range pts {
		age := now.Sub(p.Timestamp)
		if window > 0 && age > window {
			continue
		}
		out = append(out, Aged{Age: age.Seconds(), Value: p.Value})
	}
	return out
}

// sample reads every directly sensed channel and derives the computed
// ones, without boundary rounding.
func (e *Engine) sample() (sensor.Reading, error) {
	now := e.now()
	values := make(map[sensor.Channel]float64, len(sensor.Channels()))
	var unsupported []sensor.Channel

	for _, ch := range sensor.Channels() {
		if sensor.MetaFor(ch).Derived {
			continue
		}
		v, err := sensor.Read(e.src, ch)
		switch {
		case err == nil:
			values[ch] = v
		case errors.Is(err, sensor.ErrUnsupported):
			unsupported = append(unsupported, ch)
		default:
			e.log.Debug().Err(err).Str("channel", string(ch)).Msg("sensor read failed, keeping last value")
			e.mu.RLock()
			last, ok := e.lastGood[ch]
			e.mu.RUnlock()
			if ok {
				values[ch] = last
			}
		}
	}

	// Unsupported channels (no sensor fitted) report 0, but only once at
	// least one real channel has delivered a value: alone they do not make
	// a reading.
	if len(values) == 0 {
		return sensor.Reading{}, ErrUnavailable
	}
	for _, ch := range unsupported {
		values[ch] = 0
	}

	if o2, ok := values[sensor.O2]; ok {
		he := values[sensor.Helium]
		values[sensor.N2] = 100 - o2 - he
	}

	e.mu.Lock()
	for ch, v := range values {
		e.lastGood[ch] = v
	}
	e.mu.Unlock()

	return sensor.NewReading(now, values), nil
}
