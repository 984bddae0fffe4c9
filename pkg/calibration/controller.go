// Package calibration runs supervised averaging procedures against a
// sensor channel's raw signal and answers calibration due-date queries.
package calibration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/magnus188/trimix-analyzer/pkg/config"
	"github.com/magnus188/trimix-analyzer/pkg/sensor"
)

// State is the controller's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Completing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completing:
		return "completing"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	// Callers treat it as a no-op warning, not a crash.
	ErrAlreadyRunning = errors.New("calibration already running")

	// ErrNoSamples marks a run during which no raw reading succeeded. The
	// calibration constant is left untouched.
	ErrNoSamples = errors.New("calibration collected no samples")
)

// Recorder is the persistence collaborator. It is authoritative for
// calibration timestamps; the controller caches nothing across runs.
type Recorder interface {
	RecordCalibration(ch sensor.Channel, rawAverage float64, sampleCount int, ambientTemp *float64, notes string) error
	LastCalibration(ch sensor.Channel) (ts time.Time, ok bool, err error)
}

// Settings is the settings collaborator, read lazily at the start of each
// query or run.
type Settings interface {
	GetInt(category, key string, def int) int
	GetBool(category, key string, def bool) bool
	GetFloat(category, key string, def float64) float64
}

// Result reports the outcome of a calibration run with enough detail for
// a meaningful confirmation display.
type Result struct {
	Channel     sensor.Channel
	Average     float64
	SampleCount int
	Err         error
}

// DueStatus answers an "is calibration overdue" query.
type DueStatus struct {
	Due             bool
	DaysOverdue     int
	LastCalibration *time.Time // nil when never calibrated
	IntervalDays    int
}

// Controller supervises calibration runs: Idle -> Running -> Completing ->
// Idle, with cancellation back to Idle from Running. Only the completion
// step writes the shared calibration constant.
type Controller struct {
	src      sensor.Source
	consts   *sensor.Constants
	recorder Recorder
	settings Settings
	log      zerolog.Logger

	duration time.Duration // default run length
	tick     time.Duration // raw sampling sub-interval

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	now func() time.Time
}

// New creates a controller over the given source and collaborators.
func New(src sensor.Source, consts *sensor.Constants, recorder Recorder, settings Settings, cfg *config.CalibrationConfig, log zerolog.Logger) *Controller {
	duration := cfg.Duration
	if duration <= 0 {
		duration = config.Default().Calibration.Duration
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = config.Default().Calibration.Tick
	}

	return &Controller{
		src:      src,
		consts:   consts,
		recorder: recorder,
		settings: settings,
		log:      log,
		duration: duration,
		tick:     tick,
		state:    Idle,
		now:      time.Now,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins a calibration run against a channel's raw signal. The
// result channel delivers exactly one Result on completion or failure and
// is closed without a value when the run is cancelled. duration <= 0 uses
// the configured default. Returns ErrAlreadyRunning unless Idle.
func (c *Controller) Start(ctx context.Context, ch sensor.Channel, duration time.Duration) (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		c.log.Warn().Str("channel", string(ch)).Msg("calibration start ignored, run already in progress")
		return nil, ErrAlreadyRunning
	}

	if duration <= 0 {
		duration = c.duration
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = Running

	results := make(chan Result, 1)
	go c.run(runCtx, ch, duration, results)

	c.log.Info().Str("channel", string(ch)).Dur("duration", duration).Msg("calibration started")
	return results, nil
}

// Cancel stops a running calibration immediately, discarding collected
// samples and leaving the calibration constant untouched. Returns false if
// no run was in progress.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running || c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}

// Due reports whether a channel's calibration is overdue against the
// configured interval. A never-calibrated channel is always due with zero
// days overdue. A timestamp in the future is treated as not due.
func (c *Controller) Due(ch sensor.Channel) (DueStatus, error) {
	interval := c.settings.GetInt("sensors", "calibration_interval_days", 30)
	status := DueStatus{IntervalDays: interval}

	last, ok, err := c.recorder.LastCalibration(ch)
	if err != nil {
		return status, err
	}
	if !ok {
		status.Due = true
		return status, nil
	}

	status.LastCalibration = &last
	daysSince := int(c.now().Sub(last).Hours() / 24)
	if daysSince < 0 {
		// Clock skew: a future calibration date is not overdue.
		return status, nil
	}
	if daysSince >= interval {
		status.Due = true
		status.DaysOverdue = daysSince - interval
	}
	return status, nil
}

// ReminderEnabled reports whether automatic calibration reminders are on.
func (c *Controller) ReminderEnabled() bool {
	return c.settings.GetBool("sensors", "auto_calibration_reminder", true)
}

// Offset returns the configured display offset for a channel. Stored per
// channel; the conversion path does not apply it.
func (c *Controller) Offset(ch sensor.Channel) float64 {
	return c.settings.GetFloat("sensors", string(ch)+"_calibration_offset", 0)
}

// run samples the raw signal every tick until the duration elapses, then
// completes. Cancellation discards the accumulator.
func (c *Controller) run(ctx context.Context, ch sensor.Channel, duration time.Duration, results chan<- Result) {
	start := c.now()
	var samples []float64

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.finish()
			c.log.Info().Str("channel", string(ch)).Int("samples", len(samples)).Msg("calibration cancelled")
			close(results)
			return

		case <-ticker.C:
			v, err := sensor.RawVoltage(c.src, ch)
			if err != nil {
				c.log.Warn().Err(err).Str("channel", string(ch)).Msg("raw read failed during calibration")
			} else {
				samples = append(samples, v)
			}

			if c.now().Sub(start) >= duration {
				c.complete(ch, samples, results)
				return
			}
		}
	}
}

// complete averages the accumulator, commits the new constant, and records
// the run. With zero samples the constant is left unchanged and the run is
// reported failed.
func (c *Controller) complete(ch sensor.Channel, samples []float64, results chan<- Result) {
	c.mu.Lock()
	c.state = Completing
	c.mu.Unlock()

	defer close(results)
	defer c.finish()

	if len(samples) == 0 {
		c.log.Error().Str("channel", string(ch)).Msg("calibration failed: no samples collected")
		results <- Result{Channel: ch, Err: ErrNoSamples}
		return
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	c.consts.Set(ch, mean)

	var ambient *float64
	if t, err := c.src.TemperatureC(); err == nil {
		ambient = &t
	}
	if err := c.recorder.RecordCalibration(ch, mean, len(samples), ambient, ""); err != nil {
		c.log.Error().Err(err).Str("channel", string(ch)).Msg("failed to persist calibration record")
	}

	c.log.Info().
		Str("channel", string(ch)).
		Float64("average", mean).
		Int("samples", len(samples)).
		Msg("calibration complete")

	results <- Result{Channel: ch, Average: mean, SampleCount: len(samples)}
}

// finish returns the controller to Idle and drops the run's cancel func.
func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	c.cancel = nil
}
