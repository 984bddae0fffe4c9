// Command trimixd is the trimix analyzer daemon: it binds the sensor
// head (or the mock source), samples all channels into rolling history,
// and runs calibration procedures on request.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/magnus188/trimix-analyzer/pkg/calibration"
	"github.com/magnus188/trimix-analyzer/pkg/config"
	"github.com/magnus188/trimix-analyzer/pkg/history"
	"github.com/magnus188/trimix-analyzer/pkg/sensor"
	"github.com/magnus188/trimix-analyzer/pkg/store"
)

const (
	// trend emission cadence and resolution for the daemon log
	trendEvery  = 15
	trendPoints = 12
)

func main() {
	os.Exit(run())
}

// run owns all resources so deferred cleanup executes on every exit path,
// one-shot modes included.
func run() int {
	var (
		configFlag    = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag      = flag.Bool("mock", false, "Use mock sensors instead of hardware")
		calibrateFlag = flag.String("calibrate", "", "Run a one-shot calibration for a channel (e.g. o2) and exit")
		durationFlag  = flag.Duration("calibration-duration", 0, "Calibration run length (0 = configured default)")
		saveMixFlag   = flag.Bool("save-mix", false, "Save the current analyzed mix to the log and exit")
		notesFlag     = flag.String("notes", "", "Notes attached to -save-mix")
		debugFlag     = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if !*debugFlag {
		logger = logger.Level(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open store")
		return 1
	}
	defer st.Close()

	consts := sensor.NewConstants()
	restoreConstants(st, consts, logger)

	hwCfg := &sensor.HardwareConfig{
		ADCAddress:      cfg.Sensors.ADCAddress,
		EnvAddress:      cfg.Sensors.EnvAddress,
		EnvAddressAlt:   cfg.Sensors.EnvAddressAlt,
		ButtonPin:       cfg.Sensors.ButtonPin,
		CO2SerialPort:   cfg.Sensors.CO2SerialPort,
		CO2ZeroVoltage:  cfg.Sensors.CO2ZeroVoltage,
		CO2SpanVoltage:  cfg.Sensors.CO2SpanVoltage,
		CO2FullScalePPM: cfg.Sensors.CO2FullScalePPM,
	}

	var src sensor.Source
	if *mockFlag {
		logger.Info().Msg("using mock sensors (-mock)")
		src = sensor.NewMock(&cfg.Mock)
	} else {
		src = sensor.Select(hwCfg, &cfg.Mock, consts, logger)
	}
	defer src.Close()

	engine := history.New(src, &cfg.Sampling, logger)
	ctrl := calibration.New(src, consts, st, st, &cfg.Calibration, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *calibrateFlag != "" {
		return runCalibration(ctx, ctrl, sensor.Channel(*calibrateFlag), *durationFlag, logger)
	}
	if *saveMixFlag {
		return saveMix(engine, st, *notesFlag, logger)
	}

	if err := st.LogEvent("startup", map[string]any{"mock": *mockFlag}); err != nil {
		logger.Warn().Err(err).Msg("failed to log startup event")
	}
	logCalibrationReminders(ctrl, logger)

	go engine.Run(ctx, cfg.Sampling.Interval)

	// Print a snapshot on the sampling cadence until interrupted, plus a
	// compact downsampled trend every trendEvery ticks.
	ticker := time.NewTicker(cfg.Sampling.Interval)
	defer ticker.Stop()
	var (
		tickCount int
		trendBuf  []history.Aged
	)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return 0
		case <-ticker.C:
			reading, err := engine.Snapshot()
			if err != nil {
				logger.Warn().Err(err).Msg("snapshot unavailable")
				continue
			}
			ev := logger.Info()
			for ch, v := range reading.Values() {
				ev = ev.Float64(string(ch), v)
			}
			ev.Msg("reading")

			tickCount++
			if tickCount%trendEvery == 0 {
				trendBuf = logTrends(engine, trendBuf, logger)
			}
		}
	}
}

// logTrends emits a decimated series per gas channel so a log consumer can
// plot trends without replaying every sample. Returns the scratch buffer
// for reuse.
func logTrends(engine *history.Engine, buf []history.Aged, logger zerolog.Logger) []history.Aged {
	for _, ch := range []sensor.Channel{sensor.O2, sensor.Helium, sensor.CO2} {
		buf = history.Downsample(buf, engine.HistoryChronological(ch, 0), trendPoints)
		if len(buf) == 0 {
			continue
		}
		vals := make([]float64, len(buf))
		for i, p := range buf {
			vals[i] = p.Value
		}
		logger.Info().Str("channel", string(ch)).Floats64("trend", vals).Msg("trend")
	}
	return buf
}

// runCalibration performs one supervised run and reports the outcome.
func runCalibration(ctx context.Context, ctrl *calibration.Controller, ch sensor.Channel, duration time.Duration, logger zerolog.Logger) int {
	if !ch.Valid() {
		logger.Error().Str("channel", string(ch)).Msg("unknown channel")
		return 1
	}

	results, err := ctrl.Start(ctx, ch, duration)
	if err != nil {
		logger.Error().Err(err).Msg("could not start calibration")
		return 1
	}

	res, ok := <-results
	if !ok {
		logger.Warn().Msg("calibration cancelled")
		return 1
	}
	if res.Err != nil {
		logger.Error().Err(res.Err).Msg("calibration failed")
		return 1
	}

	fmt.Printf("calibrated %s: average %.6f V over %d samples\n", res.Channel, res.Average, res.SampleCount)
	return 0
}

// saveMix snapshots the current reading and appends the analyzed mix to
// the gas-mix log.
func saveMix(engine *history.Engine, st *store.Store, notes string, logger zerolog.Logger) int {
	reading, err := engine.Snapshot()
	if err != nil {
		logger.Error().Err(err).Msg("cannot read current mix")
		return 1
	}

	o2, _ := reading.Value(sensor.O2)
	he, _ := reading.Value(sensor.Helium)
	n2, _ := reading.Value(sensor.N2)
	mix := store.GasMix{O2: o2, He: he, N2: n2, Notes: notes}
	if err := st.SaveGasMix(mix); err != nil {
		logger.Error().Err(err).Msg("failed to save mix")
		return 1
	}

	fmt.Printf("saved mix: O2 %.1f%% / He %.1f%% / N2 %.1f%%\n", o2, he, n2)
	return 0
}

// restoreConstants reloads the last committed calibration constants so
// conversions survive process restarts.
func restoreConstants(st *store.Store, consts *sensor.Constants, logger zerolog.Logger) {
	recs, err := st.CalibrationHistory(sensor.O2, 1)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read calibration history")
		return
	}
	if len(recs) == 0 {
		return
	}
	consts.Set(sensor.O2, recs[0].RawAverage)
	logger.Info().
		Float64("v_air", recs[0].RawAverage).
		Time("calibrated", recs[0].Timestamp).
		Msg("restored o2 calibration")
}

// logCalibrationReminders surfaces overdue calibrations at startup.
func logCalibrationReminders(ctrl *calibration.Controller, logger zerolog.Logger) {
	if !ctrl.ReminderEnabled() {
		return
	}
	for _, ch := range []sensor.Channel{sensor.O2} {
		status, err := ctrl.Due(ch)
		if err != nil {
			logger.Warn().Err(err).Str("channel", string(ch)).Msg("calibration due check failed")
			continue
		}
		if !status.Due {
			continue
		}
		ev := logger.Warn().Str("channel", string(ch)).Int("interval_days", status.IntervalDays)
		if status.LastCalibration == nil {
			ev.Msg("sensor has never been calibrated")
			continue
		}
		ev.Int("days_overdue", status.DaysOverdue).
			Time("last_calibration", *status.LastCalibration).
			Msg("sensor calibration overdue")
	}
}
