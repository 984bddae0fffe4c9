package calibration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnus188/trimix-analyzer/pkg/config"
	"github.com/magnus188/trimix-analyzer/pkg/sensor"
)

// recordedRun captures one RecordCalibration call.
type recordedRun struct {
	channel     sensor.Channel
	rawAverage  float64
	sampleCount int
}

// fakeRecorder is an in-memory persistence collaborator.
type fakeRecorder struct {
	mu      sync.Mutex
	records []recordedRun
	last    map[sensor.Channel]time.Time
	err     error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{last: make(map[sensor.Channel]time.Time)}
}

func (f *fakeRecorder) RecordCalibration(ch sensor.Channel, rawAverage float64, sampleCount int, ambientTemp *float64, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, recordedRun{channel: ch, rawAverage: rawAverage, sampleCount: sampleCount})
	f.last[ch] = time.Now()
	return nil
}

func (f *fakeRecorder) LastCalibration(ch sensor.Channel) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	ts, ok := f.last[ch]
	return ts, ok, nil
}

func (f *fakeRecorder) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeSettings is an in-memory settings collaborator.
type fakeSettings struct {
	ints   map[string]int
	bools  map[string]bool
	floats map[string]float64
}

func (f *fakeSettings) GetInt(category, key string, def int) int {
	if v, ok := f.ints[category+"/"+key]; ok {
		return v
	}
	return def
}

func (f *fakeSettings) GetBool(category, key string, def bool) bool {
	if v, ok := f.bools[category+"/"+key]; ok {
		return v
	}
	return def
}

func (f *fakeSettings) GetFloat(category, key string, def float64) float64 {
	if v, ok := f.floats[category+"/"+key]; ok {
		return v
	}
	return def
}

// seqSource feeds an incrementing raw O2 voltage: 1, 2, 3, ...
type seqSource struct {
	*sensor.Mock
	mu   sync.Mutex
	next float64
	fail bool
}

func (s *seqSource) OxygenVoltage() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, errors.New("adc timeout")
	}
	s.next++
	return s.next, nil
}

func newTestController(src sensor.Source, rec Recorder, settings Settings) (*Controller, *sensor.Constants) {
	consts := sensor.NewConstants()
	cfg := config.CalibrationConfig{
		Duration: 150 * time.Millisecond,
		Tick:     20 * time.Millisecond,
	}
	if settings == nil {
		settings = &fakeSettings{}
	}
	return New(src, consts, rec, settings, &cfg, zerolog.Nop()), consts
}

func drain(t *testing.T, results <-chan Result) (Result, bool) {
	t.Helper()
	select {
	case res, ok := <-results:
		if !ok {
			return Result{}, false
		}
		// Wait for the channel to close so the controller is back to Idle.
		select {
		case <-results:
		case <-time.After(time.Second):
			t.Fatal("result channel never closed")
		}
		return res, true
	case <-time.After(5 * time.Second):
		t.Fatal("calibration did not finish")
		return Result{}, false
	}
}

func TestController_SuccessfulRunCommitsMean(t *testing.T) {
	mock := sensor.NewMock(nil)
	mock.OverrideVoltage(sensor.O2, 0.0102)
	rec := newFakeRecorder()
	ctrl, consts := newTestController(mock, rec, nil)

	startedAt := time.Now()
	results, err := ctrl.Start(context.Background(), sensor.O2, 0)
	require.NoError(t, err)
	assert.Equal(t, Running, ctrl.State())

	res, ok := drain(t, results)
	require.True(t, ok)
	require.NoError(t, res.Err)

	assert.Equal(t, sensor.O2, res.Channel)
	assert.Greater(t, res.SampleCount, 0)
	assert.InDelta(t, 0.0102, res.Average, 1e-9)
	assert.InDelta(t, 0.0102, consts.VAir(), 1e-9)
	assert.Equal(t, Idle, ctrl.State())

	require.Equal(t, 1, rec.recordCount())
	assert.InDelta(t, 0.0102, rec.records[0].rawAverage, 1e-9)
	assert.Equal(t, res.SampleCount, rec.records[0].sampleCount)

	last, found, err := rec.LastCalibration(sensor.O2)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, last.Before(startedAt))
}

func TestController_AverageIsArithmeticMean(t *testing.T) {
	src := &seqSource{Mock: sensor.NewMock(nil)}
	rec := newFakeRecorder()
	ctrl, consts := newTestController(src, rec, nil)

	results, err := ctrl.Start(context.Background(), sensor.O2, 0)
	require.NoError(t, err)

	res, ok := drain(t, results)
	require.True(t, ok)
	require.NoError(t, res.Err)

	// Samples were 1..k, so the mean is (k+1)/2.
	k := float64(res.SampleCount)
	assert.InDelta(t, (k+1)/2, res.Average, 1e-9)
	assert.InDelta(t, res.Average, consts.VAir(), 1e-9)
}

func TestController_ZeroSamplesLeavesConstantUntouched(t *testing.T) {
	src := &seqSource{Mock: sensor.NewMock(nil), fail: true}
	rec := newFakeRecorder()
	ctrl, consts := newTestController(src, rec, nil)

	before := consts.VAir()

	results, err := ctrl.Start(context.Background(), sensor.O2, 0)
	require.NoError(t, err)

	res, ok := drain(t, results)
	require.True(t, ok)
	assert.ErrorIs(t, res.Err, ErrNoSamples)

	assert.Equal(t, before, consts.VAir())
	assert.Equal(t, 0, rec.recordCount())
	assert.Equal(t, Idle, ctrl.State())
}

func TestController_CancelMidRun(t *testing.T) {
	mock := sensor.NewMock(nil)
	mock.OverrideVoltage(sensor.O2, 0.0123)
	rec := newFakeRecorder()
	consts := sensor.NewConstants()
	cfg := config.CalibrationConfig{Duration: 30 * time.Second, Tick: 20 * time.Millisecond}
	ctrl := New(mock, consts, rec, &fakeSettings{}, &cfg, zerolog.Nop())

	before := consts.VAir()

	results, err := ctrl.Start(context.Background(), sensor.O2, 0)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, Running, ctrl.State())
	require.True(t, ctrl.Cancel())

	// Cancellation closes the channel without delivering a result.
	select {
	case _, ok := <-results:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("result channel not closed after cancel")
	}

	assert.Equal(t, Idle, ctrl.State())
	assert.Equal(t, before, consts.VAir())
	assert.Equal(t, 0, rec.recordCount())
}

func TestController_CancelWhenIdle(t *testing.T) {
	ctrl, _ := newTestController(sensor.NewMock(nil), newFakeRecorder(), nil)
	assert.False(t, ctrl.Cancel())
}

func TestController_StartWhileRunning(t *testing.T) {
	mock := sensor.NewMock(nil)
	mock.OverrideVoltage(sensor.O2, 0.01)
	rec := newFakeRecorder()
	consts := sensor.NewConstants()
	cfg := config.CalibrationConfig{Duration: 30 * time.Second, Tick: 20 * time.Millisecond}
	ctrl := New(mock, consts, rec, &fakeSettings{}, &cfg, zerolog.Nop())

	results, err := ctrl.Start(context.Background(), sensor.O2, 0)
	require.NoError(t, err)

	_, err = ctrl.Start(context.Background(), sensor.O2, 0)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.True(t, ctrl.Cancel())
	<-results
}

func TestController_Due(t *testing.T) {
	day := 24 * time.Hour
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		last            *time.Time
		intervalDays    int
		wantDue         bool
		wantDaysOverdue int
	}{
		{
			name:         "never calibrated",
			last:         nil,
			intervalDays: 30,
			wantDue:      true,
		},
		{
			name:         "29 days ago not due",
			last:         ptrTime(now.Add(-29 * day)),
			intervalDays: 30,
			wantDue:      false,
		},
		{
			name:            "exactly 30 days ago due with zero overdue",
			last:            ptrTime(now.Add(-30 * day)),
			intervalDays:    30,
			wantDue:         true,
			wantDaysOverdue: 0,
		},
		{
			name:            "40 days ago overdue by 10",
			last:            ptrTime(now.Add(-40 * day)),
			intervalDays:    30,
			wantDue:         true,
			wantDaysOverdue: 10,
		},
		{
			name:         "future timestamp not due",
			last:         ptrTime(now.Add(5 * day)),
			intervalDays: 30,
			wantDue:      false,
		},
		{
			name:            "custom interval",
			last:            ptrTime(now.Add(-90 * day)),
			intervalDays:    60,
			wantDue:         true,
			wantDaysOverdue: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFakeRecorder()
			if tt.last != nil {
				rec.last[sensor.O2] = *tt.last
			}
			settings := &fakeSettings{
				ints: map[string]int{"sensors/calibration_interval_days": tt.intervalDays},
			}
			ctrl, _ := newTestController(sensor.NewMock(nil), rec, settings)
			ctrl.now = func() time.Time { return now }

			status, err := ctrl.Due(sensor.O2)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDue, status.Due)
			assert.Equal(t, tt.wantDaysOverdue, status.DaysOverdue)
			assert.Equal(t, tt.intervalDays, status.IntervalDays)
			if tt.last == nil {
				assert.Nil(t, status.LastCalibration)
			} else {
				require.NotNil(t, status.LastCalibration)
				assert.Equal(t, *tt.last, *status.LastCalibration)
			}
		})
	}
}

func TestController_DueRecorderError(t *testing.T) {
	rec := newFakeRecorder()
	rec.err = errors.New("db closed")
	ctrl, _ := newTestController(sensor.NewMock(nil), rec, nil)

	_, err := ctrl.Due(sensor.O2)
	assert.Error(t, err)
}

func TestController_SettingsQueries(t *testing.T) {
	settings := &fakeSettings{
		bools:  map[string]bool{"sensors/auto_calibration_reminder": false},
		floats: map[string]float64{"sensors/o2_calibration_offset": 0.3},
	}
	ctrl, _ := newTestController(sensor.NewMock(nil), newFakeRecorder(), settings)

	assert.False(t, ctrl.ReminderEnabled())
	assert.Equal(t, 0.3, ctrl.Offset(sensor.O2))
	assert.Equal(t, 0.0, ctrl.Offset(sensor.Helium))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "completing", Completing.String())
	assert.Equal(t, "unknown", State(42).String())
}

func ptrTime(t time.Time) *time.Time { return &t }
