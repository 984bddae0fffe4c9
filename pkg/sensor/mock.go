package sensor

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/magnus188/trimix-analyzer/pkg/config"
)

// Mock simulates the sensor head for development and tests. Every channel
// is generated as a baseline plus bounded noise, clamped into the channel's
// valid range by construction. Temperature drifts on a slow daily cycle.
type Mock struct {
	cfg *config.MockConfig

	mu               sync.Mutex
	rng              *rand.Rand
	startTime        time.Time
	buttonState      bool
	overrides        map[Channel]float64
	voltageOverrides map[Channel]float64
}

// NewMock creates a new mock source instance.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default()
		cfg = &def.Mock
	}

	return &Mock{
		cfg:              cfg,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		startTime:        time.Now(),
		overrides:        make(map[Channel]float64),
		voltageOverrides: make(map[Channel]float64),
	}
}

// Override pins a channel's converted value until changed or cleared.
// Used by tests that need deterministic readings.
func (m *Mock) Override(ch Channel, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[ch] = value
}

// OverrideVoltage pins a channel's raw voltage until changed or cleared.
func (m *Mock) OverrideVoltage(ch Channel, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voltageOverrides[ch] = v
}

// ClearOverrides removes all pinned values.
func (m *Mock) ClearOverrides() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = make(map[Channel]float64)
	m.voltageOverrides = make(map[Channel]float64)
}

// OxygenVoltage simulates the O2 cell output.
func (m *Mock) OxygenVoltage() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.voltageOverrides[O2]; ok {
		return v, nil
	}
	v := m.cfg.O2VoltageV + m.noise(m.cfg.O2NoiseV)
	return math.Max(v, 0), nil
}

// OxygenPercent converts the simulated cell voltage against the mock's own
// fixed air reference.
func (m *Mock) OxygenPercent() (float64, error) {
	if v, ok := m.override(O2); ok {
		return v, nil
	}
	voltage, err := m.OxygenVoltage()
	if err != nil {
		return 0, err
	}
	return clampToRange(O2, (voltage/m.cfg.O2VoltageV)*ReferenceO2Percent), nil
}

// HeliumPercent is 0 in ambient air; tests pin mixes via Override.
func (m *Mock) HeliumPercent() (float64, error) {
	if v, ok := m.override(Helium); ok {
		return v, nil
	}
	return 0, nil
}

// CO2Voltage simulates the CO2 sensor analog output.
func (m *Mock) CO2Voltage() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.voltageOverrides[CO2]; ok {
		return v, nil
	}
	v := m.cfg.CO2VoltageV + m.noise(m.cfg.CO2NoiseV)
	return math.Max(v, 0), nil
}

// CO2PPM converts the simulated voltage over a 0-3.3V, 0-5000ppm span.
func (m *Mock) CO2PPM() (float64, error) {
	if v, ok := m.override(CO2); ok {
		return v, nil
	}
	voltage, err := m.CO2Voltage()
	if err != nil {
		return 0, err
	}
	return clampToRange(CO2, (voltage/3.3)*5000), nil
}

// COPPM is 0 unless pinned; the current hardware has no CO sensor either.
func (m *Mock) COPPM() (float64, error) {
	if v, ok := m.override(CO); ok {
		return v, nil
	}
	return 0, nil
}

// TemperatureC simulates room temperature with a slow daily cycle.
func (m *Mock) TemperatureC() (float64, error) {
	if v, ok := m.override(Temperature); ok {
		return v, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	elapsed := time.Since(m.startTime).Seconds()
	dailyCycle := 2 + 1.5*math.Sin(elapsed/86400*2*math.Pi)
	return clampToRange(Temperature, m.cfg.TemperatureC+dailyCycle+m.noise(m.cfg.TempNoiseC)), nil
}

// PressureBar simulates atmospheric pressure.
func (m *Mock) PressureBar() (float64, error) {
	if v, ok := m.override(Pressure); ok {
		return v, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return clampToRange(Pressure, m.cfg.PressureBar+m.noise(m.cfg.PressureNoiseBar)), nil
}

// HumidityPercent simulates relative humidity.
func (m *Mock) HumidityPercent() (float64, error) {
	if v, ok := m.override(Humidity); ok {
		return v, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return clampToRange(Humidity, m.cfg.HumidityPct+m.noise(m.cfg.HumidityNoisePct)), nil
}

// ButtonPressed flips state very rarely to exercise button handling.
func (m *Mock) ButtonPressed() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng.Float64() < m.cfg.ButtonChance {
		m.buttonState = !m.buttonState
	}
	return m.buttonState, nil
}

// Close is a no-op; the mock holds no transport.
func (m *Mock) Close() error { return nil }

// override returns the pinned value for a channel, if any.
func (m *Mock) override(ch Channel) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.overrides[ch]
	return v, ok
}

// noise returns a uniform sample in [-amplitude, amplitude].
// Callers must hold m.mu.
func (m *Mock) noise(amplitude float64) float64 {
	return (m.rng.Float64()*2 - 1) * amplitude
}

func clampToRange(ch Channel, v float64) float64 {
	meta := MetaFor(ch)
	if v < meta.Min {
		return meta.Min
	}
	if v > meta.Max {
		return meta.Max
	}
	return v
}
