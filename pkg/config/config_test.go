package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, uint16(0x48), cfg.Sensors.ADCAddress)
	assert.Equal(t, uint16(0x76), cfg.Sensors.EnvAddress)
	assert.Equal(t, uint16(0x77), cfg.Sensors.EnvAddressAlt)
	assert.Equal(t, "GPIO18", cfg.Sensors.ButtonPin)
	assert.Equal(t, float64(3.3), cfg.Sensors.CO2SpanVoltage)
	assert.Equal(t, float64(5000), cfg.Sensors.CO2FullScalePPM)
	assert.Equal(t, 2*time.Second, cfg.Sampling.Interval)
	assert.Equal(t, 60, cfg.Sampling.HistoryCapacity)
	assert.Equal(t, 30*time.Second, cfg.Calibration.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Calibration.Tick)
	assert.Equal(t, 30, cfg.Calibration.IntervalDays)
	assert.Equal(t, "trimix.db", cfg.Store.Path)
	assert.Equal(t, float64(0.0095), cfg.Mock.O2VoltageV)
	assert.Equal(t, float64(1.01325), cfg.Mock.PressureBar)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, uint16(0x48), cfg.Sensors.ADCAddress)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
sensors:
  adc_address: 0x49
  env_address: 0x77
  env_address_alt: 0x76
  button_pin: "GPIO23"
  co2_serial_port: "/dev/ttyAMA0"
  co2_span_voltage: 2.5
  co2_full_scale_ppm: 2000

sampling:
  interval: 1s
  history_capacity: 120

calibration:
  duration: 15s
  tick: 250ms
  interval_days: 60

store:
  path: "/var/lib/trimix/trimix.db"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, uint16(0x49), cfg.Sensors.ADCAddress)
	assert.Equal(t, uint16(0x77), cfg.Sensors.EnvAddress)
	assert.Equal(t, "GPIO23", cfg.Sensors.ButtonPin)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Sensors.CO2SerialPort)
	assert.Equal(t, float64(2.5), cfg.Sensors.CO2SpanVoltage)
	assert.Equal(t, float64(2000), cfg.Sensors.CO2FullScalePPM)
	assert.Equal(t, time.Second, cfg.Sampling.Interval)
	assert.Equal(t, 120, cfg.Sampling.HistoryCapacity)
	assert.Equal(t, 15*time.Second, cfg.Calibration.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Calibration.Tick)
	assert.Equal(t, 60, cfg.Calibration.IntervalDays)
	assert.Equal(t, "/var/lib/trimix/trimix.db", cfg.Store.Path)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
sampling:
  interval: 5s
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, 5*time.Second, cfg.Sampling.Interval)
	assert.Equal(t, 60, cfg.Sampling.HistoryCapacity)     // default
	assert.Equal(t, uint16(0x48), cfg.Sensors.ADCAddress) // default
	assert.Equal(t, 30*time.Second, cfg.Calibration.Duration)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Sensors.ButtonPin = "GPIO27"
	cfg.Sampling.HistoryCapacity = 90

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	// Load it back and verify
	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "GPIO27", loaded.Sensors.ButtonPin)
	assert.Equal(t, 90, loaded.Sampling.HistoryCapacity)
}

func TestEnsureDefaults_ZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.ensureDefaults()

	def := Default()
	assert.Equal(t, def.Sensors.ADCAddress, cfg.Sensors.ADCAddress)
	assert.Equal(t, def.Sampling.Interval, cfg.Sampling.Interval)
	assert.Equal(t, def.Calibration.IntervalDays, cfg.Calibration.IntervalDays)
	assert.Equal(t, def.Store.Path, cfg.Store.Path)
	assert.Equal(t, def.Mock.O2VoltageV, cfg.Mock.O2VoltageV)
}
