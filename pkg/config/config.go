package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the analyzer configuration.
type Config struct {
	Sensors     SensorsConfig     `yaml:"sensors"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Store       StoreConfig       `yaml:"store"`
	Mock        MockConfig        `yaml:"mock"`
}

// SensorsConfig contains hardware addressing and conversion parameters.
type SensorsConfig struct {
	ADCAddress    uint16 `yaml:"adc_address"`     // ADS1115, O2 on channel 0, CO2 on channel 1
	EnvAddress    uint16 `yaml:"env_address"`     // BME280 primary address
	EnvAddressAlt uint16 `yaml:"env_address_alt"` // BME280 fallback address
	ButtonPin     string `yaml:"button_pin"`      // power button GPIO, pull-up, active low

	// Optional MH-Z19C NDIR CO2 sensor. When a port is set, CO2 ppm comes
	// from the serial sensor instead of the ADC conversion.
	CO2SerialPort string `yaml:"co2_serial_port"`

	CO2ZeroVoltage  float64 `yaml:"co2_zero_voltage"`   // ADC voltage at 0 ppm
	CO2SpanVoltage  float64 `yaml:"co2_span_voltage"`   // ADC voltage at full scale
	CO2FullScalePPM float64 `yaml:"co2_full_scale_ppm"` // ppm at span voltage
}

// SamplingConfig contains the history engine parameters.
type SamplingConfig struct {
	Interval        time.Duration `yaml:"interval"`         // record cadence
	HistoryCapacity int           `yaml:"history_capacity"` // ring buffer size per channel
}

// CalibrationConfig contains calibration run parameters.
type CalibrationConfig struct {
	Duration     time.Duration `yaml:"duration"`      // length of an averaging run
	Tick         time.Duration `yaml:"tick"`          // raw sampling sub-interval
	IntervalDays int           `yaml:"interval_days"` // default reminder interval
}

// StoreConfig contains persistence parameters.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MockConfig contains simulated sensor parameters: a baseline and a noise
// amplitude per channel.
type MockConfig struct {
	O2VoltageV       float64 `yaml:"o2_voltage_v"`
	O2NoiseV         float64 `yaml:"o2_noise_v"`
	CO2VoltageV      float64 `yaml:"co2_voltage_v"`
	CO2NoiseV        float64 `yaml:"co2_noise_v"`
	TemperatureC     float64 `yaml:"temperature_c"`
	TempNoiseC       float64 `yaml:"temp_noise_c"`
	PressureBar      float64 `yaml:"pressure_bar"`
	PressureNoiseBar float64 `yaml:"pressure_noise_bar"`
	HumidityPct      float64 `yaml:"humidity_pct"`
	HumidityNoisePct float64 `yaml:"humidity_noise_pct"`
	ButtonChance     float64 `yaml:"button_chance"` // probability of a toggle per read
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Sensors: SensorsConfig{
			ADCAddress:      0x48,
			EnvAddress:      0x76,
			EnvAddressAlt:   0x77,
			ButtonPin:       "GPIO18",
			CO2ZeroVoltage:  0.0,
			CO2SpanVoltage:  3.3,
			CO2FullScalePPM: 5000,
		},
		Sampling: SamplingConfig{
			Interval:        2 * time.Second,
			HistoryCapacity: 60,
		},
		Calibration: CalibrationConfig{
			Duration:     30 * time.Second,
			Tick:         500 * time.Millisecond,
			IntervalDays: 30,
		},
		Store: StoreConfig{
			Path: "trimix.db",
		},
		Mock: MockConfig{
			O2VoltageV:       0.0095, // ~20.9% O2 in air
			O2NoiseV:         0.0002,
			CO2VoltageV:      0.4, // ~600 ppm ambient
			CO2NoiseV:        0.1,
			TemperatureC:     20.0,
			TempNoiseC:       0.5,
			PressureBar:      1.01325, // one atmosphere
			PressureNoiseBar: 0.002,
			HumidityPct:      45.0,
			HumidityNoisePct: 5.0,
			ButtonChance:     0.001,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Sensors.ADCAddress == 0 {
		c.Sensors.ADCAddress = def.Sensors.ADCAddress
	}
	if c.Sensors.EnvAddress == 0 {
		c.Sensors.EnvAddress = def.Sensors.EnvAddress
	}
	if c.Sensors.EnvAddressAlt == 0 {
		c.Sensors.EnvAddressAlt = def.Sensors.EnvAddressAlt
	}
	if c.Sensors.ButtonPin == "" {
		c.Sensors.ButtonPin = def.Sensors.ButtonPin
	}
	if c.Sensors.CO2SpanVoltage == 0 {
		c.Sensors.CO2SpanVoltage = def.Sensors.CO2SpanVoltage
	}
	if c.Sensors.CO2FullScalePPM == 0 {
		c.Sensors.CO2FullScalePPM = def.Sensors.CO2FullScalePPM
	}

	if c.Sampling.Interval == 0 {
		c.Sampling.Interval = def.Sampling.Interval
	}
	if c.Sampling.HistoryCapacity == 0 {
		c.Sampling.HistoryCapacity = def.Sampling.HistoryCapacity
	}

	if c.Calibration.Duration == 0 {
		c.Calibration.Duration = def.Calibration.Duration
	}
	if c.Calibration.Tick == 0 {
		c.Calibration.Tick = def.Calibration.Tick
	}
	if c.Calibration.IntervalDays == 0 {
		c.Calibration.IntervalDays = def.Calibration.IntervalDays
	}

	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}

	if c.Mock.O2VoltageV == 0 {
		c.Mock.O2VoltageV = def.Mock.O2VoltageV
	}
	if c.Mock.CO2VoltageV == 0 {
		c.Mock.CO2VoltageV = def.Mock.CO2VoltageV
	}
	if c.Mock.TemperatureC == 0 {
		c.Mock.TemperatureC = def.Mock.TemperatureC
	}
	if c.Mock.PressureBar == 0 {
		c.Mock.PressureBar = def.Mock.PressureBar
	}
	if c.Mock.HumidityPct == 0 {
		c.Mock.HumidityPct = def.Mock.HumidityPct
	}
}
