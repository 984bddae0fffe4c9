package sensor

import (
	"fmt"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// Hardware reads the physical sensor head: an ADS1115 ADC carrying the O2
// cell (channel 0) and the analog CO2 sensor (channel 1), a BME280 for
// temperature/pressure/humidity, the power button GPIO, and optionally an
// MH-Z19C NDIR CO2 sensor on a serial port.
type Hardware struct {
	cfg    *HardwareConfig
	consts *Constants
	log    zerolog.Logger

	bus    i2c.BusCloser
	o2Pin  ads1x15.PinADC
	co2Pin ads1x15.PinADC
	env    *bmxx80.Dev
	button gpio.PinIO
	co2ndi *MHZ19 // nil unless a serial port is configured
}

// HardwareConfig is the addressing and conversion subset the hardware
// source needs (mirrors config.SensorsConfig).
type HardwareConfig struct {
	ADCAddress      uint16
	EnvAddress      uint16
	EnvAddressAlt   uint16
	ButtonPin       string
	CO2SerialPort   string
	CO2ZeroVoltage  float64
	CO2SpanVoltage  float64
	CO2FullScalePPM float64
}

// NewHardware binds the sensor head. Any initialization failure is wrapped
// in a BindError so the selection policy can fall back to the mock source
// instead of aborting startup.
func NewHardware(cfg *HardwareConfig, consts *Constants, log zerolog.Logger) (*Hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, &BindError{Cause: fmt.Errorf("host init: %w", err)}
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, &BindError{Cause: fmt.Errorf("open i2c bus: %w", err)}
	}

	h := &Hardware{
		cfg:    cfg,
		consts: consts,
		log:    log,
		bus:    bus,
	}

	opts := ads1x15.DefaultOpts
	opts.I2cAddress = cfg.ADCAddress
	adc, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, &BindError{Cause: fmt.Errorf("bind ads1115 at %#x: %w", cfg.ADCAddress, err)}
	}

	// Gain 1 on the ADS1115 gives a ±4.096V input range.
	h.o2Pin, err = adc.PinForChannel(ads1x15.Channel0, 4096*physic.MilliVolt, 1*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		bus.Close()
		return nil, &BindError{Cause: fmt.Errorf("bind o2 adc channel: %w", err)}
	}
	h.co2Pin, err = adc.PinForChannel(ads1x15.Channel1, 4096*physic.MilliVolt, 1*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		bus.Close()
		return nil, &BindError{Cause: fmt.Errorf("bind co2 adc channel: %w", err)}
	}

	// The BME280 ships at 0x76 or 0x77 depending on the breakout.
	h.env, err = bmxx80.NewI2C(bus, cfg.EnvAddress, &bmxx80.DefaultOpts)
	if err != nil {
		h.log.Warn().Err(err).
			Uint16("address", cfg.EnvAddress).
			Uint16("fallback", cfg.EnvAddressAlt).
			Msg("environmental sensor not at primary address, trying fallback")
		h.env, err = bmxx80.NewI2C(bus, cfg.EnvAddressAlt, &bmxx80.DefaultOpts)
		if err != nil {
			bus.Close()
			return nil, &BindError{Cause: fmt.Errorf("bind bme280: %w", err)}
		}
	}

	h.button = gpioreg.ByName(cfg.ButtonPin)
	if h.button == nil {
		bus.Close()
		return nil, &BindError{Cause: fmt.Errorf("button pin %q not found", cfg.ButtonPin)}
	}
	if err := h.button.In(gpio.PullUp, gpio.NoEdge); err != nil {
		bus.Close()
		return nil, &BindError{Cause: fmt.Errorf("configure button pin: %w", err)}
	}

	if cfg.CO2SerialPort != "" {
		h.co2ndi, err = NewMHZ19(cfg.CO2SerialPort, log)
		if err != nil {
			bus.Close()
			return nil, &BindError{Cause: fmt.Errorf("bind mh-z19c on %s: %w", cfg.CO2SerialPort, err)}
		}
	}

	return h, nil
}

// OxygenVoltage reads the raw O2 cell output.
func (h *Hardware) OxygenVoltage() (float64, error) {
	return h.readPin(h.o2Pin)
}

// OxygenPercent converts the cell voltage against the last committed air
// reference: percent = v / vAir * 20.9.
func (h *Hardware) OxygenPercent() (float64, error) {
	v, err := h.OxygenVoltage()
	if err != nil {
		return 0, err
	}
	vAir := h.consts.VAir()
	if vAir <= 0 {
		return 0, fmt.Errorf("invalid o2 air reference %v", vAir)
	}
	return (v / vAir) * ReferenceO2Percent, nil
}

// HeliumPercent is unsupported on the current sensor head.
func (h *Hardware) HeliumPercent() (float64, error) {
	return 0, fmt.Errorf("%w: no helium sensor fitted", ErrUnsupported)
}

// CO2Voltage reads the analog CO2 sensor output.
func (h *Hardware) CO2Voltage() (float64, error) {
	return h.readPin(h.co2Pin)
}

// CO2PPM reads CO2 concentration: from the NDIR serial sensor when fitted,
// otherwise by normalizing the analog voltage over the configured span.
func (h *Hardware) CO2PPM() (float64, error) {
	if h.co2ndi != nil {
		ppm, err := h.co2ndi.ReadCO2()
		if err != nil {
			return 0, err
		}
		return float64(ppm), nil
	}
	v, err := h.CO2Voltage()
	if err != nil {
		return 0, err
	}
	span := h.cfg.CO2SpanVoltage - h.cfg.CO2ZeroVoltage
	if span <= 0 {
		return 0, fmt.Errorf("invalid co2 span %v", span)
	}
	normalized := (v - h.cfg.CO2ZeroVoltage) / span
	return normalized * h.cfg.CO2FullScalePPM, nil
}

// COPPM is unsupported on the current sensor head.
func (h *Hardware) COPPM() (float64, error) {
	return 0, fmt.Errorf("%w: no co sensor fitted", ErrUnsupported)
}

// TemperatureC reads the BME280 temperature.
func (h *Hardware) TemperatureC() (float64, error) {
	var env physic.Env
	if err := h.env.Sense(&env); err != nil {
		return 0, fmt.Errorf("sense environment: %w", err)
	}
	return env.Temperature.Celsius(), nil
}

// PressureBar reads the BME280 pressure normalized to bar.
func (h *Hardware) PressureBar() (float64, error) {
	var env physic.Env
	if err := h.env.Sense(&env); err != nil {
		return 0, fmt.Errorf("sense environment: %w", err)
	}
	pascal := float64(env.Pressure) / float64(physic.Pascal)
	return pascal / 100000.0, nil
}

// HumidityPercent reads the BME280 relative humidity.
func (h *Hardware) HumidityPercent() (float64, error) {
	var env physic.Env
	if err := h.env.Sense(&env); err != nil {
		return 0, fmt.Errorf("sense environment: %w", err)
	}
	return float64(env.Humidity) / float64(physic.PercentRH), nil
}

// ButtonPressed reads the power button. The pin is pulled up and the
// button shorts to ground, so pressed reads low.
func (h *Hardware) ButtonPressed() (bool, error) {
	return h.button.Read() == gpio.Low, nil
}

// Close releases the ADC channels, the serial CO2 sensor, and the I2C bus.
func (h *Hardware) Close() error {
	if h.o2Pin != nil {
		h.o2Pin.Halt()
	}
	if h.co2Pin != nil {
		h.co2Pin.Halt()
	}
	if h.env != nil {
		h.env.Halt()
	}
	if h.co2ndi != nil {
		if err := h.co2ndi.Close(); err != nil {
			h.log.Warn().Err(err).Msg("closing co2 serial sensor")
		}
	}
	if h.bus != nil {
		return h.bus.Close()
	}
	return nil
}

func (h *Hardware) readPin(pin ads1x15.PinADC) (float64, error) {
	reading, err := pin.Read()
	if err != nil {
		return 0, fmt.Errorf("adc read: %w", err)
	}
	return float64(reading.V) / float64(physic.Volt), nil
}
