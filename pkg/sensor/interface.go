package sensor

import (
	"errors"
	"fmt"
)

// Source is the capability set every sensor backend implements. Each read
// returns one fresh value with no side effects beyond the hardware I/O
// needed to take it. Implementations must be safe to call at arbitrary
// frequency; rate limiting is the caller's concern.
//
// A channel the backend has no sensor for returns ErrUnsupported; transport
// failures return the underlying error. Neither must crash a polling loop.
type Source interface {
	// Raw signals, used by the calibration controller.
	OxygenVoltage() (float64, error)
	CO2Voltage() (float64, error)

	// Converted physical values.
	OxygenPercent() (float64, error)
	HeliumPercent() (float64, error)
	CO2PPM() (float64, error)
	COPPM() (float64, error)
	TemperatureC() (float64, error)
	PressureBar() (float64, error)
	HumidityPercent() (float64, error)

	// ButtonPressed reports the physical power button state (active low
	// on hardware).
	ButtonPressed() (bool, error)

	Close() error
}

var _ Source = (*Mock)(nil)
var _ Source = (*Hardware)(nil)

// ErrUnsupported marks a channel the source has no sensor for. The history
// engine maps unsupported channels to 0 by default.
var ErrUnsupported = errors.New("channel not supported by source")

// BindError wraps a hardware initialization failure. The source selection
// policy recovers from it by falling back to the mock source.
type BindError struct {
	Cause error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("sensor hardware bind failed: %v", e.Cause)
}

func (e *BindError) Unwrap() error { return e.Cause }

// RawVoltage reads the raw signal backing a channel. Only channels with a
// voltage-based conversion have one.
func RawVoltage(s Source, ch Channel) (float64, error) {
	switch ch {
	case O2:
		return s.OxygenVoltage()
	case CO2:
		return s.CO2Voltage()
	default:
		return 0, fmt.Errorf("%w: no raw signal for %q", ErrUnsupported, ch)
	}
}

// Read pulls one converted value for a directly sensed channel.
func Read(s Source, ch Channel) (float64, error) {
	switch ch {
	case O2:
		return s.OxygenPercent()
	case Helium:
		return s.HeliumPercent()
	case CO2:
		return s.CO2PPM()
	case CO:
		return s.COPPM()
	case Temperature:
		return s.TemperatureC()
	case Pressure:
		return s.PressureBar()
	case Humidity:
		return s.HumidityPercent()
	default:
		return 0, fmt.Errorf("%w: %q is not directly sensed", ErrUnsupported, ch)
	}
}
