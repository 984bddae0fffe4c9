package sensor

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/magnus188/trimix-analyzer/pkg/config"
)

// Environment signals read once at selection time.
const (
	EnvMockSensors = "TRIMIX_MOCK_SENSORS"
	EnvEnvironment = "TRIMIX_ENVIRONMENT"
)

var (
	selectMu sync.Mutex
	selected Source

	// newHardware and detectPi are swapped out by tests that need bind
	// failures or a fake platform.
	newHardware = func(cfg *HardwareConfig, consts *Constants, log zerolog.Logger) (Source, error) {
		return NewHardware(cfg, consts, log)
	}
	detectPi = isRaspberryPi
)

// Select resolves the process-wide sensor source once and caches it.
// Mock mode or a development environment binds the mock source directly;
// otherwise the hardware source is attempted, with fallback to mock on any
// bind failure. Re-resolution is not supported mid-process; tests reset
// the cache with ResetSelection.
func Select(hwCfg *HardwareConfig, mockCfg *config.MockConfig, consts *Constants, log zerolog.Logger) Source {
	selectMu.Lock()
	defer selectMu.Unlock()

	if selected != nil {
		return selected
	}

	if forceMock() {
		log.Info().Msg("using mock sensors (environment signal)")
		selected = NewMock(mockCfg)
		return selected
	}

	if !detectPi() {
		log.Info().Msg("using mock sensors (not running on instrument hardware)")
		selected = NewMock(mockCfg)
		return selected
	}

	hw, err := newHardware(hwCfg, consts, log)
	if err != nil {
		log.Warn().Err(err).Msg("hardware sensors unavailable, falling back to mock sensors")
		selected = NewMock(mockCfg)
		return selected
	}

	log.Info().Msg("using hardware sensors")
	selected = hw
	return selected
}

// ResetSelection clears the cached source. Test use only.
func ResetSelection() {
	selectMu.Lock()
	defer selectMu.Unlock()
	selected = nil
}

// forceMock reports whether an environment signal explicitly requests the
// mock source. "1"/"true"/"yes" are truthy, "0"/"false"/"no" falsy,
// anything else falls through to hardware auto-detection.
func forceMock() bool {
	if v, ok := parseBoolSignal(os.Getenv(EnvMockSensors)); ok && v {
		return true
	}
	return strings.EqualFold(os.Getenv(EnvEnvironment), "development")
}

// parseBoolSignal interprets a boolean-ish environment value. ok is false
// when the value is unset or unrecognized.
func parseBoolSignal(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	default:
		return false, false
	}
}

// isRaspberryPi detects the instrument SBC by its Broadcom processor.
func isRaspberryPi() bool {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return false
	}
	s := string(data)
	return strings.Contains(s, "BCM") || strings.Contains(s, "Raspberry Pi")
}
