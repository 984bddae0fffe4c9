package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

const (
	// mhz19BaudRate is fixed by the sensor.
	mhz19BaudRate = 9600
	// mhz19FrameLen is the length of every command and response frame.
	mhz19FrameLen = 9
)

// mhz19ReadCO2 is the "read gas concentration" command frame, checksum
// included.
var mhz19ReadCO2 = []byte{0xFF, 0x01, 0x86, 0x00, 0x00, 0x00, 0x00, 0x00, 0x79}

// mhz19DisableABC turns off the sensor's automatic baseline correction,
// which drifts badly indoors.
var mhz19DisableABC = []byte{0xFF, 0x01, 0x79, 0x00, 0x00, 0x00, 0x00, 0x00, 0x86}

// MHZ19 reads an MH-Z19C NDIR CO2 sensor over a serial port.
type MHZ19 struct {
	mu   sync.Mutex
	port serial.Port
	log  zerolog.Logger
}

// NewMHZ19 opens the sensor's serial port and disables automatic baseline
// correction.
func NewMHZ19(portName string, log zerolog.Logger) (*MHZ19, error) {
	mode := &serial.Mode{
		BaudRate: mhz19BaudRate,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(2 * time.Second); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	m := &MHZ19{port: port, log: log}

	if err := m.command(mhz19DisableABC); err != nil {
		// The sensor still measures with ABC on; keep going.
		m.log.Warn().Err(err).Msg("mh-z19c: could not disable automatic baseline correction")
	}

	return m, nil
}

// ReadCO2 returns the current CO2 concentration in ppm.
func (m *MHZ19) ReadCO2() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.port.Write(mhz19ReadCO2); err != nil {
		return 0, fmt.Errorf("failed to send read command: %w", err)
	}

	buf, err := m.readFrame()
	if err != nil {
		return 0, err
	}
	if buf[1] != 0x86 {
		return 0, fmt.Errorf("unexpected response frame % X", buf)
	}

	return int(buf[2])<<8 | int(buf[3]), nil
}

// Close closes the serial port.
func (m *MHZ19) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port.Close()
}

// command sends a frame and consumes the response.
func (m *MHZ19) command(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.port.Write(frame); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	_, err := m.readFrame()
	return err
}

// readFrame reads one 9-byte response frame and validates start byte and
// checksum. Callers must hold m.mu.
func (m *MHZ19) readFrame() ([]byte, error) {
	buf := make([]byte, mhz19FrameLen)
	read := 0
	for read < mhz19FrameLen {
		n, err := m.port.Read(buf[read:])
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("timeout reading response, got %d bytes", read)
		}
		read += n
	}

	if buf[0] != 0xFF {
		return nil, fmt.Errorf("unexpected start byte %#02x", buf[0])
	}
	if sum := mhz19Checksum(buf); sum != buf[8] {
		return nil, fmt.Errorf("checksum mismatch: got %#02x, want %#02x", buf[8], sum)
	}

	return buf, nil
}

// mhz19Checksum computes the frame checksum over bytes 1..7.
func mhz19Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[1:8] {
		sum += b
	}
	return 0xFF - sum + 1
}
