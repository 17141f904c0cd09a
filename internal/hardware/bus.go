// Package hardware provides register-level access to the codec.
// It defines the Bus interface implemented by the I2C, serial-bridge and mock
// transports, and RegMap, the cached register access port layered on top.
package hardware

import "context"

// Register is a codec register address.
type Register = uint16

// Bus is raw, uncached access to numbered 8-bit codec registers.
// Implementations must be safe for concurrent use.
type Bus interface {
	// Read reads a single register.
	Read(ctx context.Context, reg Register) (byte, error)

	// Write writes a single register.
	Write(ctx context.Context, reg Register, val byte) error
}

// HardwareError is returned when a simulated hardware operation fails.
type HardwareError struct {
	msg string
}

func (e HardwareError) Error() string { return e.msg }

// ErrHardware creates a new hardware error.
func ErrHardware(msg string) error { return HardwareError{msg: msg} }
