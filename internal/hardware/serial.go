package hardware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// Serial bridge framing. Each request is a command byte, the register address
// big-endian, an optional data byte and a '\n' terminator. Writes are
// acknowledged with bridgeAck; reads answer with the register value.
const (
	bridgeCmdRead  = 'R'
	bridgeCmdWrite = 'W'
	bridgeAck      = 'K'
	bridgeEnd      = '\n'
)

// SerialBus is a Bus over a UART register bridge, used on bring-up boards
// where the codec's control port is relayed by a microcontroller.
type SerialBus struct {
	mu   sync.Mutex
	dev  string
	port io.ReadWriteCloser
}

// OpenSerialBus opens the bridge at dev (e.g. "/dev/ttyUSB0") at baud.
func OpenSerialBus(dev string, baud int) (*SerialBus, error) {
	port, err := serial.Open(dev, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", dev, err)
	}
	slog.Debug("serial: register bridge opened", "device", dev, "baud", baud)
	return &SerialBus{dev: dev, port: port}, nil
}

// NewSerialBusFrom wraps an already-open bridge stream.
func NewSerialBusFrom(name string, port io.ReadWriteCloser) *SerialBus {
	return &SerialBus{dev: name, port: port}
}

func (b *SerialBus) Read(ctx context.Context, reg Register) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.port.Write([]byte{bridgeCmdRead, byte(reg >> 8), byte(reg), bridgeEnd}); err != nil {
		return 0, fmt.Errorf("serial: %s read request reg=0x%03x: %w", b.dev, reg, err)
	}
	var resp [1]byte
	if _, err := io.ReadFull(b.port, resp[:]); err != nil {
		return 0, fmt.Errorf("serial: %s read reply reg=0x%03x: %w", b.dev, reg, err)
	}
	return resp[0], nil
}

func (b *SerialBus) Write(ctx context.Context, reg Register, val byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.port.Write([]byte{bridgeCmdWrite, byte(reg >> 8), byte(reg), val, bridgeEnd}); err != nil {
		return fmt.Errorf("serial: %s write reg=0x%03x: %w", b.dev, reg, err)
	}
	var ack [1]byte
	if _, err := io.ReadFull(b.port, ack[:]); err != nil {
		return fmt.Errorf("serial: %s write ack reg=0x%03x: %w", b.dev, reg, err)
	}
	if ack[0] != bridgeAck {
		return fmt.Errorf("serial: %s write reg=0x%03x: bad ack 0x%02x", b.dev, reg, ack[0])
	}
	return nil
}

// Close closes the underlying port.
func (b *SerialBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port.Close()
}
