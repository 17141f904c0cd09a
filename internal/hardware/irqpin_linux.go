//go:build linux

package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgeWait bounds each WaitForEdge call so Watch notices cancellation.
const edgeWait = 100 * time.Millisecond

// IRQPin is the codec's active-low interrupt output wired to a host GPIO.
type IRQPin struct {
	name string
	pin  gpio.PinIO
}

// OpenIRQPin configures the named GPIO (BCM naming, e.g. "GPIO17") as a
// pulled-up input that reports falling edges.
func OpenIRQPin(name string) (*IRQPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init failed: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio: failed to open %s (codec IRQ)", name)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("gpio: configure %s for edges: %w", name, err)
	}
	return &IRQPin{name: name, pin: pin}, nil
}

// Watch calls fn for every falling edge until ctx is cancelled. fn runs on
// the watcher goroutine and should hand off quickly.
func (p *IRQPin) Watch(ctx context.Context, fn func()) {
	slog.Debug("gpio: watching codec IRQ", "pin", p.name)
	for ctx.Err() == nil {
		if p.pin.WaitForEdge(edgeWait) {
			fn()
		}
	}
	_ = p.pin.Halt()
}

// ResetCodec pulses the codec's active-low reset line. The chip needs the
// line held low for at least 1ms and about 10ms after release before its
// control port answers.
func ResetCodec(pinName string) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("gpio: host init failed: %w", err)
	}
	rst := gpioreg.ByName(pinName)
	if rst == nil {
		return fmt.Errorf("gpio: failed to open %s (codec reset)", pinName)
	}
	if err := rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: failed to assert reset: %w", err)
	}
	time.Sleep(1 * time.Millisecond)
	if err := rst.Out(gpio.High); err != nil {
		return fmt.Errorf("gpio: failed to release reset: %w", err)
	}
	time.Sleep(10 * time.Millisecond)

	slog.Debug("gpio: codec reset complete", "pin", pinName)
	return nil
}
