package irq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/micro-nova/codecd/internal/hardware"
	"github.com/micro-nova/codecd/internal/metrics"
)

const (
	portOverflow  = 0x1
	portUnderflow = 0x2
)

// PortError is one flagged audio-interface port.
type PortError struct {
	Port      int  `json:"port"`
	Overflow  bool `json:"overflow"`
	Underflow bool `json:"underflow"`
}

// BusHealthScanner handles the BusHealth line: it reads the per-port status
// bitfield, logs overflow and underflow per port and clears the status. It
// never touches codec power state.
type BusHealthScanner struct {
	bus     hardware.Bus
	lines   *Dispatcher
	limiter *rate.Limiter
	notify  func(PortError)
}

// NewBusHealthScanner returns a scanner reading the interface registers over
// bus. Port error logs are limited to a few per second.
func NewBusHealthScanner(bus hardware.Bus, lines *Dispatcher) *BusHealthScanner {
	return &BusHealthScanner{
		bus:     bus,
		lines:   lines,
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// EnablePorts unmasks the port interrupts of every port status register.
func (s *BusHealthScanner) EnablePorts(ctx context.Context) error {
	for i := 0; i < hardware.SlimNumPortReg; i++ {
		if err := s.bus.Write(ctx, hardware.SlimPortIntEn0+hardware.Register(i), 0xFF); err != nil {
			return fmt.Errorf("bus health: enable ports %d: %w", i, err)
		}
	}
	return nil
}

// OnPortError sets a callback run for every port error found by Scan.
func (s *BusHealthScanner) OnPortError(fn func(PortError)) { s.notify = fn }

// Handle is the Handler for BusHealth. The line is re-enabled whether or not
// the scan succeeded.
func (s *BusHealthScanner) Handle(ctx context.Context, _ Event) error {
	defer s.lines.Enable(BusHealth)
	_, err := s.Scan(ctx)
	return err
}

// Scan reads and clears every port status register and returns the ports
// that reported an error.
func (s *BusHealthScanner) Scan(ctx context.Context) ([]PortError, error) {
	var found []PortError
	for i := 0; i < hardware.SlimNumPortReg; i++ {
		status, err := s.bus.Read(ctx, hardware.SlimPortIntStatus0+hardware.Register(i))
		if err != nil {
			return found, fmt.Errorf("bus health: status %d: %w", i, err)
		}
		for j := 0; j < 8; j++ {
			if status&(1<<j) == 0 {
				continue
			}
			port := i*8 + j
			src, err := s.bus.Read(ctx, hardware.SlimPortIntSource0+hardware.Register(port))
			if err != nil {
				return found, fmt.Errorf("bus health: port %d source: %w", port, err)
			}
			pe := PortError{Port: port, Overflow: src&portOverflow != 0, Underflow: src&portUnderflow != 0}
			if !pe.Overflow && !pe.Underflow {
				continue
			}
			found = append(found, pe)
			s.record(pe)
		}
		if err := s.bus.Write(ctx, hardware.SlimPortIntClr0+hardware.Register(i), 0xFF); err != nil {
			return found, fmt.Errorf("bus health: clear %d: %w", i, err)
		}
	}
	return found, nil
}

func (s *BusHealthScanner) record(pe PortError) {
	port := fmt.Sprintf("%d", pe.Port)
	if pe.Overflow {
		metrics.IncPortError(port, "overflow")
	}
	if pe.Underflow {
		metrics.IncPortError(port, "underflow")
	}
	if s.notify != nil {
		s.notify(pe)
	}
	if s.limiter.Allow() {
		slog.Warn("bus health: port error", "port", pe.Port, "overflow", pe.Overflow, "underflow", pe.Underflow)
	}
}
