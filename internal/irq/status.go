package irq

import (
	"context"
	"fmt"

	"github.com/micro-nova/codecd/internal/hardware"
)

// statusBits maps RegIntrStatus0 bits to lines.
var statusBits = [...]struct {
	bit  byte
	line Line
}{
	{0x01, BusHealth},
	{0x02, Removal},
	{0x04, PotentialEstimation},
	{0x08, Insertion},
}

// StatusDecoder turns one physical IRQ edge into line events: it reads the
// chip's interrupt status, acknowledges it and posts an event per pending
// line.
type StatusDecoder struct {
	bus hardware.Bus
	d   *Dispatcher
}

func NewStatusDecoder(bus hardware.Bus, d *Dispatcher) *StatusDecoder {
	return &StatusDecoder{bus: bus, d: d}
}

// Decode returns the pending lines after acknowledging them. Lines are
// posted to the dispatcher queue in status-bit order.
func (s *StatusDecoder) Decode(ctx context.Context) ([]Line, error) {
	status, err := s.bus.Read(ctx, hardware.RegIntrStatus0)
	if err != nil {
		return nil, fmt.Errorf("irq status: read: %w", err)
	}
	if status == 0 {
		return nil, nil
	}
	if err := s.bus.Write(ctx, hardware.RegIntrClear0, status); err != nil {
		return nil, fmt.Errorf("irq status: clear 0x%02x: %w", status, err)
	}
	var pending []Line
	for _, sb := range statusBits {
		if status&sb.bit != 0 {
			pending = append(pending, sb.line)
			s.d.Post(sb.line)
		}
	}
	return pending, nil
}
