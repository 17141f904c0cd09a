// Package irq routes codec interrupt events to their handlers.
//
// Each line has at most one handler and a software enable bit. Dispatch
// masks a line before invoking its handler; re-enabling is left to the
// handler or to whoever owns the line's state.
package irq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micro-nova/codecd/internal/codecerr"
	"github.com/micro-nova/codecd/internal/metrics"
)

// Line identifies a codec interrupt source.
type Line int

const (
	Insertion Line = iota
	Removal
	PotentialEstimation
	BusHealth

	numLines
)

// Lines lists every interrupt line.
var Lines = []Line{Insertion, Removal, PotentialEstimation, BusHealth}

func (l Line) String() string {
	switch l {
	case Insertion:
		return "insertion"
	case Removal:
		return "removal"
	case PotentialEstimation:
		return "potential"
	case BusHealth:
		return "bus_health"
	default:
		return fmt.Sprintf("line(%d)", int(l))
	}
}

func (l Line) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// ParseLine parses the String form of a line.
func ParseLine(s string) (Line, bool) {
	for _, l := range Lines {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// Event is one delivered interrupt.
type Event struct {
	Line Line
	At   time.Time
}

// Handler processes an event. It runs to completion; ctx only carries
// values and deadlines for bus transactions.
type Handler func(ctx context.Context, ev Event) error

const defaultQueueSize = 16

// Dispatcher owns the line mask and handler table.
//
// Its mutex guards only its own fields and is never held while a handler
// runs, so handlers may call Enable and Disable.
type Dispatcher struct {
	mu       sync.Mutex
	handlers [numLines]Handler
	enabled  [numLines]bool
	running  [numLines]bool

	queue   chan Event
	dropped atomic.Uint64
}

// NewDispatcher returns a dispatcher with every line disabled.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{queue: make(chan Event, defaultQueueSize)}
}

func valid(l Line) bool { return l >= 0 && l < numLines }

// Register installs h for line, replacing any previous handler.
func (d *Dispatcher) Register(line Line, h Handler) {
	if !valid(line) {
		panic(fmt.Sprintf("irq: register of unknown %s", line))
	}
	d.mu.Lock()
	d.handlers[line] = h
	d.mu.Unlock()
}

// Enable unmasks line. Enabling an enabled line is a no-op.
func (d *Dispatcher) Enable(line Line) {
	if !valid(line) {
		return
	}
	d.mu.Lock()
	d.enabled[line] = true
	d.mu.Unlock()
}

// Disable masks line. Disabling a disabled line is a no-op.
func (d *Dispatcher) Disable(line Line) {
	if !valid(line) {
		return
	}
	d.mu.Lock()
	d.enabled[line] = false
	d.mu.Unlock()
}

// Enabled reports whether line is unmasked.
func (d *Dispatcher) Enabled(line Line) bool {
	if !valid(line) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled[line]
}

// Mask returns the enable bit of every line.
func (d *Dispatcher) Mask() map[string]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := make(map[string]bool, numLines)
	for _, l := range Lines {
		m[l.String()] = d.enabled[l]
	}
	return m
}

// Dispatch delivers one event for line. A masked or unhandled line is
// dropped and reported as nil. A delivery for a line whose handler is still
// running, after that handler re-enabled it, is a protocol violation.
func (d *Dispatcher) Dispatch(ctx context.Context, line Line) error {
	if !valid(line) {
		return codecerr.Violation("irq dispatch", fmt.Sprintf("unknown %s", line))
	}

	d.mu.Lock()
	h := d.handlers[line]
	switch {
	case h == nil:
		d.mu.Unlock()
		metrics.IncIRQDropped(line.String(), "unhandled")
		slog.Debug("irq: no handler", "line", line)
		return nil
	case !d.enabled[line]:
		d.mu.Unlock()
		metrics.IncIRQDropped(line.String(), "masked")
		slog.Debug("irq: line masked, event dropped", "line", line)
		return nil
	case d.running[line]:
		d.mu.Unlock()
		err := codecerr.Violation("irq dispatch", fmt.Sprintf("%s handler reentered", line))
		slog.Error("irq: handler reentrancy", "line", line)
		return err
	}
	d.enabled[line] = false
	d.running[line] = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running[line] = false
		d.mu.Unlock()
	}()

	metrics.IncIRQDispatched(line.String())
	return h(ctx, Event{Line: line, At: time.Now()})
}

// Post queues an event for Run without blocking. Events that do not fit are
// dropped and counted.
func (d *Dispatcher) Post(line Line) {
	select {
	case d.queue <- Event{Line: line, At: time.Now()}:
	default:
		d.dropped.Add(1)
		metrics.IncIRQDropped(line.String(), "queue_full")
	}
}

// Dropped returns the number of events Post could not queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run dispatches queued events until ctx is done. Handler errors are logged.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			if err := d.Dispatch(ctx, ev.Line); err != nil {
				slog.Warn("irq: handler failed", "line", ev.Line, "queued_at", ev.At, "err", err)
			}
		}
	}
}
