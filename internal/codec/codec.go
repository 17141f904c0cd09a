// Package codec drives one audio codec instance: its shared power/clock
// resources and the headset detection state machine built on them.
//
// All state lives in Codec and every exported method holds the instance
// lock for its full duration, settle delays included. Interrupt handlers
// and stream lifecycle calls can therefore never interleave mid-sequence.
package codec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/codecd/internal/codecerr"
	"github.com/micro-nova/codecd/internal/hardware"
	"github.com/micro-nova/codecd/internal/irq"
)

// Lines is the interrupt line mask the detection state machine drives.
// *irq.Dispatcher satisfies it.
type Lines interface {
	Enable(line irq.Line)
	Disable(line irq.Line)
}

// Options configures a Codec.
type Options struct {
	// Delay performs settle waits. Defaults to time.Sleep.
	Delay func(time.Duration)
}

// Codec is one codec instance.
type Codec struct {
	mu    sync.Mutex
	regs  *hardware.RegMap
	lines Lines
	delay func(time.Duration)

	pwr   PowerState
	adcOn uint8 // bit n-1 set while ADC n is powered

	phase Phase
	cal   *Calibration
	next  *Calibration // applied at the next removal
	jack  JackReporter

	detecting bool // set by StartDetection, cleared by Close
}

// New returns a codec in the powered-down state. Call Probe before use.
func New(regs *hardware.RegMap, lines Lines, opts Options) *Codec {
	if opts.Delay == nil {
		opts.Delay = time.Sleep
	}
	return &Codec{
		regs:  regs,
		lines: lines,
		delay: opts.Delay,
	}
}

// Attach registers the codec's jack handlers on d.
func (c *Codec) Attach(d *irq.Dispatcher) {
	d.Register(irq.Insertion, c.HandleInterrupt)
	d.Register(irq.Removal, c.HandleInterrupt)
	d.Register(irq.PotentialEstimation, c.HandleInterrupt)
}

// Status returns a snapshot of the power and detection state.
func (c *Codec) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Power: c.pwr, Phase: c.phase, Calibrated: c.cal != nil}
}

// Probe performs initial bring-up: audio bandgap, full clock, register gain
// mode, differential mic biases, TX sample size and RX slot map. Jack lines
// are left masked and the bus health line is unmasked.
func (c *Codec) Probe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enableBandgap(ctx, BandgapAudio); err != nil {
		return err
	}
	if err := c.enableClockBlock(ctx, false); err != nil {
		return err
	}

	seq := []step{
		update(hardware.RegRxHPHLGain, 0x10, 0x10),
		update(hardware.RegRxHPHRGain, 0x10, 0x10),
		update(hardware.RegRxLine1Gain, 0x10, 0x10),
		update(hardware.RegRxLine3Gain, 0x10, 0x10),

		update(hardware.RegMicB1IntRbias, 0x24, 0x24),
		update(hardware.RegMicB2IntRbias, 0x24, 0x24),
		update(hardware.RegMicB3IntRbias, 0x24, 0x24),
		update(hardware.RegMicB4IntRbias, 0x24, 0x24),

		update(hardware.RegCdcConnCLSGCtl, 0x30, 0x10),
	}
	for i := hardware.Register(0); i < 10; i++ {
		if i < 6 {
			seq = append(seq, update(hardware.RegCdcConnTxSBB1Ctl+i, 0x30, 0x20))
		} else {
			seq = append(seq, update(hardware.RegCdcConnTxSBB1Ctl+i, 0x60, 0x40))
		}
		seq = append(seq, update(hardware.RegCdcTx1MuxCtl+i, 0x08, 0x00))
	}
	seq = append(seq,
		write(hardware.RegCdcConnRxSBB1Ctl, 0xAA),
		write(hardware.RegCdcConnRxSBB2Ctl, 0xAA),
	)
	if err := c.run(ctx, seq); err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	c.lines.Disable(irq.Insertion)
	c.lines.Disable(irq.Removal)
	c.lines.Disable(irq.PotentialEstimation)
	c.lines.Enable(irq.BusHealth)
	slog.Info("codec: probed", "bandgap", c.pwr.Bandgap, "clock_active", c.pwr.ClockActive)
	return nil
}

// Close tears the instance down: jack lines masked, clock off, bandgap off,
// detection back to idle.
func (c *Codec) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines.Disable(irq.Insertion)
	c.lines.Disable(irq.Removal)
	c.lines.Disable(irq.PotentialEstimation)
	c.lines.Disable(irq.BusHealth)

	if c.pwr.ClockActive {
		if err := c.disableClockBlock(ctx); err != nil {
			return err
		}
	}
	if c.pwr.ConfigModeActive {
		if err := c.enableConfigMode(ctx, false); err != nil {
			return err
		}
	}
	c.pwr.PollingActive = false
	if err := c.enableBandgap(ctx, BandgapOff); err != nil {
		return err
	}
	c.phase = PhaseIdle
	c.cal, c.next, c.jack = nil, nil, nil
	c.detecting = false
	slog.Info("codec: closed")
	return nil
}

// EnableBandgap switches the bandgap to mode. It is a no-op when already in
// mode. Illegal transitions are protocol violations.
func (c *Codec) EnableBandgap(ctx context.Context, mode BandgapMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enableBandgap(ctx, mode)
}

// EnableClockBlock brings up the clock buffer chain, optionally through the
// config oscillator.
func (c *Codec) EnableClockBlock(ctx context.Context, useConfigMode bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enableClockBlock(ctx, useConfigMode)
}

// DisableClockBlock stops the clock buffer chain. Polling needs the clock,
// so this is refused while polling.
func (c *Codec) DisableClockBlock(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pwr.PollingActive {
		return c.violation("disable clock block", "headset polling is active")
	}
	return c.disableClockBlock(ctx)
}

// StartDetection registers cal and jack and arms the insertion comparator.
// jack may be nil. cal must stay valid until Close.
func (c *Codec) StartDetection(ctx context.Context, cal *Calibration, jack JackReporter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startDetection(ctx, cal, jack)
}

// UpdateCalibration replaces the registered calibration. While a headset is
// being polled the new data is held until the next removal; while armed the
// comparator is re-armed with it. While idle it re-arms only if detection
// was started before and has since been abandoned.
func (c *Codec) UpdateCalibration(ctx context.Context, cal *Calibration) error {
	const op = "update calibration"
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := cal.validate(op); err != nil {
		return err
	}
	switch c.phase {
	case PhasePolling:
		c.next = cal
		slog.Info("codec: calibration update deferred until removal")
		return nil
	case PhaseArmedForInsertion:
		return c.startDetection(ctx, cal, c.jack)
	default:
		if c.detecting {
			return c.startDetection(ctx, cal, c.jack)
		}
		c.cal = cal
		return nil
	}
}

// HandleInterrupt is the single entry point for jack interrupt events. It
// matches irq.Handler.
func (c *Codec) HandleInterrupt(ctx context.Context, ev irq.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Line {
	case irq.Insertion:
		return c.handleInsertion(ctx)
	case irq.Removal:
		return c.handleRemoval(ctx)
	case irq.PotentialEstimation:
		return c.handlePotential(ctx)
	default:
		return codecerr.Violation("handle interrupt", fmt.Sprintf("%s is not a jack line", ev.Line))
	}
}
