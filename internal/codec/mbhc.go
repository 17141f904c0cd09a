package codec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/micro-nova/codecd/internal/codecerr"
	"github.com/micro-nova/codecd/internal/hardware"
	"github.com/micro-nova/codecd/internal/irq"
	"github.com/micro-nova/codecd/internal/metrics"
)

// Headset detection. Everything here runs with c.mu held.

func (c *Codec) startDetection(ctx context.Context, cal *Calibration, jack JackReporter) error {
	const op = "start detection"
	if err := cal.validate(op); err != nil {
		return err
	}
	if c.phase == PhasePolling {
		return c.violation(op, "headset is being polled; wait for removal")
	}
	if c.pwr.StreamRefs == 0 && c.strandedPolling() {
		if err := c.restoreAudioPower(ctx); err != nil {
			return err
		}
	}
	if err := c.armInsertion(ctx, cal); err != nil {
		return err
	}
	c.cal, c.jack = cal, jack
	c.detecting = true
	c.phase = PhaseArmedForInsertion
	slog.Info("codec: headset detection armed", "bias", cal.Bias)
	return nil
}

// armInsertion programs the plug comparator on cal's bias line and unmasks
// the insertion line. Removal and potential stay masked.
func (c *Codec) armInsertion(ctx context.Context, cal *Calibration) error {
	bias := micBiasTable[cal.Bias]

	c.lines.Disable(irq.Removal)
	c.lines.Disable(irq.PotentialEstimation)

	err := c.run(ctx, []step{
		update(hardware.RegCdcMBHCIntCtl, 0x01, 0x00),
		update(hardware.RegCdcMBHCIntCtl, 0x02, 0x00),
	})
	if err != nil {
		return fmt.Errorf("arm insertion: %w", err)
	}

	b1, err := c.regs.Read(ctx, hardware.RegCdcMBHCB1Ctl)
	if err != nil {
		return fmt.Errorf("arm insertion: %w", err)
	}
	if b1&0x04 != 0 {
		if err := c.stopPollingTimer(ctx, cal); err != nil {
			return err
		}
	}

	err = c.run(ctx, []step{
		update(hardware.RegMBHCHPH, 0x0C, cal.HPHCurrent<<2),
		update(hardware.RegMBHCHPH, 0x13, 0x13),
		update(bias.intRbias, 0x80, 0x00),
		update(bias.ctl, 0x01, 0x00),
	})
	if err != nil {
		return fmt.Errorf("arm insertion: %w", err)
	}

	if err := c.pulseLDOH(ctx, cal); err != nil {
		return err
	}

	err = c.run(ctx, []step{
		update(bias.mbhc, 0x60, cal.MicCurrent<<5),
		update(bias.mbhc, 0x80, 0x80),
		settle(cal.MicPID),
		update(bias.mbhc, 0x10, 0x10),
		update(hardware.RegMicB4MBHC, 0x03, byte(cal.Bias)),
	})
	if err != nil {
		return fmt.Errorf("arm insertion: %w", err)
	}

	c.lines.Enable(irq.Insertion)
	if err := c.run(ctx, []step{update(hardware.RegCdcMBHCIntCtl, 0x01, 0x01)}); err != nil {
		c.lines.Disable(irq.Insertion)
		return fmt.Errorf("arm insertion: %w", err)
	}
	return nil
}

// stopPollingTimer clears the detection timer enable. Without the audio
// clock the block is clocked from the config oscillator for the duration.
func (c *Codec) stopPollingTimer(ctx context.Context, cal *Calibration) error {
	seq := []step{
		update(hardware.RegCdcMBHCB1Ctl, 0x04, 0x00),
	}
	if c.pwr.ClockActive {
		if err := c.run(ctx, seq); err != nil {
			return fmt.Errorf("stop polling timer: %w", err)
		}
		return nil
	}
	if err := c.enableConfigMode(ctx, true); err != nil {
		return err
	}
	if err := c.run(ctx, append(seq, settle(cal.ShutdownPlugRemoval))); err != nil {
		return fmt.Errorf("stop polling timer: %w", err)
	}
	return c.enableConfigMode(ctx, false)
}

// pulseLDOH cycles the headset LDO when it is parked, bringing up the
// central bias for the duration if it was off.
func (c *Codec) pulseLDOH(ctx context.Context, cal *Calibration) error {
	oe1, err := c.regs.Read(ctx, hardware.RegPinCtlOE1)
	if err != nil {
		return fmt.Errorf("ldoh pulse: %w", err)
	}
	centralBias := false
	if oe1&0x01 == 0 {
		err := c.run(ctx, []step{
			update(hardware.RegPinCtlOE1, 0x03, 0x03),
			settle(cal.BGFastSettle),
		})
		if err != nil {
			return fmt.Errorf("ldoh pulse: %w", err)
		}
		centralBias = true
	}

	oe0, err := c.regs.Read(ctx, hardware.RegPinCtlOE0)
	if err != nil {
		return fmt.Errorf("ldoh pulse: %w", err)
	}
	if oe0&0x80 == 0 {
		return nil
	}
	seq := []step{
		update(hardware.RegPinCtlOE0, 0x10, 0x00),
		update(hardware.RegPinCtlOE0, 0x80, 0x80),
		settle(cal.TLDOH),
		update(hardware.RegPinCtlOE0, 0x80, 0x00),
	}
	if centralBias {
		seq = append(seq, update(hardware.RegPinCtlOE1, 0x01, 0x00))
	}
	if err := c.run(ctx, seq); err != nil {
		return fmt.Errorf("ldoh pulse: %w", err)
	}
	return nil
}

// setupPolling powers the detection block, programs thresholds and timers
// from cal and unmasks the removal and potential lines. With no stream
// running the bandgap is moved to mbhc and the clock to config mode.
func (c *Codec) setupPolling(ctx context.Context, cal *Calibration) error {
	bias := micBiasTable[cal.Bias]
	p := cal.Polling

	if c.pwr.StreamRefs == 0 {
		if err := c.enableBandgap(ctx, BandgapMBHC); err != nil {
			return err
		}
		if err := c.run(ctx, []step{update(hardware.RegRxComBias, 0x80, 0x80)}); err != nil {
			return fmt.Errorf("setup polling: %w", err)
		}
		if err := c.enableClockBlock(ctx, true); err != nil {
			return err
		}
	}

	err := c.run(ctx, []step{
		update(hardware.RegClkBuffEn1, 0x05, 0x01),

		write(hardware.RegCdcMBHCVoltB4, p.VoltB4),
		write(hardware.RegCdcMBHCVoltB3, p.VoltB3),
		write(hardware.RegCdcMBHCVoltB2, p.VoltB2),
		write(hardware.RegCdcMBHCVoltB1, p.VoltB1),

		update(hardware.RegLDOHMode1, 0x0F, 0x0D),
		update(hardware.RegTxComBias, 0xE0, 0xE0),

		write(bias.cfiltCtl, 0x40),
		write(bias.ctl, 0x36),
		write(bias.cfiltVal, 0x68),

		update(hardware.RegCdcMBHCClkCtl, 0x02, 0x02),
		write(hardware.RegMBHCScalingMux1, 0x04),

		update(hardware.RegTx7MBHCEn, 0x80, 0x80),
		update(hardware.RegTx7MBHCEn, 0x1F, 0x1C),
		update(hardware.RegTx7MBHCTestCtl, 0x40, 0x40),
		update(hardware.RegTx7MBHCEn, 0x80, 0x00),
		update(hardware.RegCdcMBHCClkCtl, 0x80, 0x80),
		update(hardware.RegCdcMBHCClkCtl, 0x80, 0x00),

		write(hardware.RegCdcMBHCTimerB1, p.TimerB1),
		write(hardware.RegCdcMBHCTimerB2, p.TimerB2),
		write(hardware.RegCdcMBHCTimerB3, p.TimerB3),
		write(hardware.RegCdcMBHCTimerB6, p.TimerB6),
		update(hardware.RegCdcMBHCTimerB1, 0x78, 0x58),
		write(hardware.RegCdcMBHCB2Ctl, p.B2Ctl),

		update(hardware.RegCdcMBHCB1Ctl, 0x04, 0x04),
		update(hardware.RegCdcMBHCClkCtl, 0x08, 0x08),
	})
	if err != nil {
		return fmt.Errorf("setup polling: %w", err)
	}

	c.lines.Enable(irq.PotentialEstimation)
	c.lines.Enable(irq.Removal)
	err = c.run(ctx, []step{
		write(hardware.RegCdcMBHCEnCtl, 0x01),
		update(hardware.RegCdcMBHCClkCtl, 0x08, 0x00),
		write(hardware.RegCdcMBHCEnCtl, 0x01),
	})
	if err != nil {
		c.lines.Disable(irq.Removal)
		c.lines.Disable(irq.PotentialEstimation)
		return fmt.Errorf("setup polling: %w", err)
	}
	c.pwr.PollingActive = true
	return nil
}

// shutdownPolling drops polling's claim on the power domain. With no stream
// running the bandgap and clock go back to audio mode.
func (c *Codec) shutdownPolling(ctx context.Context) error {
	if c.pwr.StreamRefs == 0 {
		if err := c.restoreAudioPower(ctx); err != nil {
			return err
		}
	}
	c.pwr.PollingActive = false
	return nil
}

// restoreAudioPower clears the polling TX bias when no ADC holds it and
// returns the bandgap and clock to audio mode. A powered-down codec is left
// alone.
func (c *Codec) restoreAudioPower(ctx context.Context) error {
	if c.pwr.Bandgap == BandgapOff {
		return nil
	}
	if c.pwr.ADCRefs == 0 {
		if err := c.run(ctx, []step{update(hardware.RegTxComBias, 0xE0, 0x00)}); err != nil {
			return fmt.Errorf("restore audio power: %w", err)
		}
	}
	if err := c.enableBandgap(ctx, BandgapAudio); err != nil {
		return err
	}
	return c.enableClockBlock(ctx, false)
}

// strandedPolling reports detection-mode power left behind by an abandoned
// polling session.
func (c *Codec) strandedPolling() bool {
	return !c.pwr.PollingActive && (c.pwr.Bandgap == BandgapMBHC || c.pwr.ConfigModeActive)
}

// abandonPolling handles a failed polling setup or teardown. Detection
// drops to Idle with every jack line masked and polling's claim released.
// With no stream running, audio power is restored. StartDetection or a
// calibration update re-arms from there.
func (c *Codec) abandonPolling(ctx context.Context, cause error) error {
	c.lines.Disable(irq.Insertion)
	c.lines.Disable(irq.Removal)
	c.lines.Disable(irq.PotentialEstimation)
	c.pwr.PollingActive = false
	c.phase = PhaseIdle
	if c.pwr.StreamRefs > 0 {
		return cause
	}
	if err := c.restoreAudioPower(ctx); err != nil {
		slog.Error("codec: audio power not restored", "err", err)
		return errors.Join(cause, err)
	}
	return cause
}

func (c *Codec) report(state JackState) {
	metrics.IncJackReport(state.String())
	slog.Info("codec: jack state", "state", state)
	if c.jack != nil {
		c.jack.Report(state)
	}
}

// handleInsertion moves ArmedForInsertion to Polling.
func (c *Codec) handleInsertion(ctx context.Context) error {
	const op = "insertion interrupt"
	if c.cal == nil {
		return codecerr.Config(op, "no calibration registered")
	}
	if c.phase != PhaseArmedForInsertion {
		return c.violation(op, fmt.Sprintf("unexpected in phase %s", c.phase))
	}
	c.lines.Disable(irq.Insertion)
	c.report(JackInserted)
	c.delay(c.cal.SetupPlugRemovalDelay)

	if err := c.setupPolling(ctx, c.cal); err != nil {
		slog.Error("codec: polling setup failed", "err", err)
		return c.abandonPolling(ctx, err)
	}
	c.phase = PhasePolling
	return nil
}

// handleRemoval moves Polling back to ArmedForInsertion.
func (c *Codec) handleRemoval(ctx context.Context) error {
	const op = "removal interrupt"
	if c.cal == nil {
		return codecerr.Config(op, "no calibration registered")
	}
	if c.phase != PhasePolling {
		return c.violation(op, fmt.Sprintf("unexpected in phase %s", c.phase))
	}
	c.lines.Disable(irq.Removal)
	c.lines.Disable(irq.PotentialEstimation)
	c.delay(c.cal.ShutdownPlugRemoval)
	c.report(JackRemoved)

	if err := c.shutdownPolling(ctx); err != nil {
		slog.Error("codec: polling shutdown failed", "err", err)
		return c.abandonPolling(ctx, err)
	}
	c.phase = PhaseIdle
	if c.next != nil {
		slog.Info("codec: applying updated calibration", "bias", c.next.Bias)
		c.cal, c.next = c.next, nil
	}
	if err := c.armInsertion(ctx, c.cal); err != nil {
		return err
	}
	c.phase = PhaseArmedForInsertion
	return nil
}

// handlePotential re-asserts the detection enable bit. It does not change
// phase.
func (c *Codec) handlePotential(ctx context.Context) error {
	const op = "potential interrupt"
	if c.cal == nil {
		return codecerr.Config(op, "no calibration registered")
	}
	if c.phase != PhasePolling {
		return c.violation(op, fmt.Sprintf("unexpected in phase %s", c.phase))
	}
	defer c.lines.Enable(irq.PotentialEstimation)
	return c.regs.Write(ctx, hardware.RegCdcMBHCEnCtl, 0x01)
}
