package codec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/micro-nova/codecd/internal/codecerr"
	"github.com/micro-nova/codecd/internal/hardware"
	"github.com/micro-nova/codecd/internal/metrics"
)

// Everything in this file runs with c.mu held.

type bandgapEdge struct {
	from, to BandgapMode
}

var bandgapAudioSeq = []step{
	write(hardware.RegBiasRefCtl, 0x1C),
	update(hardware.RegBiasCentralBGCtl, 0x80, 0x80),
	update(hardware.RegBiasCentralBGCtl, 0x04, 0x04),
	update(hardware.RegBiasCentralBGCtl, 0x01, 0x01),
	settle(1000 * time.Microsecond),
	update(hardware.RegBiasCentralBGCtl, 0x80, 0x00),
}

var bandgapOffSeq = []step{
	write(hardware.RegBiasCentralBGCtl, 0x00),
}

// bandgapSeqs is the legal bandgap transition table. A pair missing from
// it, such as off to mbhc, is a protocol violation.
var bandgapSeqs = map[bandgapEdge][]step{
	{BandgapOff, BandgapAudio}: bandgapAudioSeq,
	{BandgapAudio, BandgapMBHC}: {
		update(hardware.RegBiasCentralBGCtl, 0x02, 0x02),
		update(hardware.RegBiasCentralBGCtl, 0x80, 0x80),
		update(hardware.RegBiasCentralBGCtl, 0x04, 0x04),
		settle(1000 * time.Microsecond),
		update(hardware.RegBiasCentralBGCtl, 0x80, 0x00),
	},
	{BandgapMBHC, BandgapAudio}: concat(
		[]step{
			write(hardware.RegBiasCentralBGCtl, 0x00),
			settle(100 * time.Microsecond),
		},
		bandgapAudioSeq,
	),
	{BandgapAudio, BandgapOff}: bandgapOffSeq,
	{BandgapMBHC, BandgapOff}:  bandgapOffSeq,
}

func (c *Codec) enableBandgap(ctx context.Context, mode BandgapMode) error {
	from := c.pwr.Bandgap
	if from == mode {
		return nil
	}
	if mode == BandgapOff && (c.pwr.ClockActive || c.pwr.PollingActive) {
		return c.violation("enable bandgap",
			fmt.Sprintf("%s to off with clock_active=%t polling_active=%t", from, c.pwr.ClockActive, c.pwr.PollingActive))
	}
	seq, ok := bandgapSeqs[bandgapEdge{from, mode}]
	if !ok {
		return c.violation("enable bandgap", fmt.Sprintf("illegal transition %s to %s", from, mode))
	}
	if err := c.run(ctx, seq); err != nil {
		return fmt.Errorf("bandgap %s to %s: %w", from, mode, err)
	}
	c.pwr.Bandgap = mode
	metrics.BandgapTransition(from.String(), mode.String(), int(mode))
	slog.Debug("codec: bandgap transition", "from", from, "to", mode)
	return nil
}

var configModeOnSeq = []step{
	update(hardware.RegConfigModeFreq, 0x10, 0x00),
	write(hardware.RegBiasConfigModeBGCtl, 0x17),
	settle(5 * time.Microsecond),
	update(hardware.RegConfigModeFreq, 0x80, 0x80),
	update(hardware.RegConfigModeTest, 0x80, 0x80),
	settle(10 * time.Microsecond),
	update(hardware.RegConfigModeTest, 0x80, 0x00),
	settle(20 * time.Microsecond),
	update(hardware.RegClkBuffEn1, 0x08, 0x08),
}

var configModeOffSeq = []step{
	update(hardware.RegBiasConfigModeBGCtl, 0x01, 0x00),
	update(hardware.RegConfigModeFreq, 0x80, 0x00),
}

// enableConfigMode starts or stops the low-power config reference
// oscillator that clocks the detection block without the audio clock.
func (c *Codec) enableConfigMode(ctx context.Context, on bool) error {
	seq := configModeOffSeq
	if on {
		seq = configModeOnSeq
	}
	if err := c.run(ctx, seq); err != nil {
		return fmt.Errorf("config mode on=%t: %w", on, err)
	}
	c.pwr.ConfigModeActive = on
	return nil
}

var clockBlockTailSeq = []step{
	update(hardware.RegClkBuffEn1, 0x05, 0x05),
	update(hardware.RegClkBuffEn2, 0x02, 0x00),
	update(hardware.RegClkBuffEn2, 0x04, 0x04),
	update(hardware.RegCdcClkMCLKCtl, 0x01, 0x01),
	settle(50 * time.Microsecond),
}

// enableClockBlock brings up the clock buffer chain. With useConfigMode the
// chain is fed from the config oscillator (polling with no stream). Without
// it the chain runs from MCLK; if the detection block was running from the
// config oscillator, the buffer is held while that oscillator is released.
func (c *Codec) enableClockBlock(ctx context.Context, useConfigMode bool) error {
	if c.pwr.Bandgap == BandgapOff {
		return c.violation("enable clock block", "bandgap is off")
	}
	if useConfigMode {
		if err := c.enableConfigMode(ctx, true); err != nil {
			return err
		}
		err := c.run(ctx, []step{
			write(hardware.RegClkBuffEn2, 0x00),
			write(hardware.RegClkBuffEn2, 0x02),
			write(hardware.RegClkBuffEn1, 0x0D),
			settle(1000 * time.Microsecond),
		})
		if err != nil {
			return fmt.Errorf("clock block: %w", err)
		}
	} else {
		if err := c.run(ctx, []step{update(hardware.RegClkBuffEn1, 0x08, 0x00)}); err != nil {
			return fmt.Errorf("clock block: %w", err)
		}
		if c.pwr.PollingActive || c.pwr.ConfigModeActive {
			if err := c.run(ctx, []step{write(hardware.RegClkBuffEn2, 0x02)}); err != nil {
				return fmt.Errorf("clock block: %w", err)
			}
			if err := c.enableConfigMode(ctx, false); err != nil {
				return err
			}
		}
	}
	if err := c.run(ctx, clockBlockTailSeq); err != nil {
		return fmt.Errorf("clock block: %w", err)
	}
	c.pwr.ClockActive = true
	metrics.SetClockActive(true)
	slog.Debug("codec: clock block enabled", "config_mode", useConfigMode)
	return nil
}

var clockBlockOffSeq = []step{
	update(hardware.RegClkBuffEn2, 0x04, 0x00),
	settle(160 * time.Nanosecond),
	update(hardware.RegClkBuffEn2, 0x02, 0x02),
	update(hardware.RegClkBuffEn1, 0x05, 0x00),
}

func (c *Codec) disableClockBlock(ctx context.Context) error {
	if err := c.run(ctx, clockBlockOffSeq); err != nil {
		return fmt.Errorf("clock block off: %w", err)
	}
	c.pwr.ClockActive = false
	metrics.SetClockActive(false)
	slog.Debug("codec: clock block disabled")
	return nil
}

var captureLDOOnSeq = []step{
	update(hardware.RegMicBCfilt1Val, 0xFC, 0xA0),
	update(hardware.RegLDOHMode1, 0x80, 0x80),
	settle(1000 * time.Microsecond),
}

var captureLDOOffSeq = []step{
	update(hardware.RegLDOHMode1, 0x80, 0x00),
	settle(1000 * time.Microsecond),
}

func (c *Codec) acquireStream(ctx context.Context, dir Direction) error {
	if dir == Capture {
		if err := c.run(ctx, captureLDOOnSeq); err != nil {
			return fmt.Errorf("capture ldo on: %w", err)
		}
	}
	refs := c.pwr.StreamRefs + 1
	if refs == 1 && (c.pwr.PollingActive || c.strandedPolling()) {
		if err := c.enableBandgap(ctx, BandgapAudio); err != nil {
			return err
		}
		if err := c.enableClockBlock(ctx, false); err != nil {
			return err
		}
	}
	c.pwr.StreamRefs = refs
	metrics.SetStreamRefs(refs)
	return nil
}

func (c *Codec) releaseStream(ctx context.Context, dir Direction) error {
	if c.pwr.StreamRefs == 0 {
		return c.violation("release stream", fmt.Sprintf("%s release with no active stream", dir))
	}
	if dir == Capture {
		if err := c.run(ctx, captureLDOOffSeq); err != nil {
			return fmt.Errorf("capture ldo off: %w", err)
		}
	}
	refs := c.pwr.StreamRefs - 1
	if c.pwr.PollingActive {
		if refs == 0 {
			if err := c.enableBandgap(ctx, BandgapMBHC); err != nil {
				return err
			}
			if err := c.run(ctx, []step{update(hardware.RegRxComBias, 0x80, 0x80)}); err != nil {
				return fmt.Errorf("rx bias: %w", err)
			}
			if err := c.enableClockBlock(ctx, true); err != nil {
				return err
			}
		}
		if err := c.run(ctx, []step{update(hardware.RegClkBuffEn1, 0x05, 0x01)}); err != nil {
			return fmt.Errorf("clock buffer: %w", err)
		}
	}
	c.pwr.StreamRefs = refs
	metrics.SetStreamRefs(refs)
	return nil
}

// acquireADC and releaseADC switch the shared TX bias generator on the
// first acquire and off on the last release. Polling holds its own claim on
// the bias, so the last release leaves it on while polling.
func (c *Codec) acquireADC(ctx context.Context) error {
	refs := c.pwr.ADCRefs + 1
	if refs == 1 {
		err := c.run(ctx, []step{
			update(hardware.RegTxComBias, 0xE0, 0xE0),
			update(hardware.RegCdcClkOthrCtl, 0x02, 0x02),
		})
		if err != nil {
			return fmt.Errorf("adc bias on: %w", err)
		}
	}
	c.pwr.ADCRefs = refs
	return nil
}

func (c *Codec) releaseADC(ctx context.Context) error {
	if c.pwr.ADCRefs == 0 {
		return c.violation("release adc", "release with no active adc")
	}
	refs := c.pwr.ADCRefs - 1
	if refs == 0 {
		seq := []step{update(hardware.RegCdcClkOthrCtl, 0x02, 0x00)}
		if !c.pwr.PollingActive {
			seq = append(seq, update(hardware.RegTxComBias, 0xE0, 0x00))
		}
		if err := c.run(ctx, seq); err != nil {
			return fmt.Errorf("adc bias off: %w", err)
		}
	}
	c.pwr.ADCRefs = refs
	return nil
}

// violation logs and returns a protocol violation.
func (c *Codec) violation(op, msg string) error {
	slog.Error("codec: protocol violation", "op", op, "msg", msg,
		"bandgap", c.pwr.Bandgap, "clock_active", c.pwr.ClockActive,
		"stream_refs", c.pwr.StreamRefs, "polling_active", c.pwr.PollingActive, "phase", c.phase)
	return codecerr.Violation(op, msg)
}
