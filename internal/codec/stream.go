package codec

import (
	"context"
	"fmt"
	"time"

	"github.com/micro-nova/codecd/internal/codecerr"
	"github.com/micro-nova/codecd/internal/hardware"
)

// StreamStart claims the power domain for a stream. Capture also powers
// the headset LDO.
func (c *Codec) StreamStart(ctx context.Context, dir Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireStream(ctx, dir)
}

// StreamStop releases a claim taken by StreamStart. Stopping with no
// active stream is a protocol violation.
func (c *Codec) StreamStop(ctx context.Context, dir Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseStream(ctx, dir)
}

type adcRegs struct {
	en, test hardware.Register
	bit      byte
}

// adcChannel maps TX ADC 1-6 to its enable and test registers. ADCs are
// paired per register, odd at bit 7 and even at bit 3.
func adcChannel(ch int) (adcRegs, bool) {
	pairs := [...][2]hardware.Register{
		{hardware.RegTx12En, hardware.RegTx12TestCtl},
		{hardware.RegTx34En, hardware.RegTx34TestCtl},
		{hardware.RegTx56En, hardware.RegTx56TestCtl},
	}
	if ch < 1 || ch > 6 {
		return adcRegs{}, false
	}
	pr := pairs[(ch-1)/2]
	bit := byte(1 << 7)
	if ch%2 == 0 {
		bit = 1 << 3
	}
	return adcRegs{en: pr[0], test: pr[1], bit: bit}, true
}

// AcquireADC powers TX ADC ch (1-6): shared bias on the first claim, then
// the channel enable and a reset pulse.
func (c *Codec) AcquireADC(ctx context.Context, ch int) error {
	const op = "acquire adc"
	r, ok := adcChannel(ch)
	if !ok {
		return codecerr.Config(op, fmt.Sprintf("no adc %d", ch))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	mask := uint8(1) << (ch - 1)
	if c.adcOn&mask != 0 {
		return c.violation(op, fmt.Sprintf("adc %d already powered", ch))
	}
	if err := c.acquireADC(ctx); err != nil {
		return err
	}
	err := c.run(ctx, []step{
		update(r.en, r.bit, r.bit),
		update(r.test, r.bit, r.bit),
		settle(time.Millisecond),
		update(r.test, r.bit, 0x00),
		settle(time.Millisecond),
	})
	if err != nil {
		_ = c.releaseADC(ctx)
		return fmt.Errorf("adc %d on: %w", ch, err)
	}
	c.adcOn |= mask
	return nil
}

// ReleaseADC powers down TX ADC ch. The shared bias goes off with the last
// ADC unless headset polling still holds it.
func (c *Codec) ReleaseADC(ctx context.Context, ch int) error {
	const op = "release adc"
	r, ok := adcChannel(ch)
	if !ok {
		return codecerr.Config(op, fmt.Sprintf("no adc %d", ch))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	mask := uint8(1) << (ch - 1)
	if c.adcOn&mask == 0 {
		return c.violation(op, fmt.Sprintf("adc %d is not powered", ch))
	}
	if err := c.run(ctx, []step{update(r.en, r.bit, 0x00)}); err != nil {
		return fmt.Errorf("adc %d off: %w", ch, err)
	}
	if err := c.releaseADC(ctx); err != nil {
		return err
	}
	c.adcOn &^= mask
	return nil
}

var chargePumpOnSeq = []step{
	update(hardware.RegCPEn, 0x01, 0x01),
	update(hardware.RegCdcClkOthrCtl, 0x01, 0x01),
	update(hardware.RegCdcCLSGCtl, 0x08, 0x08),
	settle(200 * time.Microsecond),
	update(hardware.RegCPStatic, 0x10, 0x00),
}

var chargePumpOffSeq = []step{
	update(hardware.RegCdcClkOthrResetCtl, 0x10, 0x10),
	settle(20 * time.Microsecond),
	update(hardware.RegCPStatic, 0x08, 0x08),
	update(hardware.RegCPStatic, 0x10, 0x10),
	update(hardware.RegCdcCLSGCtl, 0x08, 0x00),
	update(hardware.RegCdcClkOthrCtl, 0x01, 0x00),
	update(hardware.RegCPStatic, 0x08, 0x00),
	update(hardware.RegCPEn, 0x01, 0x00),
}

// EnableChargePump starts the headphone charge pump. It needs the audio
// bandgap and the full clock.
func (c *Codec) EnableChargePump(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pwr.Bandgap != BandgapAudio || !c.pwr.ClockActive {
		return c.violation("enable charge pump",
			fmt.Sprintf("needs audio bandgap and clock, have %s clock_active=%t", c.pwr.Bandgap, c.pwr.ClockActive))
	}
	if err := c.run(ctx, chargePumpOnSeq); err != nil {
		return fmt.Errorf("charge pump on: %w", err)
	}
	return nil
}

// DisableChargePump stops the headphone charge pump.
func (c *Codec) DisableChargePump(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.run(ctx, chargePumpOffSeq); err != nil {
		return fmt.Errorf("charge pump off: %w", err)
	}
	return nil
}

// SetDigitalMute soft-mutes the RX1 path.
func (c *Codec) SetDigitalMute(ctx context.Context, mute bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var v byte
	if mute {
		v = 0x01
	}
	return c.regs.UpdateBits(ctx, hardware.RegCdcRx1B6Ctl, 0x01, v)
}
