package codec

import (
	"fmt"
	"time"

	"github.com/micro-nova/codecd/internal/codecerr"
	"github.com/micro-nova/codecd/internal/hardware"
)

// MicBias selects the microphone bias line used for headset detection.
// The numeric value is the hardware selector code.
type MicBias uint8

const (
	MicBias1 MicBias = iota
	MicBias2
	MicBias3
	MicBias4
)

func (b MicBias) String() string { return fmt.Sprintf("micbias%d", int(b)+1) }

// micBiasRegs groups the per-line registers touched by detection.
type micBiasRegs struct {
	ctl, intRbias, mbhc hardware.Register
	cfiltCtl, cfiltVal  hardware.Register
	pollingCapable      bool
}

var micBiasTable = map[MicBias]micBiasRegs{
	MicBias1: {hardware.RegMicB1Ctl, hardware.RegMicB1IntRbias, hardware.RegMicB1MBHC, hardware.RegMicBCfilt1Ctl, hardware.RegMicBCfilt1Val, true},
	MicBias2: {hardware.RegMicB2Ctl, hardware.RegMicB2IntRbias, hardware.RegMicB2MBHC, hardware.RegMicBCfilt2Ctl, hardware.RegMicBCfilt2Val, true},
	MicBias3: {hardware.RegMicB3Ctl, hardware.RegMicB3IntRbias, hardware.RegMicB3MBHC, hardware.RegMicBCfilt3Ctl, hardware.RegMicBCfilt3Val, true},
	// Bias 4 has no cfilt of its own and cannot drive polling.
	MicBias4: {hardware.RegMicB4Ctl, hardware.RegMicB4IntRbias, hardware.RegMicB4MBHC, 0, 0, false},
}

// PollingParams are the detection block's voltage thresholds and debounce
// timer codes programmed when polling starts.
type PollingParams struct {
	VoltB1  byte `toml:"volt_b1" json:"volt_b1"`
	VoltB2  byte `toml:"volt_b2" json:"volt_b2"`
	VoltB3  byte `toml:"volt_b3" json:"volt_b3"`
	VoltB4  byte `toml:"volt_b4" json:"volt_b4"`
	TimerB1 byte `toml:"timer_b1" json:"timer_b1"`
	TimerB2 byte `toml:"timer_b2" json:"timer_b2"`
	TimerB3 byte `toml:"timer_b3" json:"timer_b3"`
	TimerB6 byte `toml:"timer_b6" json:"timer_b6"`
	B2Ctl   byte `toml:"b2_ctl" json:"b2_ctl"`
}

// DefaultPollingParams returns the reference board's thresholds and timers.
func DefaultPollingParams() PollingParams {
	return PollingParams{
		VoltB1: 0xCE, VoltB2: 0xFC, VoltB3: 0xEE, VoltB4: 0x09,
		TimerB1: 3, TimerB2: 9, TimerB3: 30, TimerB6: 120,
		B2Ctl: 11,
	}
}

// Calibration is board-specific headset detection data supplied by the
// caller. The codec keeps a pointer to it for the whole detection session
// and never modifies it.
type Calibration struct {
	Bias MicBias

	// Current-level codes.
	MicCurrent byte // 2 bits
	HPHCurrent byte // 2 bits

	// Settle delays.
	TLDOH                 time.Duration
	BGFastSettle          time.Duration
	MicPID                time.Duration
	SetupPlugRemovalDelay time.Duration
	ShutdownPlugRemoval   time.Duration

	Polling PollingParams
}

// Validate reports whether cal can be used for headset detection.
func (cal *Calibration) Validate() error { return cal.validate("calibration") }

func (cal *Calibration) validate(op string) error {
	if cal == nil {
		return codecerr.Config(op, "no calibration registered")
	}
	regs, ok := micBiasTable[cal.Bias]
	if !ok {
		return codecerr.Config(op, fmt.Sprintf("invalid mic bias line %d", cal.Bias))
	}
	if !regs.pollingCapable {
		return codecerr.Config(op, fmt.Sprintf("%s cannot be used for headset polling", cal.Bias))
	}
	if cal.MicCurrent > 3 || cal.HPHCurrent > 3 {
		return codecerr.Config(op, "current level codes must be 0-3")
	}
	return nil
}
