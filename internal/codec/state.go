package codec

import "fmt"

// BandgapMode is the analog reference generator mode.
type BandgapMode int

const (
	BandgapOff BandgapMode = iota
	BandgapAudio
	BandgapMBHC
)

func (m BandgapMode) String() string {
	switch m {
	case BandgapOff:
		return "off"
	case BandgapAudio:
		return "audio"
	case BandgapMBHC:
		return "mbhc"
	default:
		return fmt.Sprintf("bandgap(%d)", int(m))
	}
}

func (m BandgapMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseBandgapMode is the inverse of BandgapMode.String.
func ParseBandgapMode(s string) (BandgapMode, bool) {
	for _, m := range []BandgapMode{BandgapOff, BandgapAudio, BandgapMBHC} {
		if m.String() == s {
			return m, true
		}
	}
	return BandgapOff, false
}

// PowerState is the shared power/clock state of one codec instance.
// It is only read or written with the codec lock held.
type PowerState struct {
	Bandgap          BandgapMode `json:"bandgap"`
	ClockActive      bool        `json:"clock_active"`
	ConfigModeActive bool        `json:"config_mode_active"`
	StreamRefs       uint        `json:"stream_refs"`
	ADCRefs          uint        `json:"adc_refs"`
	PollingActive    bool        `json:"polling_active"`
}

// Phase is the headset detection phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseArmedForInsertion
	PhasePolling
	// PhaseArmedForRemoval is never entered on this chip: removal is armed
	// as part of polling setup.
	PhaseArmedForRemoval
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseArmedForInsertion:
		return "armed_for_insertion"
	case PhasePolling:
		return "polling"
	case PhaseArmedForRemoval:
		return "armed_for_removal"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Direction is an audio stream direction.
type Direction int

const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// ParseDirection parses "playback" or "capture".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "playback":
		return Playback, true
	case "capture":
		return Capture, true
	}
	return Playback, false
}

// JackState is what the notification sink is told about the headset jack.
type JackState int

const (
	JackRemoved JackState = iota
	JackInserted
)

func (s JackState) String() string {
	if s == JackInserted {
		return "inserted"
	}
	return "removed"
}

func (s JackState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// JackReporter receives jack insertion/removal reports. Report is called with
// the codec lock held and must not block.
type JackReporter interface {
	Report(state JackState)
}

// JackReporterFunc adapts a function to JackReporter.
type JackReporterFunc func(JackState)

func (f JackReporterFunc) Report(s JackState) { f(s) }

// Status is a consistent snapshot of a codec instance.
type Status struct {
	Power      PowerState `json:"power"`
	Phase      Phase      `json:"phase"`
	Calibrated bool       `json:"calibrated"`
}
