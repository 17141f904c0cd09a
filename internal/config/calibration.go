package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/micro-nova/codecd/internal/codec"
)

// CalibrationFile is the on-disk form of codec.Calibration. Delays are in
// microseconds and the bias line is numbered from 1.
type CalibrationFile struct {
	Bias                  int                 `toml:"bias" json:"bias"`
	MicCurrent            uint8               `toml:"mic_current" json:"mic_current"`
	HPHCurrent            uint8               `toml:"hph_current" json:"hph_current"`
	TLDOHUs               uint32              `toml:"tldoh_us" json:"tldoh_us"`
	BGFastSettleUs        uint32              `toml:"bg_fast_settle_us" json:"bg_fast_settle_us"`
	MicPIDUs              uint32              `toml:"mic_pid_us" json:"mic_pid_us"`
	SetupPlugRemovalUs    uint32              `toml:"setup_plug_removal_delay_us" json:"setup_plug_removal_delay_us"`
	ShutdownPlugRemovalUs uint32              `toml:"shutdown_plug_removal_us" json:"shutdown_plug_removal_us"`
	Polling               codec.PollingParams `toml:"polling" json:"polling"`
}

// DefaultCalibrationFile returns the reference board calibration.
func DefaultCalibrationFile() CalibrationFile {
	return CalibrationFile{
		Bias:                  2,
		MicCurrent:            1,
		HPHCurrent:            1,
		TLDOHUs:               100,
		BGFastSettleUs:        5000,
		MicPIDUs:              100,
		SetupPlugRemovalUs:    1000000,
		ShutdownPlugRemovalUs: 100000,
		Polling:               codec.DefaultPollingParams(),
	}
}

func us(n uint32) time.Duration { return time.Duration(n) * time.Microsecond }

// Calibration converts f to a validated codec.Calibration.
func (f CalibrationFile) Calibration() (*codec.Calibration, error) {
	if f.Bias < 1 || f.Bias > 4 {
		return nil, fmt.Errorf("calibration: bias %d out of range 1-4", f.Bias)
	}
	cal := &codec.Calibration{
		Bias:                  codec.MicBias(f.Bias - 1),
		MicCurrent:            f.MicCurrent,
		HPHCurrent:            f.HPHCurrent,
		TLDOH:                 us(f.TLDOHUs),
		BGFastSettle:          us(f.BGFastSettleUs),
		MicPID:                us(f.MicPIDUs),
		SetupPlugRemovalDelay: us(f.SetupPlugRemovalUs),
		ShutdownPlugRemoval:   us(f.ShutdownPlugRemovalUs),
		Polling:               f.Polling,
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return cal, nil
}

// CalibrationFileFrom is the inverse of CalibrationFile.Calibration.
func CalibrationFileFrom(cal *codec.Calibration) CalibrationFile {
	return CalibrationFile{
		Bias:                  int(cal.Bias) + 1,
		MicCurrent:            cal.MicCurrent,
		HPHCurrent:            cal.HPHCurrent,
		TLDOHUs:               uint32(cal.TLDOH / time.Microsecond),
		BGFastSettleUs:        uint32(cal.BGFastSettle / time.Microsecond),
		MicPIDUs:              uint32(cal.MicPID / time.Microsecond),
		SetupPlugRemovalUs:    uint32(cal.SetupPlugRemovalDelay / time.Microsecond),
		ShutdownPlugRemovalUs: uint32(cal.ShutdownPlugRemoval / time.Microsecond),
		Polling:               cal.Polling,
	}
}

// LoadCalibration reads a calibration file. Keys missing from the file keep
// their reference board values.
func LoadCalibration(path string) (*codec.Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	f := DefaultCalibrationFile()
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calibration %s: %w", path, err)
	}
	return f.Calibration()
}

// SaveCalibration writes cal to path atomically: the data goes to a temp
// file in the same directory which is then renamed over path.
func SaveCalibration(path string, cal *codec.Calibration) error {
	if err := cal.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(CalibrationFileFrom(cal))
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
