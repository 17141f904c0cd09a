package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/micro-nova/codecd/internal/config"
	"github.com/micro-nova/codecd/internal/hardware"
)

// mockChipID is what the simulated control port reports.
var mockChipID = [4]byte{0x00, 0x00, 0x93, 0x10}

// buses are the register paths to one codec.
type buses struct {
	ctl     hardware.Bus // codec register space
	intf    hardware.Bus // audio interface port registers; nil if unavailable
	closers []io.Closer
}

func (b *buses) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func openBuses(cfg *config.Config) (*buses, error) {
	switch cfg.Bus.Type {
	case config.BusMock:
		ctl := hardware.NewMock()
		for i, v := range mockChipID {
			ctl.SetReg(hardware.RegChipID0+hardware.Register(i), v)
		}
		ctl.SetReg(hardware.RegChipVer, 0x02)
		slog.Info("using mock register bus")
		return &buses{ctl: ctl, intf: hardware.NewMock()}, nil

	case config.BusI2C:
		return openI2C(cfg)

	case config.BusSerial:
		ctl, err := hardware.OpenSerialBus(cfg.Bus.Device, cfg.Bus.Baud)
		if err != nil {
			return nil, err
		}
		b := &buses{ctl: ctl, closers: []io.Closer{ctl}}
		if cfg.Bus.IntfDevice == "" {
			slog.Warn("serial bridge has no interface port; bus health scanning disabled")
			return b, nil
		}
		intf, err := hardware.OpenSerialBus(cfg.Bus.IntfDevice, cfg.Bus.Baud)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.intf = intf
		b.closers = append(b.closers, intf)
		return b, nil
	}
	return nil, fmt.Errorf("unknown bus type %q", cfg.Bus.Type)
}
