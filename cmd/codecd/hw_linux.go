//go:build linux

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/micro-nova/codecd/internal/config"
	"github.com/micro-nova/codecd/internal/hardware"
)

func openI2C(cfg *config.Config) (*buses, error) {
	adapter, err := hardware.OpenLinuxI2C(cfg.Bus.Device)
	if err != nil {
		return nil, err
	}
	slog.Info("using I2C register bus", "device", cfg.Bus.Device,
		"addr", cfg.Bus.Addr, "intf_addr", cfg.Bus.IntfAddr)
	return &buses{
		ctl:     hardware.NewI2CBus(adapter, cfg.Bus.Addr),
		intf:    hardware.NewI2CBus(adapter, cfg.Bus.IntfAddr),
		closers: []io.Closer{adapter},
	}, nil
}

func resetCodec(pin string) error {
	return hardware.ResetCodec(pin)
}

// watchIRQ opens the interrupt pin and calls fn on every edge until ctx is
// done.
func watchIRQ(ctx context.Context, pin string, fn func()) error {
	p, err := hardware.OpenIRQPin(pin)
	if err != nil {
		return err
	}
	go p.Watch(ctx, fn)
	return nil
}
