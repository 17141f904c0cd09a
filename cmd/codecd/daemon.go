package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/micro-nova/codecd/internal/api"
	"github.com/micro-nova/codecd/internal/auth"
	"github.com/micro-nova/codecd/internal/codec"
	"github.com/micro-nova/codecd/internal/config"
	"github.com/micro-nova/codecd/internal/events"
	"github.com/micro-nova/codecd/internal/hardware"
	"github.com/micro-nova/codecd/internal/irq"
	"github.com/micro-nova/codecd/internal/zeroconf"
)

func runDaemon(ctx context.Context, cfg *config.Config) error {
	if cfg.ResetPin != "" {
		if err := resetCodec(cfg.ResetPin); err != nil {
			return fmt.Errorf("codec reset: %w", err)
		}
	}

	hw, err := openBuses(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	chip, err := hardware.ReadChipInfo(ctx, hw.ctl)
	if err != nil {
		return err
	}
	slog.Info("codec found", "chip", chip, "bus", cfg.Bus.Type)

	// Interrupt lines and the codec instance
	lines := irq.NewDispatcher()
	c := codec.New(hardware.NewRegMap(hw.ctl, hardware.CacheSize), lines, codec.Options{})
	c.Attach(lines)

	bus := events.NewBus()

	if hw.intf != nil {
		scanner := irq.NewBusHealthScanner(hw.intf, lines)
		scanner.OnPortError(bus.PortError)
		lines.Register(irq.BusHealth, scanner.Handle)
		if err := scanner.EnablePorts(ctx); err != nil {
			return err
		}
	}

	if err := c.Probe(ctx); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer func() {
		// The signal context is already cancelled here.
		if err := c.Close(context.Background()); err != nil {
			slog.Warn("codec close failed", "err", err)
		}
	}()

	// Headset detection
	if cal, err := config.LoadCalibration(cfg.Calibration); err != nil {
		slog.Warn("headset detection disabled until a calibration is written", "path", cfg.Calibration, "err", err)
	} else if err := c.StartDetection(ctx, cal, bus); err != nil {
		return fmt.Errorf("start detection: %w", err)
	}

	watcher := config.NewWatcher(cfg.Calibration, config.LoadCalibration)
	watcher.OnReload(func(cal *codec.Calibration) {
		applyCalibration(context.Background(), c, bus, cal)
	})
	if err := watcher.Start(ctx); err != nil {
		slog.Warn("calibration watcher not started", "dir", filepath.Dir(cfg.Calibration), "err", err)
	} else {
		defer watcher.Stop()
	}

	go lines.Run(ctx)

	if cfg.IRQPin != "" {
		decoder := irq.NewStatusDecoder(hw.ctl, lines)
		err := watchIRQ(ctx, cfg.IRQPin, func() {
			if _, err := decoder.Decode(ctx); err != nil {
				slog.Warn("irq decode failed", "err", err)
			}
		})
		if err != nil {
			return fmt.Errorf("irq pin: %w", err)
		}
	} else {
		slog.Info("no irq pin configured; interrupts only via /api/irq")
	}

	// Auth service
	authSvc, err := auth.NewService(cfg.HTTP.KeysDir)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	defer authSvc.Close()

	// Zeroconf mDNS registration
	if cfg.Zeroconf.Enabled {
		zc := zeroconf.New(cfg.Zeroconf.Name, listenPort(cfg.HTTP.Listen), zeroconf.Info{
			Version: version,
			Chip:    chip.String(),
			Bus:     cfg.Bus.Type,
		})
		go func() {
			if err := zc.Start(ctx); err != nil {
				slog.Warn("zeroconf failed", "err", err)
			}
		}()
	}

	// HTTP server
	router := api.NewRouter(api.Deps{
		Codec:           c,
		IRQ:             lines,
		Events:          bus,
		Auth:            authSvc,
		Chip:            chip,
		CalibrationPath: cfg.Calibration,
	})
	srv := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		slog.Info("codecd listening", "addr", cfg.HTTP.Listen, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	return nil
}

// applyCalibration arms detection with the first calibration seen and
// updates it afterwards.
func applyCalibration(ctx context.Context, c *codec.Codec, bus *events.Bus, cal *codec.Calibration) {
	var err error
	if c.Status().Calibrated {
		err = c.UpdateCalibration(ctx, cal)
	} else {
		err = c.StartDetection(ctx, cal, bus)
	}
	if err != nil {
		slog.Warn("calibration reload rejected", "err", err)
		return
	}
	bus.Publish(events.Event{Type: events.TypeCalibration, Msg: "reloaded from file"})
}

// listenPort extracts the port from a listen address, defaulting to 80.
func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 80
	}
	return n
}
