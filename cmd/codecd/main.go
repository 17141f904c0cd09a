// Command codecd is the codec control daemon: it brings up the codec, runs
// headset detection and serves the control API.
// Run with --bus=mock to use a simulated register bus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/micro-nova/codecd/internal/config"
)

// version is set at link time.
var version = "dev"

func main() {
	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "codecd:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "codecd",
		Short:         "Codec power and headset detection daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, cfgPath)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/etc/codecd/codecd.toml", "configuration file")
	config.Default().RegisterFlags(root.PersistentFlags())

	root.AddCommand(newChipCmd(&cfgPath), newCalibrationCmd())
	return root
}

// loadConfig reads the config file, applies flags and installs the logger.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}
