package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/micro-nova/codecd/internal/config"
	"github.com/micro-nova/codecd/internal/hardware"
)

// newChipCmd reads the chip identity and exits. Used during board bring-up
// to check the control port wiring.
func newChipCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chip",
		Short: "Read the codec chip ID and revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if cfg.ResetPin != "" {
				if err := resetCodec(cfg.ResetPin); err != nil {
					return err
				}
			}
			hw, err := openBuses(cfg)
			if err != nil {
				return err
			}
			defer hw.Close()
			info, err := hardware.ReadChipInfo(cmd.Context(), hw.ctl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

func newCalibrationCmd() *cobra.Command {
	cal := &cobra.Command{
		Use:   "calibration",
		Short: "Manage the headset detection calibration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init PATH",
		Short: "Write the reference board calibration to PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			c, err := config.DefaultCalibrationFile().Calibration()
			if err != nil {
				return err
			}
			return config.SaveCalibration(path, c)
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	checkCmd := &cobra.Command{
		Use:   "check PATH",
		Short: "Validate a calibration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadCalibration(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s, mic current %d, hph current %d\n", c.Bias, c.MicCurrent, c.HPHCurrent)
			return nil
		},
	}

	cal.AddCommand(initCmd, checkCmd)
	return cal
}
