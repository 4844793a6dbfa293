package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"discrescue/internal/device"
)

func newDriveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Optical drive utilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newDriveStatusCommand(ctx))
	cmd.AddCommand(newDriveEjectCommand(ctx))
	return cmd
}

func (c *commandContext) devicePath(flagValue string) (string, error) {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Device.Path, nil
}

func newDriveStatusCommand(ctx *commandContext) *cobra.Command {
	var deviceFlag string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the drive tray status",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.devicePath(deviceFlag)
			if err != nil {
				return err
			}
			status, err := device.CheckDriveStatus(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Drive to query (defaults to the configured device)")
	return cmd
}

func newDriveEjectCommand(ctx *commandContext) *cobra.Command {
	var deviceFlag string

	cmd := &cobra.Command{
		Use:   "eject",
		Short: "Eject the disc",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.devicePath(deviceFlag)
			if err != nil {
				return err
			}
			if err := device.NewEjector().Eject(cmd.Context(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ejected %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Drive to eject (defaults to the configured device)")
	return cmd
}
