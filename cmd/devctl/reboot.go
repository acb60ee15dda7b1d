package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-devlink/device"
)

var (
	cmdReboot = &cobra.Command{
		Use:   "reboot",
		Short: "Reboot the device into its application firmware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *device.Client) error {
				if err := c.Reboot(ctx); err != nil {
					return err
				}
				color.Green("rebooting")
				return nil
			})
		},
	}

	cmdRebootBootloader = &cobra.Command{
		Use:   "reboot-bootloader",
		Short: "Reboot the device into the STM32 DFU bootloader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *device.Client) error {
				if err := c.RebootBootloader(ctx); err != nil {
					return err
				}
				color.Green("rebooting into bootloader")
				return nil
			})
		},
	}
)

func init() {
	rootCmd.AddCommand(cmdReboot)
	rootCmd.AddCommand(cmdRebootBootloader)
}
